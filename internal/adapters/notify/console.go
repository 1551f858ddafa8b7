package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resumen de una línea y, si está activado, la tabla por ventana.
func (c *Console) Notify(_ context.Context, eval domain.Evaluation) error {
	fmt.Fprintln(c.out, SummaryLine(eval))
	if c.table {
		c.PrintWindows(eval.Result)
	}
	return nil
}

// SummaryLine es la línea que se imprime en cada reevaluación:
//
//	[10:00:00] rts=42 be=0.2500% tp=0.4500% sl=0.8000% fees=maker applied=tp
func SummaryLine(eval domain.Evaluation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] rts=%d be=%s tp=%s sl=%s fees=%s",
		eval.At.Format("15:04:05"),
		eval.RoundTrips,
		pct(eval.Result.BreakEven),
		pct(eval.Result.TP),
		pct(eval.Result.SL),
		eval.Params.Profile(),
	)
	if !eval.ParamsOK {
		sb.WriteString(" (default params)")
	}
	fmt.Fprintf(&sb, " applied=%s", appliedLabel(eval))
	return sb.String()
}

func appliedLabel(eval domain.Evaluation) string {
	switch {
	case eval.ApplyErr != "":
		return "error"
	case eval.Applied():
		var fields []string
		if eval.AppliedTP {
			fields = append(fields, "tp")
		}
		if eval.AppliedSL {
			fields = append(fields, "sl")
		}
		return strings.Join(fields, ",")
	case eval.DryRun && eval.Decision.ShouldApply():
		return "dry-run"
	case !eval.Decision.CooldownElapsed && (eval.Decision.TPChanged || eval.Decision.SLChanged):
		return "cooldown"
	default:
		return "none"
	}
}

// PrintWindows imprime el detalle de cada ventana del ensemble.
func (c *Console) PrintWindows(res domain.EnsembleResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Window", "Weight", "Samples", "TP", "Hit", "Net/trade", "SL", "SL method")

	for _, w := range res.Windows {
		tp, hit, net := "-", "-", "-"
		if w.TP.HasTP {
			tp = pct(w.TP.TP)
			hit = fmt.Sprintf("%.1f%%", w.TP.HitRate*100)
			net = fmt.Sprintf("%.4f", w.TP.NetPerTrade)
		}
		table.Append(
			fmt.Sprintf("%d", w.Spec.Size),
			fmt.Sprintf("%.3f", w.Spec.Weight),
			fmt.Sprintf("%d", w.Samples),
			tp,
			hit,
			net,
			pct(w.SL.SL),
			w.SL.Method,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  blend: tp=%s sl=%s  (break-even %s)\n",
		pct(res.TP), pct(res.SL), pct(res.BreakEven))
}

// PrintSizes imprime el TP óptimo de la muestra completa para cada tamaño nocional.
func (c *Console) PrintSizes(recs []domain.SizeRecommendation, samples int) {
	fmt.Fprintf(c.out, "\n=== TP by size (%d round trips) ===\n", samples)
	if samples == 0 {
		fmt.Fprintln(c.out, "  no round trips yet")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Size", "TP", "Hit", "Net/trade")
	for _, r := range recs {
		table.Append(
			fmt.Sprintf("%.0f", r.Size),
			pct(r.TP),
			fmt.Sprintf("%.1f%%", r.HitRate*100),
			fmt.Sprintf("%.4f", r.NetPerTrade),
		)
	}
	table.Render()
}

// --- helpers ---

func pct(v float64) string {
	return fmt.Sprintf("%.4f%%", v*100)
}
