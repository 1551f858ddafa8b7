package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/alejandrodnm/riskadapt/internal/ports"
	"github.com/google/uuid"
)

// Config contiene la configuración del loop.
type Config struct {
	PollInterval       time.Duration
	ReevaluateInterval time.Duration
	Windows            []domain.WindowSpec
	Ensemble           domain.EnsembleConfig
	Gate               domain.GateConfig
	ApplyEnabled       bool // sin esto nunca se empuja nada
	DryRun             bool // calcula y registra la decisión, pero no empuja ni commitea
	RestoreState       bool // arranca con el último AppliedState guardado en storage
	SummarySizes       []float64
}

// Deps son los colaboradores externos. Log, Storage y Notifiers son opcionales.
type Deps struct {
	Params    ports.ParamsProvider
	Trades    ports.TradeProvider
	Updater   ports.ParamsUpdater
	Log       ports.EvaluationLog
	Storage   ports.HistoryStorage
	Notifiers []ports.Notifier
}

// Manager es el orquestador del loop de reevaluación.
type Manager struct {
	cfg   Config
	deps  Deps
	state *State
	now   func() time.Time
	newID func() string
}

// Option modifica un Manager en construcción.
type Option func(*Manager)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDs reemplaza el generador de IDs de evaluación (tests).
func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// New crea un Manager con todas las dependencias inyectadas y el estado "nunca aplicado".
func New(cfg Config, deps Deps, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		deps:  deps,
		state: NewState(cfg.Gate, domain.AppliedState{}),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State devuelve el estado del loop.
func (m *Manager) State() *State {
	return m.state
}

// Restore carga el último AppliedState de storage si cfg.RestoreState está activo.
// Sin storage o sin pushes registrados se queda en "nunca aplicado".
func (m *Manager) Restore(ctx context.Context) error {
	if !m.cfg.RestoreState || m.deps.Storage == nil {
		return nil
	}
	applied, err := m.deps.Storage.LastAppliedState(ctx)
	if err != nil {
		return fmt.Errorf("manager.Restore: %w", err)
	}
	m.state = NewState(m.cfg.Gate, applied)
	slog.Info("applied state restored",
		"has_tp", applied.HasTP,
		"tp", applied.LastTP,
		"has_sl", applied.HasSL,
		"sl", applied.LastSL,
		"last_apply", applied.LastApplyAt,
	)
	return nil
}

// Run ejecuta el loop hasta que el contexto se cancele. Ningún fallo de un ciclo es fatal.
func (m *Manager) Run(ctx context.Context) error {
	slog.Info("risk manager starting",
		"poll", m.cfg.PollInterval,
		"reevaluate", m.cfg.ReevaluateInterval,
		"windows", domain.FormatWindows(m.cfg.Windows),
		"apply", m.cfg.ApplyEnabled,
		"dry_run", m.cfg.DryRun,
	)

	if _, _, err := m.Poll(ctx); err != nil {
		slog.Error("cycle failed", "err", err)
	}

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("risk manager stopped")
			return nil
		case <-ticker.C:
			if _, _, err := m.Poll(ctx); err != nil {
				slog.Error("cycle failed", "err", err)
			}
		}
	}
}

// Poll ejecuta un ciclo del loop: solo reevalúa si cambió el número de round trips
// o venció el intervalo de reevaluación. El bool es false si no tocaba.
func (m *Manager) Poll(ctx context.Context) (domain.Evaluation, bool, error) {
	return m.cycle(ctx, false)
}

// RunOnce ejecuta exactamente un ciclo, reevaluando aunque no haya cambios.
// El bool es false si no había round trips que evaluar.
func (m *Manager) RunOnce(ctx context.Context) (domain.Evaluation, bool, error) {
	return m.cycle(ctx, true)
}

// storedWindow es el rango del histórico en storage que informa Summarize.
const storedWindow = 30 * 24 * time.Hour

// Summary es el resultado de Summarize: el ensemble por ventana más el TP
// de la muestra completa para cada tamaño nocional.
type Summary struct {
	At         time.Time
	RoundTrips int
	Stored     int // round trips guardados en storage en los últimos 30 días; -1 sin storage
	Params     domain.FeeParams
	ParamsOK   bool
	Report     domain.ReconstructReport
	Result     domain.EnsembleResult
	Sizes      []domain.SizeRecommendation
}

// Summarize evalúa sin tocar el estado ni empujar nada.
func (m *Manager) Summarize(ctx context.Context) (Summary, error) {
	in, err := m.gather(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := m.now()
	stored := -1
	if m.deps.Storage != nil {
		rts, err := m.deps.Storage.GetRoundTrips(ctx, now.Add(-storedWindow), now)
		if err != nil {
			slog.Warn("storage error", "err", err)
		} else {
			stored = len(rts)
		}
	}

	returns := domain.Returns(in.roundTrips)
	be := in.params.BreakEven()
	return Summary{
		At:         now,
		RoundTrips: len(in.roundTrips),
		Stored:     stored,
		Params:     in.params,
		ParamsOK:   in.paramsOK,
		Report:     in.report,
		Result:     domain.Ensemble(returns, m.cfg.Windows, be, m.cfg.Ensemble),
		Sizes:      domain.OptimizeSizes(returns, be, m.cfg.SummarySizes, m.cfg.Ensemble.Grid),
	}, nil
}

// --- ciclo ---

type inputs struct {
	params     domain.FeeParams
	paramsOK   bool
	roundTrips []domain.RoundTrip
	report     domain.ReconstructReport
}

// gather hace fetch de params y trades y reconstruye los round trips.
// Los fallos de fetch no abortan: params caen a defaults y trades a lista vacía.
func (m *Manager) gather(ctx context.Context) (inputs, error) {
	var in inputs

	params, err := m.deps.Params.FetchParams(ctx)
	in.params, in.paramsOK = params, err == nil
	if err != nil {
		slog.Warn("fetch params failed, using defaults", "err", err)
		in.params = domain.DefaultFeeParams()
	}

	trades, err := m.deps.Trades.FetchTrades(ctx)
	if err != nil {
		slog.Warn("fetch trades failed", "err", err)
		trades = nil
	}

	if err := ctx.Err(); err != nil {
		return in, fmt.Errorf("manager.gather: %w", err)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	in.roundTrips, in.report = domain.ReconstructRoundTrips(trades)
	if in.report.HasInventoryMismatch() {
		slog.Warn("sells exceed tracked inventory, remainder dropped",
			"unmatched_sells", in.report.UnmatchedSells,
			"unmatched_qty", in.report.UnmatchedQty,
		)
	}
	if in.report.Discarded > 0 {
		slog.Debug("malformed trades discarded", "count", in.report.Discarded)
	}
	return in, nil
}

// cycle hace gather → ensemble → gate → push y registra la evaluación.
// Con force reevalúa aunque no hayan cambiado los round trips ni vencido el intervalo.
func (m *Manager) cycle(ctx context.Context, force bool) (domain.Evaluation, bool, error) {
	start := time.Now()

	in, err := m.gather(ctx)
	if err != nil {
		return domain.Evaluation{}, false, err
	}

	now := m.now()
	n := len(in.roundTrips)
	if n == 0 || (!force && !m.state.Due(n, now, m.cfg.ReevaluateInterval)) {
		lastN, lastAt := m.state.LastReevaluation()
		slog.Debug("nothing to reevaluate",
			"round_trips", n,
			"last_round_trips", lastN,
			"last_reevaluation", lastAt,
		)
		return domain.Evaluation{}, false, nil
	}
	m.saveRoundTrips(ctx, in.roundTrips)

	be := in.params.BreakEven()
	res := domain.Ensemble(domain.Returns(in.roundTrips), m.cfg.Windows, be, m.cfg.Ensemble)
	decision := m.state.gate.Decide(res.TP, res.SL, now)

	eval := domain.Evaluation{
		ID:         m.newID(),
		At:         now,
		RoundTrips: n,
		Params:     in.params,
		ParamsOK:   in.paramsOK,
		Result:     res,
		Decision:   decision,
		DryRun:     !m.cfg.ApplyEnabled || m.cfg.DryRun,
	}

	if decision.ShouldApply() {
		m.apply(ctx, &eval, now)
	}
	m.state.Mark(n, now)

	m.record(ctx, eval)

	slog.Info("reevaluation",
		"round_trips", n,
		"break_even", fmt.Sprintf("%.6f", be),
		"tp", fmt.Sprintf("%.6f", res.TP),
		"sl", fmt.Sprintf("%.6f", res.SL),
		"fees", in.params.Profile(),
		"applied_tp", eval.AppliedTP,
		"applied_sl", eval.AppliedSL,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return eval, true, nil
}

// apply empuja los campos que el gate marcó. Solo tras un push exitoso se commitea el estado.
func (m *Manager) apply(ctx context.Context, eval *domain.Evaluation, now time.Time) {
	d := eval.Decision
	if eval.DryRun {
		slog.Info("dry-run: would apply",
			"push_tp", d.PushTP, "tp", d.TP,
			"push_sl", d.PushSL, "sl", d.SL,
		)
		return
	}

	var update ports.ParamsUpdate
	if d.PushTP {
		tp := d.TP
		update.MinTPPct = &tp
	}
	if d.PushSL {
		sl := d.SL
		update.MinSLPct = &sl
	}

	if err := m.deps.Updater.UpdateParams(ctx, update); err != nil {
		eval.ApplyErr = err.Error()
		slog.Warn("push params failed, will retry next cycle", "err", err)
		return
	}

	m.state.gate.Commit(d, now)
	eval.AppliedTP = d.PushTP
	eval.AppliedSL = d.PushSL

	if m.deps.Storage != nil {
		if err := m.deps.Storage.SaveAppliedUpdate(ctx, domain.AppliedUpdate{
			ID:           m.newID(),
			EvaluationID: eval.ID,
			At:           now,
			TP:           update.MinTPPct,
			SL:           update.MinSLPct,
		}); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}
}

// record escribe la evaluación en el log, storage y notifiers. Los fallos solo se loguean.
func (m *Manager) record(ctx context.Context, eval domain.Evaluation) {
	if m.deps.Log != nil {
		if err := m.deps.Log.Append(ctx, eval); err != nil {
			slog.Warn("evaluation log error", "err", err)
		}
	}
	if m.deps.Storage != nil {
		if err := m.deps.Storage.SaveEvaluation(ctx, eval); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}
	for _, n := range m.deps.Notifiers {
		if err := n.Notify(ctx, eval); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
}

func (m *Manager) saveRoundTrips(ctx context.Context, rts []domain.RoundTrip) {
	if m.deps.Storage == nil || len(rts) == 0 {
		return
	}
	inserted, err := m.deps.Storage.SaveRoundTrips(ctx, rts)
	if err != nil {
		slog.Warn("storage error", "err", err)
		return
	}
	if inserted > 0 {
		slog.Debug("round trips stored", "new", inserted)
	}
}
