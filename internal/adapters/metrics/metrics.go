// Package metrics expone cada evaluación como series de Prometheus.
//
//   - riskadapt_tp_pct / riskadapt_sl_pct       TP/SL combinados de la última evaluación
//   - riskadapt_break_even_pct                  break-even usado en la última evaluación
//   - riskadapt_round_trips                     round trips cerrados vistos
//   - riskadapt_window_tp_pct{window}           TP por ventana (ausente si la ventana no dio TP)
//   - riskadapt_window_sl_pct{window}           SL por ventana
//   - riskadapt_evaluations_total               reevaluaciones ejecutadas
//   - riskadapt_applies_total{field}            campos empujados al engine (tp|sl)
//   - riskadapt_push_failures_total             pushes fallidos
//   - riskadapt_default_params_total            ciclos que usaron los fee params por defecto
package metrics

import (
	"context"
	"strconv"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "riskadapt"

// Prometheus implementa ports.Notifier actualizando sus collectors.
type Prometheus struct {
	tp            prometheus.Gauge
	sl            prometheus.Gauge
	breakEven     prometheus.Gauge
	roundTrips    prometheus.Gauge
	windowTP      *prometheus.GaugeVec
	windowSL      *prometheus.GaugeVec
	evaluations   prometheus.Counter
	applies       *prometheus.CounterVec
	pushFailures  prometheus.Counter
	defaultParams prometheus.Counter
}

// New crea los collectors y los registra en reg.
// Con prometheus.DefaultRegisterer quedan servidos por promhttp.Handler().
func New(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		tp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tp_pct",
			Help:      "Blended take-profit of the last evaluation (fraction).",
		}),
		sl: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sl_pct",
			Help:      "Blended stop-loss of the last evaluation (fraction).",
		}),
		breakEven: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "break_even_pct",
			Help:      "Round-trip break-even used in the last evaluation (fraction).",
		}),
		roundTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_trips",
			Help:      "Closed round trips reconstructed in the last evaluation.",
		}),
		windowTP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_tp_pct",
			Help:      "Take-profit recommended by each window.",
		}, []string{"window"}),
		windowSL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_sl_pct",
			Help:      "Stop-loss recommended by each window.",
		}, []string{"window"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Reevaluations run.",
		}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applies_total",
			Help:      "Fields pushed to the engine, by field.",
		}, []string{"field"}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Failed pushes to the engine.",
		}),
		defaultParams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "default_params_total",
			Help:      "Evaluations that used default fee params.",
		}),
	}

	reg.MustRegister(
		p.tp, p.sl, p.breakEven, p.roundTrips,
		p.windowTP, p.windowSL,
		p.evaluations, p.applies, p.pushFailures, p.defaultParams,
	)
	return p
}

// Notify registra eval. Nunca falla.
func (p *Prometheus) Notify(_ context.Context, eval domain.Evaluation) error {
	p.evaluations.Inc()
	p.tp.Set(eval.Result.TP)
	p.sl.Set(eval.Result.SL)
	p.breakEven.Set(eval.Result.BreakEven)
	p.roundTrips.Set(float64(eval.RoundTrips))

	if !eval.ParamsOK {
		p.defaultParams.Inc()
	}
	if eval.AppliedTP {
		p.applies.WithLabelValues("tp").Inc()
	}
	if eval.AppliedSL {
		p.applies.WithLabelValues("sl").Inc()
	}
	if eval.ApplyErr != "" {
		p.pushFailures.Inc()
	}

	// Reset: una ventana sin TP en este ciclo no conserva el valor anterior.
	p.windowTP.Reset()
	p.windowSL.Reset()
	for _, w := range eval.Result.Windows {
		label := strconv.Itoa(w.Spec.Size)
		if w.TP.HasTP {
			p.windowTP.WithLabelValues(label).Set(w.TP.TP)
		}
		p.windowSL.WithLabelValues(label).Set(w.SL.SL)
	}
	return nil
}
