package domain

import (
	"math"
	"time"
)

// hysteresisTolerance evita que un cambio exactamente igual al umbral
// quede por debajo por error de redondeo.
const hysteresisTolerance = 1e-12

// AppliedState es lo último que se empujó al engine.
// Estado inicial: nunca aplicado (sin TP, sin SL, LastApplyAt cero).
type AppliedState struct {
	LastTP      float64
	LastSL      float64
	HasTP       bool
	HasSL       bool
	LastApplyAt time.Time
}

// GateConfig controla la histéresis y el cooldown entre aplicaciones.
type GateConfig struct {
	HysteresisBps float64
	Cooldown      time.Duration
}

// Threshold devuelve la histéresis como cambio absoluto (bps / 10000).
func (c GateConfig) Threshold() float64 {
	return c.HysteresisBps / 10000
}

// ApplyDecision es lo que el Gate decide para un ciclo.
type ApplyDecision struct {
	TP              float64
	SL              float64
	TPChanged       bool
	SLChanged       bool
	CooldownElapsed bool
	PushTP          bool
	PushSL          bool
}

// ShouldApply indica si hay algo que empujar.
func (d ApplyDecision) ShouldApply() bool {
	return d.PushTP || d.PushSL
}

// Gate decide si y qué parámetros empujar al engine. Cada campo se evalúa
// por separado: un ciclo puede empujar solo TP, solo SL, ambos o ninguno.
// No es seguro para uso concurrente; lo posee el loop.
type Gate struct {
	cfg   GateConfig
	state AppliedState
}

// NewGate crea un Gate con el estado inicial dado (normalmente AppliedState{}).
func NewGate(cfg GateConfig, initial AppliedState) *Gate {
	return &Gate{cfg: cfg, state: initial}
}

// Decide evalúa histéresis y cooldown. No modifica el estado.
//
//	changed  = nunca aplicado || |nuevo − último| ≥ bps/10000
//	cooldown = now − lastApply ≥ cooldown
//	push_x   = cooldown && changed_x
func (g *Gate) Decide(tp, sl float64, now time.Time) ApplyDecision {
	d := ApplyDecision{
		TP:              tp,
		SL:              sl,
		TPChanged:       g.changed(g.state.HasTP, g.state.LastTP, tp),
		SLChanged:       g.changed(g.state.HasSL, g.state.LastSL, sl),
		CooldownElapsed: g.cooldownElapsed(now),
	}
	if d.CooldownElapsed && (d.TPChanged || d.SLChanged) {
		d.PushTP = d.TPChanged
		d.PushSL = d.SLChanged
	}
	return d
}

// Commit registra un push exitoso: actualiza el timestamp y solo los campos empujados.
// Tras un push fallido no se llama, así el siguiente ciclo reintenta la misma comparación.
func (g *Gate) Commit(d ApplyDecision, now time.Time) {
	if !d.ShouldApply() {
		return
	}
	g.state.LastApplyAt = now
	if d.PushTP {
		g.state.LastTP = d.TP
		g.state.HasTP = true
	}
	if d.PushSL {
		g.state.LastSL = d.SL
		g.state.HasSL = true
	}
}

// State devuelve una copia del estado aplicado.
func (g *Gate) State() AppliedState {
	return g.state
}

func (g *Gate) changed(has bool, last, next float64) bool {
	if !has {
		return true
	}
	return math.Abs(next-last)+hysteresisTolerance >= g.cfg.Threshold()
}

func (g *Gate) cooldownElapsed(now time.Time) bool {
	if g.state.LastApplyAt.IsZero() {
		return true
	}
	return now.Sub(g.state.LastApplyAt) >= g.cfg.Cooldown
}
