package manager

import (
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// State es el estado que sobrevive entre ciclos. Lo posee el Manager y solo
// lo toca el loop, así que no lleva locks.
type State struct {
	gate           *domain.Gate
	lastRoundTrips int
	lastReevalAt   time.Time
}

// NewState crea el estado inicial con el AppliedState dado (normalmente "nunca aplicado").
func NewState(cfg domain.GateConfig, applied domain.AppliedState) *State {
	return &State{gate: domain.NewGate(cfg, applied), lastRoundTrips: -1}
}

// Due indica si toca reevaluar: cambió el número de round trips o pasó el
// intervalo de reevaluación. Sin round trips nunca toca.
func (s *State) Due(roundTrips int, now time.Time, every time.Duration) bool {
	if roundTrips == 0 {
		return false
	}
	if roundTrips != s.lastRoundTrips {
		return true
	}
	return s.lastReevalAt.IsZero() || now.Sub(s.lastReevalAt) >= every
}

// Mark registra una reevaluación.
func (s *State) Mark(roundTrips int, now time.Time) {
	s.lastRoundTrips = roundTrips
	s.lastReevalAt = now
}

// Applied devuelve lo último empujado al engine.
func (s *State) Applied() domain.AppliedState {
	return s.gate.State()
}

// LastReevaluation devuelve el número de round trips y el momento de la última reevaluación.
func (s *State) LastReevaluation() (int, time.Time) {
	return s.lastRoundTrips, s.lastReevalAt
}
