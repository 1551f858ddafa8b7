package domain

import "time"

// Evaluation es el registro completo de una reevaluación del loop.
// Es lo que se escribe en el log CSV, en storage y lo que reciben los notifiers.
type Evaluation struct {
	ID         string
	At         time.Time
	RoundTrips int
	Params     FeeParams
	ParamsOK   bool // false → se usaron los defaults
	Result     EnsembleResult
	Decision   ApplyDecision
	AppliedTP  bool
	AppliedSL  bool
	DryRun     bool
	ApplyErr   string
}

// Applied indica si algún campo llegó al engine en esta evaluación.
func (e Evaluation) Applied() bool {
	return e.AppliedTP || e.AppliedSL
}

// AppliedUpdate es un push exitoso a POST /params/update.
type AppliedUpdate struct {
	ID           string
	EvaluationID string
	At           time.Time
	TP           *float64 // nil si no se empujó
	SL           *float64
}
