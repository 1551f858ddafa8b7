package ports

import (
	"context"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// ParamsProvider lee los parámetros de coste vigentes del engine.
type ParamsProvider interface {
	// FetchParams devuelve los parámetros actuales. Los campos ausentes
	// vienen ya rellenados con los defaults de domain.DefaultFeeParams.
	FetchParams(ctx context.Context) (domain.FeeParams, error)
}

// ParamsUpdate es el body parcial de POST /params/update. Los campos nil no se envían.
type ParamsUpdate struct {
	MinTPPct *float64
	MinSLPct *float64
}

// Empty indica que no hay nada que empujar.
func (u ParamsUpdate) Empty() bool {
	return u.MinTPPct == nil && u.MinSLPct == nil
}

// ParamsUpdater empuja TP/SL al engine.
type ParamsUpdater interface {
	// UpdateParams devuelve error si la llamada falla o el engine responde ok=false.
	UpdateParams(ctx context.Context, update ParamsUpdate) error
}
