package ports

import (
	"context"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// Notifier presenta cada evaluación (consola, métricas).
type Notifier interface {
	Notify(ctx context.Context, eval domain.Evaluation) error
}
