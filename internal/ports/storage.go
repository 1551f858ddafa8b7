package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// EvaluationLog es el log append-only de evaluaciones (una fila por reevaluación).
type EvaluationLog interface {
	Append(ctx context.Context, eval domain.Evaluation) error
}

// HistoryStorage persiste el histórico de evaluaciones, pushes y round trips.
type HistoryStorage interface {
	// SaveEvaluation persiste el resumen de una evaluación.
	SaveEvaluation(ctx context.Context, eval domain.Evaluation) error

	// SaveAppliedUpdate registra un push exitoso al engine.
	SaveAppliedUpdate(ctx context.Context, update domain.AppliedUpdate) error

	// LastAppliedState reconstruye el AppliedState desde los pushes registrados.
	LastAppliedState(ctx context.Context) (domain.AppliedState, error)

	// SaveRoundTrips hace upsert de los round trips, deduplicando por (entry, exit).
	// Devuelve cuántos eran nuevos.
	SaveRoundTrips(ctx context.Context, rts []domain.RoundTrip) (int, error)

	// GetRoundTrips devuelve los round trips con exit en [from, to], ordenados por exit.
	GetRoundTrips(ctx context.Context, from, to time.Time) ([]domain.RoundTrip, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
