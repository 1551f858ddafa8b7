package ports

import (
	"context"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// TradeProvider obtiene el histórico completo de fills del engine.
type TradeProvider interface {
	// FetchTrades devuelve los fills ya normalizados, en el orden del engine.
	// Los registros malformados se descartan en el adapter o en la reconstrucción.
	FetchTrades(ctx context.Context) ([]domain.RawTrade, error)
}
