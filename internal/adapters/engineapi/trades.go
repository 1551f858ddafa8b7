package engineapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// FetchTrades lee el histórico completo de fills de GET /trades.
func (c *Client) FetchTrades(ctx context.Context) ([]domain.RawTrade, error) {
	var resp tradesResponse
	if err := c.get(ctx, "/trades", &resp); err != nil {
		return nil, fmt.Errorf("engineapi.FetchTrades: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("engineapi.FetchTrades: %w", ErrNotOK)
	}

	trades := mapTrades(resp.Items)
	slog.Debug("fetched trades", "count", len(trades))
	return trades, nil
}
