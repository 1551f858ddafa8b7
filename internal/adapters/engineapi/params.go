package engineapi

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/alejandrodnm/riskadapt/internal/ports"
)

// FetchParams lee GET /params. Con ok=false devuelve los defaults junto con ErrNotOK
// para que el caller decida si loguearlo.
func (c *Client) FetchParams(ctx context.Context) (domain.FeeParams, error) {
	var resp paramsResponse
	if err := c.get(ctx, "/params", &resp); err != nil {
		return domain.DefaultFeeParams(), fmt.Errorf("engineapi.FetchParams: %w", err)
	}
	if !resp.OK {
		return domain.DefaultFeeParams(), fmt.Errorf("engineapi.FetchParams: %w", ErrNotOK)
	}
	return mapFeeParams(resp.Params), nil
}

// UpdateParams empuja MIN_TP_PCT / MIN_SL_PCT. Solo se envían los campos no nil.
func (c *Client) UpdateParams(ctx context.Context, update ports.ParamsUpdate) error {
	if update.Empty() {
		return nil
	}
	body := updateRequest{MinTPPct: update.MinTPPct, MinSLPct: update.MinSLPct}

	var resp okResponse
	if err := c.post(ctx, "/params/update", body, &resp); err != nil {
		return fmt.Errorf("engineapi.UpdateParams: %w", err)
	}
	if !resp.OK {
		if resp.Error != "" {
			return fmt.Errorf("engineapi.UpdateParams: %w: %s", ErrNotOK, resp.Error)
		}
		return fmt.Errorf("engineapi.UpdateParams: %w", ErrNotOK)
	}
	return nil
}
