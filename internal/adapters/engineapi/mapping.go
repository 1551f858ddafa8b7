package engineapi

import (
	"strconv"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// mapFeeParams convierte los parámetros raw a domain.FeeParams.
// Cada campo ausente, ilegible o negativo cae a su default.
func mapFeeParams(r rawParams) domain.FeeParams {
	def := domain.DefaultFeeParams()
	return domain.FeeParams{
		PreferMaker:  r.PreferMaker.Or(def.PreferMaker),
		MakerFeeBuy:  nonNegative(r.MakerFeeBuy, def.MakerFeeBuy),
		MakerFeeSell: nonNegative(r.MakerFeeSell, def.MakerFeeSell),
		TakerFeeBuy:  nonNegative(r.TakerFeeBuy, def.TakerFeeBuy),
		TakerFeeSell: nonNegative(r.TakerFeeSell, def.TakerFeeSell),
		Slippage:     nonNegative(r.Slippage, def.Slippage),
		FeeBufferPct: nonNegative(r.FeeBufferPct, def.FeeBufferPct),
		MinTPPct:     nonNegative(r.MinTPPct, 0),
		MinSLPct:     nonNegative(r.MinSLPct, 0),
	}
}

func nonNegative(f flexFloat, def float64) float64 {
	if v := f.Or(def); v >= 0 {
		return v
	}
	return def
}

// mapTrades convierte los fills raw a domain.RawTrade.
// No filtra: los registros malformados salen con lado vacío o precio/cantidad 0
// y la reconstrucción los descarta y los cuenta.
func mapTrades(raw []rawTrade) []domain.RawTrade {
	out := make([]domain.RawTrade, 0, len(raw))
	for _, r := range raw {
		side, _ := domain.ParseSide(r.Side)
		ts := r.Time.raw
		if ts == "" {
			ts = r.TS.raw
		}
		out = append(out, domain.RawTrade{
			Side:      side,
			Timestamp: parseTimestamp(ts),
			Price:     r.Price.Or(0),
			Quantity:  r.Qty.Or(0),
			Fee:       r.Fee.Or(0),
		})
	}
	return out
}

// parseTimestamp acepta unix en segundos (entero o decimal), milisegundos o ISO-8601.
// Devuelve time.Time{} si no puede interpretarlo.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > 1e12 {
			f /= 1000
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
