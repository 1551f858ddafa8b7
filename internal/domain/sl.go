package domain

import (
	"fmt"
	"math"
	"sort"
)

// MinLossesForQuantile es el mínimo de pérdidas necesario para estimar el SL por quantile.
// Por debajo se usa el floor sin excepción.
const MinLossesForQuantile = 5

// Límites del quantile de pérdidas aceptado.
const (
	MinSLQuantile = 0.5
	MaxSLQuantile = 0.99
)

// SLMethodFloor identifica un SL que cayó al floor por falta de datos.
const SLMethodFloor = "floor"

// SLEstimate es el stop-loss recomendado para una muestra.
type SLEstimate struct {
	SL     float64
	Method string // "floor" | "quantile_0.80"
	Losses int    // pérdidas disponibles en la muestra
}

// ClampQuantile limita q a [0.5, 0.99].
func ClampQuantile(q float64) float64 {
	return math.Max(MinSLQuantile, math.Min(q, MaxSLQuantile))
}

// Quantile calcula el quantile q de values con interpolación lineal entre
// los dos estadísticos de orden que lo rodean:
//
//	idx  = (n − 1) × q
//	v    = s[⌊idx⌋] × (1 − frac) + s[⌈idx⌉] × frac
//
// No modifica values. Devuelve false si values está vacío.
func Quantile(values []float64, q float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	sort.Float64s(vs)

	idx := float64(len(vs)-1) * q
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return vs[lo], true
	}
	frac := idx - float64(lo)
	return vs[lo]*(1-frac) + vs[hi]*frac, true
}

// Losses devuelve el valor absoluto de los retornos negativos.
func Losses(returns []float64) []float64 {
	var out []float64
	for _, r := range returns {
		if r < 0 {
			out = append(out, math.Abs(r))
		}
	}
	return out
}

// EstimateSL estima el stop-loss a partir de la distribución de pérdidas históricas.
// Con menos de MinLossesForQuantile pérdidas devuelve el floor; con suficientes,
// max(floor, quantile). El floor se respeta siempre.
func EstimateSL(returns []float64, q, floor float64) SLEstimate {
	losses := Losses(returns)
	if len(losses) < MinLossesForQuantile {
		return SLEstimate{SL: floor, Method: SLMethodFloor, Losses: len(losses)}
	}

	q = ClampQuantile(q)
	v, _ := Quantile(losses, q)
	return SLEstimate{
		SL:     math.Max(floor, v),
		Method: fmt.Sprintf("quantile_%.2f", q),
		Losses: len(losses),
	}
}
