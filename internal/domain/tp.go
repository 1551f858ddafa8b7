package domain

import (
	"errors"
	"fmt"
	"math"
)

// BreakEvenEpsilon es el margen mínimo (1 bp) por encima del break-even
// donde empieza la búsqueda de TP.
const BreakEvenEpsilon = 0.0001

// gridTolerance absorbe el error de redondeo al comparar con TPMax.
const gridTolerance = 1e-12

// ErrInvalidGrid indica una grilla de TP inutilizable.
var ErrInvalidGrid = errors.New("invalid tp grid")

// TPGrid define la grilla de búsqueda del take-profit.
type TPGrid struct {
	Min  float64
	Max  float64
	Step float64
}

// Validate comprueba que la grilla sea recorrible.
func (g TPGrid) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("%w: step must be > 0 (got %v)", ErrInvalidGrid, g.Step)
	}
	if g.Min < 0 || g.Max <= 0 {
		return fmt.Errorf("%w: bounds must be positive (min=%v max=%v)", ErrInvalidGrid, g.Min, g.Max)
	}
	if g.Min > g.Max {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidGrid, g.Min, g.Max)
	}
	return nil
}

// LowerBound devuelve el límite inferior efectivo: max(Min, breakEven + 1bp).
func (g TPGrid) LowerBound(breakEven float64) float64 {
	return math.Max(g.Min, breakEven+BreakEvenEpsilon)
}

// Candidates construye la lista de TPs candidatos desde LowerBound hasta Max inclusive.
// Cada candidato se calcula como lower + i×step (sin acumular error) y se redondea a 8 decimales.
func (g TPGrid) Candidates(breakEven float64) []float64 {
	lower := g.LowerBound(breakEven)
	if lower > g.Max+gridTolerance {
		return nil
	}
	if g.Step <= 0 {
		return []float64{round8(lower)}
	}

	out := make([]float64, 0, int((g.Max-lower)/g.Step)+2)
	for i := 0; ; i++ {
		v := lower + float64(i)*g.Step
		if v > g.Max+gridTolerance {
			break
		}
		out = append(out, round8(v))
	}
	return out
}

// Recommendation es el resultado del optimizador de TP para una muestra.
type Recommendation struct {
	TP          float64
	HasTP       bool // false solo si la muestra estaba vacía
	HitRate     float64
	NetPerTrade float64
}

// OptimizeTP busca el TP que maximiza el beneficio esperado por trade.
//
// Modelo binario "llega al TP o no":
//
//	hitRate(tp) = #{r ≥ tp} / n
//	net(tp)     = size × (tp − breakEven) × hitRate(tp)
//
// En empate gana el candidato escaneado después (el TP más alto).
// Si ningún candidato tiene hits, devuelve el límite inferior con hitRate=0.
func OptimizeTP(returns []float64, breakEven, size float64, grid TPGrid) Recommendation {
	n := len(returns)
	if n == 0 {
		return Recommendation{}
	}

	var best Recommendation
	for _, tp := range grid.Candidates(breakEven) {
		hits := 0
		for _, r := range returns {
			if r >= tp {
				hits++
			}
		}
		hr := float64(hits) / float64(n)
		net := size * (tp - breakEven) * hr
		if !best.HasTP || net >= best.NetPerTrade {
			best = Recommendation{TP: tp, HasTP: true, HitRate: hr, NetPerTrade: net}
		}
	}

	if best.HitRate == 0 {
		return Recommendation{TP: grid.LowerBound(breakEven), HasTP: true}
	}
	return best
}

// SizeRecommendation es el TP óptimo para un tamaño nocional concreto.
type SizeRecommendation struct {
	Size float64
	Recommendation
}

// OptimizeSizes corre OptimizeTP para cada tamaño sobre la misma muestra.
// El TP óptimo no depende del tamaño; el net por trade sí escala con él.
func OptimizeSizes(returns []float64, breakEven float64, sizes []float64, grid TPGrid) []SizeRecommendation {
	out := make([]SizeRecommendation, 0, len(sizes))
	for _, size := range sizes {
		out = append(out, SizeRecommendation{
			Size:           size,
			Recommendation: OptimizeTP(returns, breakEven, size, grid),
		})
	}
	return out
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
