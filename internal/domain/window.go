package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultSLCap es el techo duro del SL final, independiente del quantile.
const DefaultSLCap = 0.03

// ErrInvalidWindows indica una especificación de ventanas inválida.
var ErrInvalidWindows = errors.New("invalid window specification")

// WindowSpec es una ventana de los últimos Size round trips con su peso en el blend de TP.
type WindowSpec struct {
	Size   int
	Weight float64 // normalizado: la suma de todas las ventanas es 1
}

// ParseWindows interpreta una lista "size[:weight]" separada por comas, p.ej.
// "10:0.4,50:0.3,100:0.2,250:0.075,1000:0.025".
//
// O todas las ventanas llevan peso o ninguna. Sin pesos se usa 1/√size.
// En ambos casos los pesos se normalizan para que sumen 1.
func ParseWindows(s string) ([]WindowSpec, error) {
	var (
		out           []WindowSpec
		withWeight    int
		withoutWeight int
	)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		sizeStr, weightStr, hasWeight := strings.Cut(tok, ":")
		size, err := strconv.Atoi(strings.TrimSpace(sizeStr))
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("%w: bad size in %q", ErrInvalidWindows, tok)
		}

		w := SpecWeightUnset
		if hasWeight {
			w, err = strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
			if err != nil || w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: bad weight in %q", ErrInvalidWindows, tok)
			}
			withWeight++
		} else {
			withoutWeight++
		}
		out = append(out, WindowSpec{Size: size, Weight: w})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no windows in %q", ErrInvalidWindows, s)
	}
	if withWeight > 0 && withoutWeight > 0 {
		return nil, fmt.Errorf("%w: either every window has a weight or none does", ErrInvalidWindows)
	}
	if withoutWeight > 0 {
		for i := range out {
			out[i].Weight = 1 / math.Sqrt(float64(out[i].Size))
		}
	}
	return NormalizeWeights(out), nil
}

// SpecWeightUnset marca una ventana parseada sin peso explícito.
const SpecWeightUnset = -1.0

// NormalizeWeights devuelve una copia con los pesos escalados para sumar 1.
// Si la suma no es positiva reparte el peso a partes iguales.
func NormalizeWeights(windows []WindowSpec) []WindowSpec {
	out := make([]WindowSpec, len(windows))
	copy(out, windows)

	var sum float64
	for _, w := range out {
		if w.Weight > 0 {
			sum += w.Weight
		}
	}
	for i := range out {
		switch {
		case sum <= 0:
			out[i].Weight = 1 / float64(len(out))
		case out[i].Weight <= 0:
			out[i].Weight = 0
		default:
			out[i].Weight /= sum
		}
	}
	return out
}

// FormatWindows es la inversa de ParseWindows (siempre con pesos explícitos).
func FormatWindows(windows []WindowSpec) string {
	parts := make([]string, len(windows))
	for i, w := range windows {
		parts[i] = fmt.Sprintf("%d:%s", w.Size, strconv.FormatFloat(w.Weight, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// EnsembleConfig son los parámetros comunes a todas las ventanas.
type EnsembleConfig struct {
	Size       float64 // nocional para el optimizador de TP
	Grid       TPGrid
	SLQuantile float64
	SLFloor    float64
	SLCap      float64 // 0 → DefaultSLCap
}

// WindowResult es la evaluación independiente de una ventana.
type WindowResult struct {
	Spec    WindowSpec
	Samples int // round trips efectivamente usados (≤ Spec.Size)
	TP      Recommendation
	SL      SLEstimate
}

// EnsembleResult es el blend final de todas las ventanas.
type EnsembleResult struct {
	BreakEven float64
	TP        float64
	SL        float64
	Windows   []WindowResult
}

// TPList devuelve el TP de cada ventana (NaN si la ventana no produjo TP).
func (e EnsembleResult) TPList() []float64 {
	out := make([]float64, len(e.Windows))
	for i, w := range e.Windows {
		out[i] = math.NaN()
		if w.TP.HasTP {
			out[i] = w.TP.TP
		}
	}
	return out
}

// SLList devuelve el SL de cada ventana.
func (e EnsembleResult) SLList() []float64 {
	out := make([]float64, len(e.Windows))
	for i, w := range e.Windows {
		out[i] = w.SL.SL
	}
	return out
}

// Weights devuelve los pesos usados por ventana.
func (e EnsembleResult) Weights() []float64 {
	out := make([]float64, len(e.Windows))
	for i, w := range e.Windows {
		out[i] = w.Spec.Weight
	}
	return out
}

// SampleSizes devuelve el tamaño de muestra de cada ventana.
func (e EnsembleResult) SampleSizes() []int {
	out := make([]int, len(e.Windows))
	for i, w := range e.Windows {
		out[i] = w.Samples
	}
	return out
}

// Ensemble evalúa cada ventana sobre la cola de returns y mezcla los resultados.
//
//	tp_final = Σ(tp_i × w_i) / Σ(w_i)   solo ventanas con TP
//	sl_final = max(sl_i)                el más conservador
//
// Después se acota: tp ∈ [breakEven+1bp, Grid.Max], sl ∈ [SLFloor, SLCap].
// Todas las ventanas usan el mismo breakEven del ciclo.
func Ensemble(returns []float64, windows []WindowSpec, breakEven float64, cfg EnsembleConfig) EnsembleResult {
	res := EnsembleResult{
		BreakEven: breakEven,
		Windows:   make([]WindowResult, 0, len(windows)),
	}

	var tps, weights []float64
	sl := math.Inf(-1)
	for _, w := range windows {
		seg := Tail(returns, w.Size)
		wr := WindowResult{
			Spec:    w,
			Samples: len(seg),
			TP:      OptimizeTP(seg, breakEven, cfg.Size, cfg.Grid),
			SL:      EstimateSL(seg, cfg.SLQuantile, cfg.SLFloor),
		}
		if wr.TP.HasTP {
			tps = append(tps, wr.TP.TP)
			weights = append(weights, w.Weight)
		}
		sl = math.Max(sl, wr.SL.SL)
		res.Windows = append(res.Windows, wr)
	}

	tp, ok := BlendTP(tps, weights)
	if !ok {
		tp = cfg.Grid.Min
	}
	if len(res.Windows) == 0 {
		sl = cfg.SLFloor
	}

	res.TP = ClampTP(tp, breakEven, cfg.Grid.Max)
	res.SL = ClampSL(sl, cfg.SLFloor, cfg.SLCap)
	return res
}

// BlendTP devuelve la media ponderada de values. false si no hay peso positivo.
func BlendTP(values, weights []float64) (float64, bool) {
	var num, den float64
	for i, v := range values {
		if i >= len(weights) {
			break
		}
		num += v * weights[i]
		den += weights[i]
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// ClampTP acota el TP a [breakEven+1bp, max]. El límite inferior prevalece.
func ClampTP(tp, breakEven, tpMax float64) float64 {
	return math.Max(breakEven+BreakEvenEpsilon, math.Min(tpMax, tp))
}

// ClampSL acota el SL a [floor, cap]. El floor prevalece; cap ≤ 0 usa DefaultSLCap.
func ClampSL(sl, floor, slCap float64) float64 {
	if slCap <= 0 {
		slCap = DefaultSLCap
	}
	return math.Max(floor, math.Min(slCap, sl))
}

// Tail devuelve los últimos n elementos (todos si hay menos de n).
func Tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
