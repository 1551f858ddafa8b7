package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- BreakEven ---

func TestBreakEven_MakerDefaults(t *testing.T) {
	// 0.00075×2 + 0.0002 + 0.0005 = 0.0022
	assert.InDelta(t, 0.0022, DefaultFeeParams().BreakEven(), 1e-12)
	assert.Equal(t, "maker", DefaultFeeParams().Profile())
}

func TestBreakEven_Taker(t *testing.T) {
	p := DefaultFeeParams()
	p.PreferMaker = false
	// 0.001×2 + 0.0002 + 0.0005 = 0.0027
	assert.InDelta(t, 0.0027, p.BreakEven(), 1e-12)
	assert.Equal(t, "taker", p.Profile())
}

// --- TP grid ---

func TestTPGrid_CandidatesStartAboveBreakEven(t *testing.T) {
	g := TPGrid{Min: 0.001, Max: 0.004, Step: 0.001}
	c := g.Candidates(0.0022)

	require.NotEmpty(t, c)
	assert.InDelta(t, 0.0023, c[0], 1e-12)
	assert.InDelta(t, 0.0033, c[len(c)-1], 1e-12)
	assert.Len(t, c, 2)
}

func TestTPGrid_CandidatesIncludeMax(t *testing.T) {
	g := TPGrid{Min: 0.002, Max: 0.015, Step: 0.0005}
	c := g.Candidates(0.0)

	assert.Len(t, c, 27)
	assert.InDelta(t, 0.002, c[0], 1e-12)
	assert.InDelta(t, 0.015, c[len(c)-1], 1e-12)
}

func TestTPGrid_Validate(t *testing.T) {
	assert.NoError(t, TPGrid{Min: 0.002, Max: 0.015, Step: 0.0005}.Validate())
	assert.ErrorIs(t, TPGrid{Min: 0.002, Max: 0.015, Step: 0}.Validate(), ErrInvalidGrid)
	assert.ErrorIs(t, TPGrid{Min: 0.02, Max: 0.015, Step: 0.001}.Validate(), ErrInvalidGrid)
}

// --- OptimizeTP ---

func TestOptimizeTP_EmptySample(t *testing.T) {
	rec := OptimizeTP(nil, 0.0022, 50, TPGrid{Min: 0.002, Max: 0.015, Step: 0.0005})
	assert.False(t, rec.HasTP)
	assert.Equal(t, 0.0, rec.HitRate)
	assert.Equal(t, 0.0, rec.NetPerTrade)
}

func TestOptimizeTP_PicksMaxExpectedNet(t *testing.T) {
	grid := TPGrid{Min: 0.001, Max: 0.01, Step: 0.001}
	returns := []float64{0.0025, 0.0025, 0.0025, 0.006, -0.01}
	// be=0 → net(tp) = 50×tp×hr
	// 0.001→0.04, 0.002→0.08, 0.003→0.03, 0.006→0.06
	rec := OptimizeTP(returns, 0, 50, grid)

	require.True(t, rec.HasTP)
	assert.InDelta(t, 0.002, rec.TP, 1e-12)
	assert.InDelta(t, 0.8, rec.HitRate, 1e-12)
	assert.InDelta(t, 0.08, rec.NetPerTrade, 1e-12)
}

func TestOptimizeTP_TieGoesToHigherTP(t *testing.T) {
	grid := TPGrid{Min: 0.001, Max: 0.002, Step: 0.001}
	// net(0.001) = 1×0.001×1.0 = 0.001 ; net(0.002) = 1×0.002×0.5 = 0.001
	returns := []float64{0.0015, 0.003}
	rec := OptimizeTP(returns, 0, 1, grid)

	require.True(t, rec.HasTP)
	assert.InDelta(t, 0.002, rec.TP, 1e-12)
	assert.InDelta(t, 0.5, rec.HitRate, 1e-12)
}

func TestOptimizeTP_NoHitsFallsBackToLowerBound(t *testing.T) {
	grid := TPGrid{Min: 0.002, Max: 0.015, Step: 0.0005}
	be := 0.0022
	returns := []float64{-0.01, 0.0001, 0.001}

	rec := OptimizeTP(returns, be, 50, grid)
	require.True(t, rec.HasTP, "tp is never None once there is a sample")
	assert.Equal(t, 0.0, rec.HitRate)
	assert.Equal(t, 0.0, rec.NetPerTrade)
	assert.Equal(t, math.Max(grid.Min, be+0.0001), rec.TP)
}

func TestOptimizeTP_LowerBoundAboveMax(t *testing.T) {
	grid := TPGrid{Min: 0.001, Max: 0.002, Step: 0.0005}
	rec := OptimizeTP([]float64{0.05}, 0.01, 50, grid)

	require.True(t, rec.HasTP)
	assert.InDelta(t, 0.0101, rec.TP, 1e-12)
	assert.Equal(t, 0.0, rec.HitRate)
}

func TestOptimizeSizes_NetScalesWithSize(t *testing.T) {
	grid := TPGrid{Min: 0.001, Max: 0.01, Step: 0.001}
	returns := []float64{0.004, 0.004, 0.002, -0.003}
	out := OptimizeSizes(returns, 0, []float64{20, 200}, grid)

	require.Len(t, out, 2)
	assert.Equal(t, out[0].TP, out[1].TP)
	assert.InDelta(t, out[0].NetPerTrade*10, out[1].NetPerTrade, 1e-12)
	assert.Equal(t, 200.0, out[1].Size)
}

// --- SL ---

func TestEstimateSL_FloorWhenFewLosses(t *testing.T) {
	returns := []float64{-0.01, -0.02, -0.03, -0.04, 0.05, 0.01}
	for _, q := range []float64{0.5, 0.8, 0.99} {
		est := EstimateSL(returns, q, 0.006)
		assert.Equal(t, 0.006, est.SL)
		assert.Equal(t, SLMethodFloor, est.Method)
		assert.Equal(t, 4, est.Losses)
	}
}

func TestEstimateSL_InterpolatedQuantile(t *testing.T) {
	returns := []float64{-0.05, -0.01, 0.02, -0.03, -0.02, -0.04}
	est := EstimateSL(returns, 0.8, 0.006)

	// idx = 4×0.8 = 3.2 → 0.04×0.8 + 0.05×0.2
	assert.InDelta(t, 0.042, est.SL, 1e-12)
	assert.Equal(t, "quantile_0.80", est.Method)
	assert.Equal(t, 5, est.Losses)
}

func TestEstimateSL_FloorBackstop(t *testing.T) {
	returns := []float64{-0.001, -0.001, -0.002, -0.002, -0.003}
	est := EstimateSL(returns, 0.8, 0.006)

	assert.Equal(t, 0.006, est.SL)
	assert.Equal(t, "quantile_0.80", est.Method)
}

func TestEstimateSL_QuantileClamped(t *testing.T) {
	returns := []float64{-0.01, -0.02, -0.03, -0.04, -0.05}

	est := EstimateSL(returns, 0.1, 0)
	assert.Equal(t, "quantile_0.50", est.Method)
	assert.InDelta(t, 0.03, est.SL, 1e-12)

	est = EstimateSL(returns, 1.0, 0)
	assert.Equal(t, "quantile_0.99", est.Method)
	assert.InDelta(t, 0.0496, est.SL, 1e-12)
}

func TestQuantile_DoesNotMutateInput(t *testing.T) {
	in := []float64{0.03, 0.01, 0.02}
	v, ok := Quantile(in, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 0.02, v, 1e-12)
	assert.Equal(t, []float64{0.03, 0.01, 0.02}, in)

	_, ok = Quantile(nil, 0.5)
	assert.False(t, ok)
}
