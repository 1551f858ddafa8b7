package manager_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	"github.com/alejandrodnm/riskadapt/internal/manager"
	"github.com/alejandrodnm/riskadapt/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockParams struct {
	params domain.FeeParams
	err    error
}

func (m *mockParams) FetchParams(_ context.Context) (domain.FeeParams, error) {
	if m.err != nil {
		return domain.DefaultFeeParams(), m.err
	}
	return m.params, nil
}

type mockTrades struct {
	trades []domain.RawTrade
	err    error
}

func (m *mockTrades) FetchTrades(_ context.Context) ([]domain.RawTrade, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.RawTrade, len(m.trades))
	copy(out, m.trades)
	return out, nil
}

type mockUpdater struct {
	calls []ports.ParamsUpdate
	err   error
}

func (m *mockUpdater) UpdateParams(_ context.Context, u ports.ParamsUpdate) error {
	m.calls = append(m.calls, u)
	return m.err
}

type mockLog struct {
	rows []domain.Evaluation
}

func (m *mockLog) Append(_ context.Context, eval domain.Evaluation) error {
	m.rows = append(m.rows, eval)
	return nil
}

type mockNotifier struct {
	notified []domain.Evaluation
	err      error
}

func (m *mockNotifier) Notify(_ context.Context, eval domain.Evaluation) error {
	m.notified = append(m.notified, eval)
	return m.err
}

type mockStorage struct {
	evaluations []domain.Evaluation
	updates     []domain.AppliedUpdate
	roundTrips  int
	saved       []domain.RoundTrip
	saveCalls   int
	applied     domain.AppliedState
	err         error
}

func (m *mockStorage) SaveEvaluation(_ context.Context, eval domain.Evaluation) error {
	m.evaluations = append(m.evaluations, eval)
	return m.err
}

func (m *mockStorage) SaveAppliedUpdate(_ context.Context, u domain.AppliedUpdate) error {
	m.updates = append(m.updates, u)
	return m.err
}

func (m *mockStorage) LastAppliedState(_ context.Context) (domain.AppliedState, error) {
	return m.applied, m.err
}

func (m *mockStorage) SaveRoundTrips(_ context.Context, rts []domain.RoundTrip) (int, error) {
	m.saveCalls++
	m.roundTrips = len(rts)
	m.saved = rts
	return len(rts), m.err
}

func (m *mockStorage) GetRoundTrips(_ context.Context, _, _ time.Time) ([]domain.RoundTrip, error) {
	return m.saved, m.err
}

func (m *mockStorage) Close() error { return nil }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- helpers ---

var t0 = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

// pairs genera un buy @100 y un sell @100×(1+r) por cada return, sin fees.
func pairs(returns ...float64) []domain.RawTrade {
	var out []domain.RawTrade
	for i, r := range returns {
		at := t0.Add(time.Duration(2*i) * time.Minute)
		out = append(out,
			domain.RawTrade{Side: domain.SideBuy, Timestamp: at, Price: 100, Quantity: 1},
			domain.RawTrade{Side: domain.SideSell, Timestamp: at.Add(time.Minute), Price: 100 * (1 + r), Quantity: 1},
		)
	}
	return out
}

func defaultConfig() manager.Config {
	return manager.Config{
		PollInterval:       10 * time.Millisecond,
		ReevaluateInterval: 15 * time.Minute,
		Windows:            []domain.WindowSpec{{Size: 10, Weight: 0.6}, {Size: 50, Weight: 0.4}},
		Ensemble: domain.EnsembleConfig{
			Size:       50,
			Grid:       domain.TPGrid{Min: 0.002, Max: 0.015, Step: 0.0005},
			SLQuantile: 0.8,
			SLFloor:    0.006,
			SLCap:      0.03,
		},
		Gate:         domain.GateConfig{HysteresisBps: 2, Cooldown: 30 * time.Minute},
		ApplyEnabled: true,
		SummarySizes: []float64{20, 200},
	}
}

type fixture struct {
	params   *mockParams
	trades   *mockTrades
	updater  *mockUpdater
	log      *mockLog
	storage  *mockStorage
	notifier *mockNotifier
	clock    *fakeClock
}

func newFixture() *fixture {
	return &fixture{
		params:   &mockParams{params: domain.DefaultFeeParams()},
		trades:   &mockTrades{trades: pairs(0.01, -0.004, 0.006, 0.008, -0.012, 0.005)},
		updater:  &mockUpdater{},
		log:      &mockLog{},
		storage:  &mockStorage{},
		notifier: &mockNotifier{},
		clock:    &fakeClock{t: t0.Add(time.Hour)},
	}
}

func (f *fixture) manager(cfg manager.Config) *manager.Manager {
	ids := 0
	return manager.New(cfg, manager.Deps{
		Params:    f.params,
		Trades:    f.trades,
		Updater:   f.updater,
		Log:       f.log,
		Storage:   f.storage,
		Notifiers: []ports.Notifier{f.notifier},
	},
		manager.WithClock(f.clock.Now),
		manager.WithIDs(func() string { ids++; return fmt.Sprintf("id-%d", ids) }),
	)
}

// --- tests ---

func TestRunOnce_FirstCycleAppliesBoth(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "id-1", eval.ID)
	assert.Equal(t, 6, eval.RoundTrips)
	assert.True(t, eval.ParamsOK)
	assert.True(t, eval.AppliedTP)
	assert.True(t, eval.AppliedSL)
	assert.False(t, eval.DryRun)
	assert.Empty(t, eval.ApplyErr)

	require.Len(t, f.updater.calls, 1)
	require.NotNil(t, f.updater.calls[0].MinTPPct)
	require.NotNil(t, f.updater.calls[0].MinSLPct)
	assert.Equal(t, eval.Result.TP, *f.updater.calls[0].MinTPPct)
	assert.Equal(t, eval.Result.SL, *f.updater.calls[0].MinSLPct)

	applied := m.State().Applied()
	assert.True(t, applied.HasTP)
	assert.Equal(t, eval.Result.TP, applied.LastTP)
	assert.Equal(t, f.clock.Now(), applied.LastApplyAt)

	// Registrado en todos los sinks
	assert.Len(t, f.log.rows, 1)
	assert.Len(t, f.notifier.notified, 1)
	assert.Len(t, f.storage.evaluations, 1)
	require.Len(t, f.storage.updates, 1)
	assert.Equal(t, "id-1", f.storage.updates[0].EvaluationID)
	assert.Equal(t, 6, f.storage.roundTrips)
}

func TestRunOnce_ResultBounds(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	be := domain.DefaultFeeParams().BreakEven()
	assert.InDelta(t, be, eval.Result.BreakEven, 1e-12)
	assert.GreaterOrEqual(t, eval.Result.TP, be+domain.BreakEvenEpsilon)
	assert.LessOrEqual(t, eval.Result.TP, 0.015)
	assert.GreaterOrEqual(t, eval.Result.SL, 0.006)
	assert.LessOrEqual(t, eval.Result.SL, 0.03)
	assert.Len(t, eval.Result.Windows, 2)
}

func TestRunOnce_SameInputsSecondCycleWithinHysteresis(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	_, _, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Cooldown vencido pero TP/SL idénticos → nada que empujar
	assert.True(t, eval.Decision.CooldownElapsed)
	assert.False(t, eval.Decision.ShouldApply())
	assert.False(t, eval.Applied())
	assert.Len(t, f.updater.calls, 1)
}

func TestRunOnce_NoRoundTrips(t *testing.T) {
	f := newFixture()
	f.trades.trades = nil
	m := f.manager(defaultConfig())

	_, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.updater.calls)
	assert.Empty(t, f.log.rows)
}

func TestRunOnce_TradesFailureIsNoop(t *testing.T) {
	f := newFixture()
	f.trades.err = errors.New("connection refused")
	m := f.manager(defaultConfig())

	_, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.updater.calls)
}

func TestRunOnce_ParamsFailureUsesDefaults(t *testing.T) {
	f := newFixture()
	f.params.err = errors.New("timeout")
	m := f.manager(defaultConfig())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, eval.ParamsOK)
	assert.Equal(t, domain.DefaultFeeParams(), eval.Params)
}

func TestRunOnce_PushFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	f.updater.err = errors.New("engine down")
	m := f.manager(defaultConfig())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "engine down", eval.ApplyErr)
	assert.False(t, eval.Applied())
	assert.Equal(t, domain.AppliedState{}, m.State().Applied())
	assert.Empty(t, f.storage.updates)
	assert.Len(t, f.log.rows, 1, "failed push is still logged")

	// El siguiente ciclo reintenta la misma comparación
	f.updater.err = nil
	f.clock.Advance(time.Minute)
	eval, _, err = m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, eval.AppliedTP)
	assert.True(t, eval.AppliedSL)
	assert.Len(t, f.updater.calls, 2)
}

func TestRunOnce_DryRunNeverPushes(t *testing.T) {
	f := newFixture()
	cfg := defaultConfig()
	cfg.DryRun = true
	m := f.manager(cfg)

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, eval.DryRun)
	assert.True(t, eval.Decision.ShouldApply())
	assert.False(t, eval.Applied())
	assert.Empty(t, f.updater.calls)
	assert.Equal(t, domain.AppliedState{}, m.State().Applied())
}

func TestRunOnce_ApplyDisabled(t *testing.T) {
	f := newFixture()
	cfg := defaultConfig()
	cfg.ApplyEnabled = false
	m := f.manager(cfg)

	eval, _, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, eval.DryRun)
	assert.Empty(t, f.updater.calls)
}

func TestRunOnce_UnsortedTradesAreOrdered(t *testing.T) {
	f := newFixture()
	sorted := f.trades.trades

	reversed := make([]domain.RawTrade, len(sorted))
	for i, tr := range sorted {
		reversed[len(sorted)-1-i] = tr
	}

	a, _, err := f.manager(defaultConfig()).RunOnce(context.Background())
	require.NoError(t, err)

	f.trades.trades = reversed
	b, _, err := f.manager(defaultConfig()).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.RoundTrips, b.RoundTrips)
	assert.Equal(t, a.Result.TP, b.Result.TP)
	assert.Equal(t, a.Result.SL, b.Result.SL)
}

func TestRunOnce_SinkErrorsAreNotFatal(t *testing.T) {
	f := newFixture()
	f.storage.err = errors.New("disk full")
	f.notifier.err = errors.New("broken pipe")
	m := f.manager(defaultConfig())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, eval.AppliedTP)
}

func TestRunOnce_Cancelled(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := m.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestRestore_CooldownBlocksApply(t *testing.T) {
	f := newFixture()
	f.storage.applied = domain.AppliedState{
		LastTP: 0.014, HasTP: true,
		LastSL: 0.029, HasSL: true,
		LastApplyAt: f.clock.Now().Add(-time.Minute),
	}
	cfg := defaultConfig()
	cfg.RestoreState = true
	m := f.manager(cfg)

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, f.storage.applied, m.State().Applied())

	eval, ok, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, eval.Decision.CooldownElapsed)
	assert.False(t, eval.Applied())
	assert.Empty(t, f.updater.calls)
}

func TestRestore_Disabled(t *testing.T) {
	f := newFixture()
	f.storage.applied = domain.AppliedState{LastTP: 0.01, HasTP: true}
	m := f.manager(defaultConfig())

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, domain.AppliedState{}, m.State().Applied())
}

func TestSummarize_DoesNotApply(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	s, err := m.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, s.RoundTrips)
	assert.Len(t, s.Result.Windows, 2)
	require.Len(t, s.Sizes, 2)
	assert.Equal(t, s.Sizes[0].TP, s.Sizes[1].TP, "optimal TP does not depend on size")
	assert.InDelta(t, s.Sizes[0].NetPerTrade*10, s.Sizes[1].NetPerTrade, 1e-12)

	assert.Empty(t, f.updater.calls)
	assert.Empty(t, f.log.rows)
	assert.Equal(t, domain.AppliedState{}, m.State().Applied())
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	// El primer ciclo evalúa; los siguientes no (mismos round trips, intervalo no vencido)
	assert.Len(t, f.log.rows, 1)
	assert.Len(t, f.updater.calls, 1)
}

func TestPoll_ReevaluatesWhenRoundTripsChange(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	_, ok, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "first poll always evaluates")

	f.clock.Advance(time.Minute)
	_, ok, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "same round trips, interval not elapsed")

	f.trades.trades = pairs(0.01, -0.004, 0.006, 0.008, -0.012, 0.005, 0.007)
	f.clock.Advance(time.Minute)
	eval, ok, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, eval.RoundTrips)

	n, at := m.State().LastReevaluation()
	assert.Equal(t, 7, n)
	assert.Equal(t, f.clock.Now(), at)
	assert.Len(t, f.log.rows, 2)
}

func TestPoll_ReevaluatesWhenIntervalElapses(t *testing.T) {
	f := newFixture()
	cfg := defaultConfig()
	m := f.manager(cfg)

	_, ok, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(cfg.ReevaluateInterval - time.Second)
	_, ok, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(time.Second)
	eval, ok, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, eval.RoundTrips)
	assert.Len(t, f.log.rows, 2)
}

func TestPoll_NoRoundTripsNeverReevaluates(t *testing.T) {
	f := newFixture()
	f.trades.trades = nil
	cfg := defaultConfig()
	m := f.manager(cfg)

	for i := 0; i < 3; i++ {
		_, ok, err := m.Poll(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		f.clock.Advance(cfg.ReevaluateInterval)
	}

	assert.Empty(t, f.log.rows)
	assert.Empty(t, f.updater.calls)
	assert.Zero(t, f.storage.saveCalls)
	n, at := m.State().LastReevaluation()
	assert.Equal(t, -1, n)
	assert.True(t, at.IsZero())
}

func TestPoll_StoresRoundTripsOnlyWhenReevaluating(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	_, _, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.storage.saveCalls)

	for i := 0; i < 3; i++ {
		f.clock.Advance(10 * time.Second)
		_, ok, err := m.Poll(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, f.storage.saveCalls)
}

func TestSummarize_ReportsStoredRoundTrips(t *testing.T) {
	f := newFixture()
	m := f.manager(defaultConfig())

	_, _, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	s, err := m.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, s.Stored)
}

func TestSummarize_WithoutStorage(t *testing.T) {
	f := newFixture()
	m := manager.New(defaultConfig(), manager.Deps{
		Params:  f.params,
		Trades:  f.trades,
		Updater: f.updater,
	}, manager.WithClock(f.clock.Now))

	s, err := m.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, s.Stored)
	assert.Equal(t, 6, s.RoundTrips)
}
