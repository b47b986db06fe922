package guard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trading-guard-go/internal/breaker"
	"trading-guard-go/internal/models"
)

// stubProvider serves a settable snapshot or error.
type stubProvider struct {
	mu   sync.Mutex
	snap models.PortfolioSnapshot
	err  error
}

func (s *stubProvider) set(snap models.PortfolioSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.err = nil
}

func (s *stubProvider) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubProvider) GetSnapshot() (*models.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	snap := s.snap
	return &snap, nil
}

func testLimits() models.RiskConfig {
	return models.RiskConfig{
		MaxDrawdownPct: 10,
		MaxDailyLoss:   500,
		MaxVolatility:  5,
		MaxOrderRate:   30,
	}
}

func testPolicy() breaker.Config {
	return breaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenDuration:     time.Minute,
		MaxHalfOpenCalls: 1,
	}
}

func healthySnapshot() models.PortfolioSnapshot {
	return models.PortfolioSnapshot{
		Time:        time.Now(),
		Value:       10000,
		DrawdownPct: 2,
		DailyPnL:    50,
		Volatility:  1,
		OrderRate:   5,
	}
}

func newTestGuard(t *testing.T, policy breaker.Config) (*TradingCircuitBreakers, *stubProvider, *breaker.Manager) {
	t.Helper()
	provider := &stubProvider{snap: healthySnapshot()}
	manager := breaker.NewManager(zap.NewNop())
	tg, err := New(testLimits(), policy, manager, provider, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	return tg, provider, manager
}

func TestNewRequiresProvider(t *testing.T) {
	manager := breaker.NewManager(zap.NewNop())
	_, err := New(testLimits(), testPolicy(), manager, nil, time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRequiresPositiveInterval(t *testing.T) {
	manager := breaker.NewManager(zap.NewNop())
	provider := &stubProvider{snap: healthySnapshot()}

	_, err := New(testLimits(), testPolicy(), manager, provider, 0, zap.NewNop())
	assert.Error(t, err)

	_, err = New(testLimits(), testPolicy(), manager, provider, -time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRegistersOneBreakerPerDimension(t *testing.T) {
	_, _, manager := newTestGuard(t, testPolicy())

	names := manager.Names()
	assert.Len(t, names, 4)
	for _, dim := range dimensions {
		assert.Contains(t, names, BreakerName(dim))
	}
}

func TestHealthyPortfolioAllowsTrading(t *testing.T) {
	tg, _, _ := newTestGuard(t, testPolicy())

	require.NoError(t, tg.EvaluatePortfolio())
	assert.True(t, tg.AllowTrade())
	assert.Empty(t, tg.ActiveTrips())
}

func TestDrawdownBreachHaltsTrading(t *testing.T) {
	tg, provider, manager := newTestGuard(t, testPolicy())

	snap := healthySnapshot()
	snap.DrawdownPct = 12 // limit is 10
	provider.set(snap)

	require.NoError(t, tg.EvaluatePortfolio())
	assert.False(t, tg.AllowTrade())
	assert.Equal(t, []Dimension{DimensionDrawdown}, tg.ActiveTrips())

	// Only the drawdown breaker tripped.
	snapshot := manager.StatusSnapshot()
	assert.Equal(t, breaker.StateOpen, snapshot[BreakerName(DimensionDrawdown)])
	assert.Equal(t, breaker.StateClosed, snapshot[BreakerName(DimensionDailyLoss)])
	assert.Equal(t, breaker.StateClosed, snapshot[BreakerName(DimensionVolatility)])
	assert.Equal(t, breaker.StateClosed, snapshot[BreakerName(DimensionOrderRate)])
}

func TestEachDimensionTripsItsOwnBreaker(t *testing.T) {
	cases := []struct {
		dim    Dimension
		mutate func(*models.PortfolioSnapshot)
	}{
		{DimensionDrawdown, func(s *models.PortfolioSnapshot) { s.DrawdownPct = 15 }},
		{DimensionDailyLoss, func(s *models.PortfolioSnapshot) { s.DailyPnL = -600 }},
		{DimensionVolatility, func(s *models.PortfolioSnapshot) { s.Volatility = 8 }},
		{DimensionOrderRate, func(s *models.PortfolioSnapshot) { s.OrderRate = 45 }},
	}
	for _, tc := range cases {
		t.Run(string(tc.dim), func(t *testing.T) {
			tg, provider, _ := newTestGuard(t, testPolicy())

			snap := healthySnapshot()
			tc.mutate(&snap)
			provider.set(snap)

			require.NoError(t, tg.EvaluatePortfolio())
			assert.Equal(t, []Dimension{tc.dim}, tg.ActiveTrips())
			assert.False(t, tg.AllowTrade())
		})
	}
}

func TestValueAtLimitDoesNotTrip(t *testing.T) {
	tg, provider, _ := newTestGuard(t, testPolicy())

	// Breaches are strict comparisons: exactly at the limit is still fine.
	snap := healthySnapshot()
	snap.DrawdownPct = 10
	snap.DailyPnL = -500
	snap.Volatility = 5
	snap.OrderRate = 30
	provider.set(snap)

	require.NoError(t, tg.EvaluatePortfolio())
	assert.True(t, tg.AllowTrade())
	assert.Empty(t, tg.ActiveTrips())
}

func TestRecoveryAfterOpenDuration(t *testing.T) {
	policy := testPolicy()
	policy.OpenDuration = 20 * time.Millisecond
	tg, provider, _ := newTestGuard(t, policy)

	snap := healthySnapshot()
	snap.DrawdownPct = 12
	provider.set(snap)
	require.NoError(t, tg.EvaluatePortfolio())
	require.False(t, tg.AllowTrade())

	provider.set(healthySnapshot())
	time.Sleep(30 * time.Millisecond)

	// Two healthy evaluations satisfy the success threshold.
	require.NoError(t, tg.EvaluatePortfolio())
	require.NoError(t, tg.EvaluatePortfolio())
	assert.True(t, tg.AllowTrade())
	assert.Empty(t, tg.ActiveTrips())
}

func TestProviderErrorPropagatesWithoutRecording(t *testing.T) {
	tg, provider, _ := newTestGuard(t, testPolicy())

	provErr := errors.New("account endpoint unavailable")
	provider.fail(provErr)

	err := tg.EvaluatePortfolio()
	require.Error(t, err)
	assert.ErrorIs(t, err, provErr)

	// A failed snapshot is not a risk signal; no breaker moved.
	assert.True(t, tg.AllowTrade())
	for _, st := range tg.Status() {
		assert.Equal(t, 0, st.FailureCount, st.Name)
	}
}

func TestStatusCanonicalOrder(t *testing.T) {
	tg, _, _ := newTestGuard(t, testPolicy())

	stats := tg.Status()
	require.Len(t, stats, 4)
	for i, dim := range dimensions {
		assert.Equal(t, BreakerName(dim), stats[i].Name)
		assert.Equal(t, breaker.TypeTradingRisk, stats[i].Type)
	}
}

func TestStartStopEvaluationLoop(t *testing.T) {
	tg, provider, _ := newTestGuard(t, testPolicy())

	snap := healthySnapshot()
	snap.Volatility = 8
	provider.set(snap)

	tg.Start()
	defer tg.Stop()

	require.Eventually(t, func() bool {
		return !tg.AllowTrade()
	}, time.Second, 5*time.Millisecond, "the loop should trip the volatility breaker")

	tg.Stop()
	tg.Stop() // stopping twice is safe
}
