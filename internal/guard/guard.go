// Package guard composes circuit breakers into a trading halt decision: one
// breaker per portfolio risk dimension, tripped by threshold breaches instead
// of failing calls.
package guard

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trading-guard-go/internal/breaker"
	"trading-guard-go/internal/models"
	"trading-guard-go/internal/portfolio"
)

// Dimension identifies one monitored risk dimension.
type Dimension string

const (
	DimensionDrawdown   Dimension = "drawdown"
	DimensionDailyLoss  Dimension = "daily-loss"
	DimensionVolatility Dimension = "volatility"
	DimensionOrderRate  Dimension = "order-rate"
)

// dimensions is the canonical evaluation and reporting order.
var dimensions = []Dimension{
	DimensionDrawdown,
	DimensionDailyLoss,
	DimensionVolatility,
	DimensionOrderRate,
}

// BreakerName returns the registry name of a dimension's breaker.
func BreakerName(d Dimension) string {
	return "risk:" + string(d)
}

// TradingCircuitBreakers halts trading when portfolio risk thresholds are
// breached. It owns one breaker per dimension, created through the manager,
// and consults a portfolio.Provider it does not own.
type TradingCircuitBreakers struct {
	limits   models.RiskConfig
	provider portfolio.Provider
	manager  *breaker.Manager
	breakers map[Dimension]*breaker.CircuitBreaker
	logger   *zap.Logger

	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates the trading layer. Every dimension gets its own breaker under
// the given policy; limits decide when a snapshot counts as a failure.
func New(limits models.RiskConfig, policy breaker.Config, manager *breaker.Manager, provider portfolio.Provider, interval time.Duration, logger *zap.Logger) (*TradingCircuitBreakers, error) {
	if provider == nil {
		return nil, fmt.Errorf("trading breakers: portfolio provider is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("trading breakers: evaluation interval must be positive, got %v", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy.Type = breaker.TypeTradingRisk

	breakers := make(map[Dimension]*breaker.CircuitBreaker, len(dimensions))
	for _, dim := range dimensions {
		cb, err := manager.GetOrCreate(BreakerName(dim), policy)
		if err != nil {
			return nil, fmt.Errorf("trading breakers: create %s: %w", dim, err)
		}
		breakers[dim] = cb
	}

	return &TradingCircuitBreakers{
		limits:   limits,
		provider: provider,
		manager:  manager,
		breakers: breakers,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}, nil
}

// EvaluatePortfolio pulls one snapshot and records a synthetic outcome per
// dimension: a breached threshold is the failure signal, no order has to fail
// for a trading breaker to open.
func (t *TradingCircuitBreakers) EvaluatePortfolio() error {
	snap, err := t.provider.GetSnapshot()
	if err != nil {
		return fmt.Errorf("evaluate portfolio: %w", err)
	}

	for _, dim := range dimensions {
		value, limit, breached := t.check(dim, snap)
		cb := t.breakers[dim]
		if breached {
			t.logger.Warn("risk threshold breached",
				zap.String("dimension", string(dim)),
				zap.Float64("value", value),
				zap.Float64("limit", limit))
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}
	return nil
}

// AllowTrade reports whether an order may be submitted right now: true only
// if every risk breaker currently admits calls.
func (t *TradingCircuitBreakers) AllowTrade() bool {
	for _, dim := range dimensions {
		if !t.breakers[dim].Allow() {
			return false
		}
	}
	return true
}

// ActiveTrips lists the dimensions whose breaker is currently open, in
// canonical order.
func (t *TradingCircuitBreakers) ActiveTrips() []Dimension {
	trips := make([]Dimension, 0, len(dimensions))
	for _, dim := range dimensions {
		if t.breakers[dim].State() == breaker.StateOpen {
			trips = append(trips, dim)
		}
	}
	return trips
}

// Status returns per-dimension breaker diagnostics in canonical order.
func (t *TradingCircuitBreakers) Status() []breaker.Stats {
	stats := make([]breaker.Stats, 0, len(dimensions))
	for _, dim := range dimensions {
		stats = append(stats, t.breakers[dim].Stats())
	}
	return stats
}

// Start runs the evaluation loop on a ticker until Stop. Evaluation errors
// are logged and the loop keeps going; a dead provider must not wedge the
// guard.
func (t *TradingCircuitBreakers) Start() {
	go t.evalLoop()
	t.logger.Info("trading circuit breakers started",
		zap.Duration("interval", t.interval))
}

// Stop terminates the evaluation loop. Safe to call more than once.
func (t *TradingCircuitBreakers) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.logger.Info("trading circuit breakers stopped")
	})
}

func (t *TradingCircuitBreakers) evalLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.EvaluatePortfolio(); err != nil {
				t.logger.Error("portfolio evaluation failed", zap.Error(err))
			}
		case <-t.stopChan:
			return
		}
	}
}

// check compares one snapshot field against its limit.
func (t *TradingCircuitBreakers) check(dim Dimension, snap *models.PortfolioSnapshot) (value, limit float64, breached bool) {
	switch dim {
	case DimensionDrawdown:
		return snap.DrawdownPct, t.limits.MaxDrawdownPct, snap.DrawdownPct > t.limits.MaxDrawdownPct
	case DimensionDailyLoss:
		return snap.DailyPnL, -t.limits.MaxDailyLoss, snap.DailyPnL < -t.limits.MaxDailyLoss
	case DimensionVolatility:
		return snap.Volatility, t.limits.MaxVolatility, snap.Volatility > t.limits.MaxVolatility
	case DimensionOrderRate:
		return snap.OrderRate, t.limits.MaxOrderRate, snap.OrderRate > t.limits.MaxOrderRate
	default:
		return 0, 0, false
	}
}
