package portfolio

import (
	"math"
	"sync"
	"time"

	"trading-guard-go/internal/models"
)

const (
	// maxReturnSamples caps the return series used for volatility.
	maxReturnSamples = 120
	// orderRateWindow is the sliding window for the order rate metric.
	orderRateWindow = time.Minute
)

// MetricsTracker turns raw equity and price observations into the risk
// metrics of a PortfolioSnapshot: peak-relative drawdown, day-anchored PnL,
// stddev-of-returns volatility and a sliding-minute order rate.
type MetricsTracker struct {
	mu           sync.Mutex
	lastValue    float64
	peakValue    float64
	dayAnchor    time.Time
	dayOpenValue float64
	lastPrice    float64
	returns      []float64
	orderTimes   []time.Time
}

// NewMetricsTracker creates an empty tracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		returns: make([]float64, 0, maxReturnSamples),
	}
}

// ObserveEquity records an account equity observation. The first observation
// of a calendar day anchors that day's PnL baseline.
func (t *MetricsTracker) ObserveEquity(value float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := now.Truncate(24 * time.Hour)
	if t.dayAnchor.IsZero() || day.After(t.dayAnchor) {
		t.dayAnchor = day
		t.dayOpenValue = value
	}

	t.lastValue = value
	if value > t.peakValue {
		t.peakValue = value
	}
}

// ObservePrice records a mark price observation and folds its return into the
// volatility series.
func (t *MetricsTracker) ObservePrice(price float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastPrice > 0 {
		r := (price - t.lastPrice) / t.lastPrice
		if len(t.returns) == maxReturnSamples {
			copy(t.returns, t.returns[1:])
			t.returns = t.returns[:maxReturnSamples-1]
		}
		t.returns = append(t.returns, r)
	}
	t.lastPrice = price
}

// RecordOrder counts an order submission toward the order rate.
func (t *MetricsTracker) RecordOrder(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orderTimes = append(t.orderTimes, now)
	t.pruneOrdersLocked(now)
}

// Snapshot assembles the current metrics into an immutable snapshot.
func (t *MetricsTracker) Snapshot(now time.Time) *models.PortfolioSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	drawdownPct := 0.0
	if t.peakValue > 0 && t.lastValue < t.peakValue {
		drawdownPct = (t.peakValue - t.lastValue) / t.peakValue * 100
	}

	t.pruneOrdersLocked(now)
	orderRate := float64(len(t.orderTimes)) / orderRateWindow.Minutes()

	return &models.PortfolioSnapshot{
		Time:        now,
		Value:       t.lastValue,
		DrawdownPct: drawdownPct,
		DailyPnL:    t.lastValue - t.dayOpenValue,
		Volatility:  stddev(t.returns) * 100,
		OrderRate:   orderRate,
	}
}

// pruneOrdersLocked drops order timestamps older than the rate window.
func (t *MetricsTracker) pruneOrdersLocked(now time.Time) {
	cutoff := now.Add(-orderRateWindow)
	start := 0
	for start < len(t.orderTimes) && !t.orderTimes[start].After(cutoff) {
		start++
	}
	if start > 0 {
		copy(t.orderTimes, t.orderTimes[start:])
		t.orderTimes = t.orderTimes[:len(t.orderTimes)-start]
	}
}

func stddev(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples) - 1)

	return math.Sqrt(variance)
}
