package portfolio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"trading-guard-go/internal/models"
)

// ErrReplayExhausted is returned once every recorded row has been replayed.
var ErrReplayExhausted = errors.New("replay data exhausted")

type replayRow struct {
	time   time.Time
	equity float64
	price  float64
}

// ReplayProvider replays a recorded equity curve through the guard, one row
// per GetSnapshot call. The CSV format is a header line followed by
// timestamp_ms,equity[,price] rows; when the price column is absent the
// equity itself drives the volatility metric.
type ReplayProvider struct {
	mu      sync.Mutex
	rows    []replayRow
	idx     int
	tracker *MetricsTracker
}

// NewReplayProvider loads the recorded curve at path.
func NewReplayProvider(path string) (*ReplayProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read replay data %s: %w", path, err)
	}
	if len(records) <= 1 {
		return nil, fmt.Errorf("replay data %s is empty or has only a header", path)
	}
	records = records[1:]

	rows := make([]replayRow, 0, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("replay data %s: row %d has %d columns, want at least 2", path, i+2, len(record))
		}
		tsMs, errT := strconv.ParseInt(record[0], 10, 64)
		equity, errE := strconv.ParseFloat(record[1], 64)
		if errT != nil || errE != nil {
			return nil, fmt.Errorf("replay data %s: row %d is not parseable", path, i+2)
		}

		row := replayRow{time: time.UnixMilli(tsMs), equity: equity, price: equity}
		if len(record) >= 3 {
			price, err := strconv.ParseFloat(record[2], 64)
			if err != nil {
				return nil, fmt.Errorf("replay data %s: row %d price is not parseable", path, i+2)
			}
			row.price = price
		}
		rows = append(rows, row)
	}

	return &ReplayProvider{
		rows:    rows,
		tracker: NewMetricsTracker(),
	}, nil
}

// Len returns the number of recorded rows.
func (p *ReplayProvider) Len() int { return len(p.rows) }

// GetSnapshot consumes the next recorded row. Returns ErrReplayExhausted
// after the last row.
func (p *ReplayProvider) GetSnapshot() (*models.PortfolioSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idx >= len(p.rows) {
		return nil, ErrReplayExhausted
	}
	row := p.rows[p.idx]
	p.idx++

	p.tracker.ObserveEquity(row.equity, row.time)
	p.tracker.ObservePrice(row.price, row.time)
	return p.tracker.Snapshot(row.time), nil
}
