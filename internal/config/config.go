package config

import (
	"encoding/json"
	"fmt"
	"os"

	"trading-guard-go/internal/models"
)

// LoadConfig reads the JSON config file at path and validates it. Invalid
// thresholds fail here, at construction time, never at evaluation time.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every tunable that the guard depends on.
func Validate(cfg *models.Config) error {
	if cfg.EvalIntervalSec <= 0 {
		return fmt.Errorf("eval_interval_sec must be positive, got %d", cfg.EvalIntervalSec)
	}
	if cfg.ReportIntervalSec < 0 {
		return fmt.Errorf("report_interval_sec must not be negative, got %d", cfg.ReportIntervalSec)
	}

	b := cfg.Breaker
	if b.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive, got %d", b.FailureThreshold)
	}
	if b.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker.success_threshold must be positive, got %d", b.SuccessThreshold)
	}
	if b.OpenDurationSec <= 0 {
		return fmt.Errorf("breaker.open_duration_sec must be positive, got %d", b.OpenDurationSec)
	}
	if b.MaxHalfOpenCalls < 1 {
		return fmt.Errorf("breaker.max_half_open_calls must be at least 1, got %d", b.MaxHalfOpenCalls)
	}

	r := cfg.Risk
	if r.MaxDrawdownPct <= 0 {
		return fmt.Errorf("risk.max_drawdown_pct must be positive, got %v", r.MaxDrawdownPct)
	}
	if r.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be positive, got %v", r.MaxDailyLoss)
	}
	if r.MaxVolatility <= 0 {
		return fmt.Errorf("risk.max_volatility must be positive, got %v", r.MaxVolatility)
	}
	if r.MaxOrderRate <= 0 {
		return fmt.Errorf("risk.max_order_rate_per_min must be positive, got %v", r.MaxOrderRate)
	}

	return nil
}
