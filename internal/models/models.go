package models

import "time"

// Config defines all tunable parameters of the guard process.
type Config struct {
	Symbol            string        `json:"symbol"`             // trading pair the portfolio is concentrated in, e.g. "BTCUSDT"
	IsTestnet         bool          `json:"is_testnet"`         // use the Binance testnet endpoints
	LiveAPIURL        string        `json:"live_api_url"`       // REST base URL for production
	LiveWSURL         string        `json:"live_ws_url"`        // WebSocket base URL for production
	TestnetAPIURL     string        `json:"testnet_api_url"`    // REST base URL for the testnet
	TestnetWSURL      string        `json:"testnet_ws_url"`     // WebSocket base URL for the testnet
	JournalPath       string        `json:"journal_path"`       // directory for the Badger trip journal
	EvalIntervalSec   int           `json:"eval_interval_sec"`  // seconds between portfolio evaluations
	ReportIntervalSec int           `json:"report_interval_sec"` // seconds between status reports (0 disables)
	Risk              RiskConfig    `json:"risk"`               // per-dimension risk thresholds
	Breaker           BreakerConfig `json:"breaker"`            // policy applied to each risk breaker
	LogConfig         LogConfig     `json:"log"`                // logging configuration
}

// BreakerConfig is the JSON shape of the circuit breaker policy. Durations are
// plain seconds so the config file stays free of Go duration syntax.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`   // consecutive failures before tripping open
	SuccessThreshold int `json:"success_threshold"`   // half-open successes before closing again
	OpenDurationSec  int `json:"open_duration_sec"`   // seconds to stay open before probing
	MaxHalfOpenCalls int `json:"max_half_open_calls"` // concurrent probes admitted while half-open
}

// RiskConfig holds one threshold per risk dimension. A snapshot value beyond
// its threshold is treated as a failure signal for that dimension's breaker.
type RiskConfig struct {
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`       // percent decline from the equity peak
	MaxDailyLoss   float64 `json:"max_daily_loss"`         // quote-currency loss since the daily open
	MaxVolatility  float64 `json:"max_volatility"`         // percent stddev of recent mark price returns
	MaxOrderRate   float64 `json:"max_order_rate_per_min"` // orders per minute
}

// LogConfig defines logging behaviour.
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path when file output is on
	MaxSize    int    `json:"max_size"`    // max size of a single log file (MB)
	MaxBackups int    `json:"max_backups"` // rotated files to keep
	MaxAge     int    `json:"max_age"`     // days to keep rotated files
	Compress   bool   `json:"compress"`    // gzip rotated files
}

// PortfolioSnapshot is a point-in-time view of portfolio risk, produced by a
// portfolio.Provider. It is immutable once handed out.
type PortfolioSnapshot struct {
	Time        time.Time `json:"time"`
	Value       float64   `json:"value"`        // account equity in quote currency
	DrawdownPct float64   `json:"drawdown_pct"` // percent decline from the observed peak
	DailyPnL    float64   `json:"daily_pnl"`    // equity change since the daily open
	Volatility  float64   `json:"volatility"`   // percent stddev of recent mark price returns
	OrderRate   float64   `json:"order_rate"`   // orders per minute over the last minute
}
