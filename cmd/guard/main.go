package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trading-guard-go/internal/breaker"
	"trading-guard-go/internal/config"
	"trading-guard-go/internal/guard"
	"trading-guard-go/internal/journal"
	"trading-guard-go/internal/logger"
	"trading-guard-go/internal/models"
	"trading-guard-go/internal/portfolio"
	"trading-guard-go/internal/reporter"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or replay")
	dataPath := flag.String("data", "", "path to a recorded equity CSV for replay mode")
	flag.Parse()

	// A default logger so config loading itself can log; replaced below once
	// the real log config is known.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, reading credentials from the environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("failed to load config: %v", err)
	}

	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	jr, err := journal.NewBadgerJournal(cfg.JournalPath)
	if err != nil {
		logger.S().Fatalf("failed to open trip journal at %s: %v", cfg.JournalPath, err)
	}
	defer jr.Close()

	manager := breaker.NewManager(logger.L())
	manager.OnStateChange(func(name string, from, to breaker.CircuitState) {
		err := jr.Append(journal.Entry{
			Breaker: name,
			From:    from.String(),
			To:      to.String(),
			Time:    time.Now(),
		})
		if err != nil {
			logger.S().Errorf("failed to journal transition of %s: %v", name, err)
		}
	})

	switch *mode {
	case "live":
		runLiveMode(cfg, manager, jr)
	case "replay":
		if *dataPath == "" {
			logger.S().Fatal("replay mode requires --data with a recorded equity CSV")
		}
		runReplayMode(cfg, manager, jr, *dataPath)
	default:
		logger.S().Fatalf("unknown running mode: %s, choose 'live' or 'replay'", *mode)
	}
}

func breakerPolicy(cfg models.BreakerConfig) breaker.Config {
	return breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		OpenDuration:     time.Duration(cfg.OpenDurationSec) * time.Second,
		MaxHalfOpenCalls: cfg.MaxHalfOpenCalls,
	}
}

// runLiveMode watches the live Binance account until interrupted.
func runLiveMode(cfg *models.Config, manager *breaker.Manager, jr journal.Journal) {
	logger.S().Info("--- starting live guard mode ---")

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		logger.S().Fatal("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set")
	}

	baseURL, wsBaseURL := cfg.LiveAPIURL, cfg.LiveWSURL
	if cfg.IsTestnet {
		baseURL, wsBaseURL = cfg.TestnetAPIURL, cfg.TestnetWSURL
		logger.S().Info("using the Binance testnet")
	}

	provider := portfolio.NewBinanceProvider(apiKey, secretKey, baseURL, wsBaseURL, cfg.Symbol, logger.L())
	if err := provider.Start(); err != nil {
		logger.S().Fatalf("failed to start portfolio provider: %v", err)
	}
	defer provider.Close()

	evalInterval := time.Duration(cfg.EvalIntervalSec) * time.Second
	tg, err := guard.New(cfg.Risk, breakerPolicy(cfg.Breaker), manager, provider, evalInterval, logger.L())
	if err != nil {
		logger.S().Fatalf("failed to build trading circuit breakers: %v", err)
	}

	tg.Start()
	defer tg.Stop()

	var reportTick <-chan time.Time
	if cfg.ReportIntervalSec > 0 {
		ticker := time.NewTicker(time.Duration(cfg.ReportIntervalSec) * time.Second)
		defer ticker.Stop()
		reportTick = ticker.C
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reportTick:
			reporter.WriteStatus(os.Stdout, tg.Status(), tg.ActiveTrips(), tg.AllowTrade())
		case <-quit:
			logger.S().Info("shutting down")
			reporter.WriteStatus(os.Stdout, tg.Status(), tg.ActiveTrips(), tg.AllowTrade())
			writeRecentTrips(jr)
			return
		}
	}
}

// runReplayMode feeds a recorded equity curve through the guard and reports
// where trading would have been halted.
func runReplayMode(cfg *models.Config, manager *breaker.Manager, jr journal.Journal, dataPath string) {
	logger.S().Info("--- starting replay mode ---")

	provider, err := portfolio.NewReplayProvider(dataPath)
	if err != nil {
		logger.S().Fatalf("failed to load replay data: %v", err)
	}
	logger.S().Infof("replaying %d snapshots from %s", provider.Len(), dataPath)

	evalInterval := time.Duration(cfg.EvalIntervalSec) * time.Second
	tg, err := guard.New(cfg.Risk, breakerPolicy(cfg.Breaker), manager, provider, evalInterval, logger.L())
	if err != nil {
		logger.S().Fatalf("failed to build trading circuit breakers: %v", err)
	}

	halted := false
	haltedSteps := 0
	for step := 1; ; step++ {
		if err := tg.EvaluatePortfolio(); err != nil {
			if errors.Is(err, portfolio.ErrReplayExhausted) {
				break
			}
			logger.S().Fatalf("replay evaluation failed: %v", err)
		}

		allowed := tg.AllowTrade()
		if !allowed {
			haltedSteps++
		}
		if allowed == halted {
			halted = !allowed
			if halted {
				logger.S().Warnf("step %d: trading halted, tripped dimensions: %v", step, tg.ActiveTrips())
			} else {
				logger.S().Infof("step %d: trading resumed", step)
			}
		}
	}

	logger.S().Infof("replay finished, trading was halted for %d snapshots", haltedSteps)
	reporter.WriteStatus(os.Stdout, tg.Status(), tg.ActiveTrips(), tg.AllowTrade())
	writeRecentTrips(jr)
}

func writeRecentTrips(jr journal.Journal) {
	entries, err := jr.Recent(10)
	if err != nil {
		logger.S().Errorf("failed to read trip journal: %v", err)
		return
	}
	reporter.WriteRecentTrips(os.Stdout, entries)
}
