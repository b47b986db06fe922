package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trading-guard-go/internal/models"
)

// BinanceProvider implements Provider against the Binance futures API.
// Account equity is polled on demand; the mark price feeding the volatility
// metric arrives over a websocket stream.
type BinanceProvider struct {
	client    *futures.Client
	symbol    string
	wsBaseURL string
	tracker   *MetricsTracker
	logger    *zap.Logger

	mu       sync.Mutex
	wsConn   *websocket.Conn
	stopChan chan struct{}
}

// NewBinanceProvider creates a provider for the given account and symbol.
// baseURL and wsBaseURL select between production and testnet endpoints.
func NewBinanceProvider(apiKey, secretKey, baseURL, wsBaseURL, symbol string, logger *zap.Logger) *BinanceProvider {
	client := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	return &BinanceProvider{
		client:    client,
		symbol:    symbol,
		wsBaseURL: wsBaseURL,
		tracker:   NewMetricsTracker(),
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start connects the mark price stream and begins feeding the tracker.
func (p *BinanceProvider) Start() error {
	conn, err := p.dial()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.wsConn = conn
	p.mu.Unlock()

	go p.readLoop(conn)
	return nil
}

// Close stops the mark price stream.
func (p *BinanceProvider) Close() {
	close(p.stopChan)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wsConn != nil {
		p.wsConn.Close()
		p.wsConn = nil
	}
}

// RecordOrder counts an order submission toward the order-rate metric. The
// embedding trading system calls this for every order it sends.
func (p *BinanceProvider) RecordOrder() {
	p.tracker.RecordOrder(time.Now())
}

// GetSnapshot polls account equity and assembles a snapshot from the tracked
// metrics.
func (p *BinanceProvider) GetSnapshot() (*models.PortfolioSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acct, err := p.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch futures account: %w", err)
	}

	equity, err := strconv.ParseFloat(acct.TotalMarginBalance, 64)
	if err != nil {
		return nil, fmt.Errorf("parse account equity %q: %w", acct.TotalMarginBalance, err)
	}

	now := time.Now()
	p.tracker.ObserveEquity(equity, now)
	return p.tracker.Snapshot(now), nil
}

func (p *BinanceProvider) dial() (*websocket.Conn, error) {
	streamURL := fmt.Sprintf("%s/ws/%s@markPrice@1s", p.wsBaseURL, strings.ToLower(p.symbol))
	conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mark price stream %s: %w", streamURL, err)
	}
	p.logger.Info("mark price stream connected", zap.String("url", streamURL))
	return conn, nil
}

// readLoop consumes mark price updates until Close. On a read error it
// redials with a fixed delay; the snapshot path keeps working off the last
// observed prices in the meantime.
func (p *BinanceProvider) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.stopChan:
				return
			default:
			}
			p.logger.Warn("mark price stream read failed, reconnecting", zap.Error(err))
			conn.Close()

			conn = p.redial()
			if conn == nil {
				return
			}
			continue
		}

		var update struct {
			MarkPrice string `json:"p"`
		}
		if err := json.Unmarshal(message, &update); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(update.MarkPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		p.tracker.ObservePrice(price, time.Now())
	}
}

// redial retries the stream connection until it succeeds or Close is called.
func (p *BinanceProvider) redial() *websocket.Conn {
	for {
		select {
		case <-p.stopChan:
			return nil
		case <-time.After(5 * time.Second):
		}

		conn, err := p.dial()
		if err != nil {
			p.logger.Warn("mark price stream reconnect failed", zap.Error(err))
			continue
		}

		p.mu.Lock()
		p.wsConn = conn
		p.mu.Unlock()
		return conn
	}
}
