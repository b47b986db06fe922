package portfolio

import "trading-guard-go/internal/models"

// Provider supplies point-in-time portfolio risk data. The guard never
// constructs or persists this data; it is pulled from the surrounding trading
// system (live exchange account, or a recorded equity curve in replay runs).
type Provider interface {
	GetSnapshot() (*models.PortfolioSnapshot, error)
}
