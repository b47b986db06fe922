// Package journal persists an audit trail of circuit breaker trips. It
// records transitions only; breaker state itself is never restored from disk,
// a restarted process always begins closed.
package journal

import "time"

// Entry describes one breaker state transition.
type Entry struct {
	Breaker string    `json:"breaker"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Time    time.Time `json:"time"`
}

// Journal is an append-only transition log.
type Journal interface {
	// Append records one transition.
	Append(e Entry) error

	// Recent returns up to n entries, newest first.
	Recent(n int) ([]Entry, error)

	// Close releases the underlying store.
	Close() error
}
