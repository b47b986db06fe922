package reporter

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"trading-guard-go/internal/breaker"
	"trading-guard-go/internal/guard"
	"trading-guard-go/internal/journal"
)

// WriteStatus renders the per-dimension breaker table plus the trading gate
// verdict.
func WriteStatus(w io.Writer, stats []breaker.Stats, trips []guard.Dimension, allowTrade bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Risk Circuit Breakers")
	t.AppendHeader(table.Row{"Breaker", "Type", "State", "Failures", "Successes", "Opened At"})

	for _, s := range stats {
		openedAt := "-"
		if !s.OpenedAt.IsZero() {
			openedAt = s.OpenedAt.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{s.Name, s.TypeName, s.StateName, s.FailureCount, s.SuccessCount, openedAt})
	}

	verdict := "trading allowed"
	if !allowTrade {
		verdict = "TRADING HALTED"
	}
	t.AppendFooter(table.Row{verdict, "", "", "", "active trips", len(trips)})
	t.Render()
}

// WriteRecentTrips renders the newest journal entries.
func WriteRecentTrips(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Recent Transitions")
	t.AppendHeader(table.Row{"Time", "Breaker", "From", "To"})

	for _, e := range entries {
		t.AppendRow(table.Row{e.Time.Format(time.RFC3339), e.Breaker, e.From, e.To})
	}
	t.Render()
}
