package portfolio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equity.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplayProviderIteratesRows(t *testing.T) {
	path := writeReplayFile(t, "timestamp_ms,equity,price\n"+
		"1717329600000,10000,65000\n"+
		"1717329660000,9500,64000\n"+
		"1717329720000,9000,63000\n")

	p, err := NewReplayProvider(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	snap, err := p.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 10000.0, snap.Value)
	assert.Equal(t, 0.0, snap.DrawdownPct)

	snap, err = p.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 9500.0, snap.Value)
	assert.InDelta(t, 5.0, snap.DrawdownPct, 1e-9)

	snap, err = p.GetSnapshot()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, snap.DrawdownPct, 1e-9)
	assert.InDelta(t, -1000.0, snap.DailyPnL, 1e-9)

	_, err = p.GetSnapshot()
	assert.ErrorIs(t, err, ErrReplayExhausted)
}

func TestReplayProviderPriceColumnOptional(t *testing.T) {
	path := writeReplayFile(t, "timestamp_ms,equity\n"+
		"1717329600000,10000\n"+
		"1717329660000,9900\n")

	p, err := NewReplayProvider(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	_, err = p.GetSnapshot()
	require.NoError(t, err)
	snap, err := p.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 9900.0, snap.Value)
}

func TestReplayProviderRejectsBadData(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"header only", "timestamp_ms,equity\n"},
		{"too few columns", "timestamp_ms,equity\n1717329600000\n"},
		{"bad timestamp", "timestamp_ms,equity\nnot-a-number,10000\n"},
		{"bad equity", "timestamp_ms,equity\n1717329600000,abc\n"},
		{"bad price", "timestamp_ms,equity,price\n1717329600000,10000,abc\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.csv")
			if tc.content != "" {
				path = writeReplayFile(t, tc.content)
			}
			_, err := NewReplayProvider(path)
			assert.Error(t, err)
		})
	}
}
