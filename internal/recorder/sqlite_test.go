package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRecorderRoundTrip(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer r.Close()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	failed := &FetchRecord{
		At:         base,
		Symbol:     "BTCUSDT",
		Interval:   "1h",
		Limit:      24,
		AssetClass: "crypto",
		ErrorKind:  "no_provider_available",
		Error:      "no provider available",
		Duration:   1500 * time.Millisecond,
		Attempts: []AttemptRecord{
			{Provider: "binance", Try: 1, Outcome: "error", Kind: "rate_limited", Error: "slow down", Elapsed: 200 * time.Millisecond},
			{Provider: "yahoo", Try: 1, Outcome: "empty", Kind: "symbol_not_found"},
		},
	}
	require.NoError(t, r.RecordFetch(failed))
	assert.NotEmpty(t, failed.ID)

	ok := &FetchRecord{
		At:         base.Add(time.Minute),
		Symbol:     "BTCUSDT",
		Interval:   "1h",
		Limit:      24,
		AssetClass: "crypto",
		Provider:   "binance",
		Bars:       24,
		Attempts:   []AttemptRecord{{Provider: "binance", Try: 1, Outcome: "success", Bars: 24}},
	}
	require.NoError(t, r.RecordFetch(ok))
	require.NoError(t, r.RecordFetch(&FetchRecord{At: base, Symbol: "AAPL", Interval: "1d", Limit: 5}))

	got, err := r.RecentFetches("BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, ok.ID, got[0].ID)
	assert.Equal(t, "binance", got[0].Provider)
	assert.Equal(t, 24, got[0].Bars)

	assert.Equal(t, failed.ID, got[1].ID)
	assert.Equal(t, "no_provider_available", got[1].ErrorKind)
	assert.Equal(t, 1500*time.Millisecond, got[1].Duration)
	require.Len(t, got[1].Attempts, 2)
	assert.Equal(t, "rate_limited", got[1].Attempts[0].Kind)
	assert.Equal(t, 200*time.Millisecond, got[1].Attempts[0].Elapsed)
	assert.Equal(t, "yahoo", got[1].Attempts[1].Provider)

	all, err := r.RecentFetches("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordFetch(&FetchRecord{Symbol: "X"}))
	got, err := r.RecentFetches("X", 1)
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, r.Close())
}
