package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ohlcvhub/internal/fetcher"
	"ohlcvhub/internal/model"
)

type mockBatchFetcher struct {
	mock.Mock
}

func (m *mockBatchFetcher) FetchMany(ctx context.Context, reqs []fetcher.Request, concurrency int) []fetcher.BatchResult {
	args := m.Called(reqs, concurrency)
	return args.Get(0).([]fetcher.BatchResult)
}

func okResult(req fetcher.Request) fetcher.BatchResult {
	return fetcher.BatchResult{Request: req, Result: &fetcher.Result{
		Symbol:   req.Symbol,
		Interval: model.OneHour,
		Provider: "binance",
		Candles:  []model.Candle{{Time: time.Unix(1700000000, 0), Open: 1, High: 1, Low: 1, Close: 1}},
	}}
}

func TestRegisterAllGroupsBySchedule(t *testing.T) {
	f := &mockBatchFetcher{}
	s := NewScheduler(context.Background(), f, 3)

	err := s.RegisterAll([]Watch{
		{Symbol: "BTCUSDT", Interval: "1h", Limit: 24, Cron: "0 1 * * * *"},
		{Symbol: "ETHUSDT", Interval: "1h", Limit: 24, Cron: "0 1 * * * *"},
		{Symbol: "AAPL", Interval: "1d", Limit: 30, Cron: "0 0 22 * * 1-5"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0 0 22 * * 1-5", "0 1 * * * *"}, s.specs())
	assert.Len(t, s.Cron.Entries(), 2)
}

func TestRegisterAllRejectsBadCron(t *testing.T) {
	s := NewScheduler(context.Background(), &mockBatchFetcher{}, 1)
	err := s.RegisterAll([]Watch{{Symbol: "AAPL", Interval: "1d", Limit: 5, Cron: "not a cron"}})
	assert.Error(t, err)
}

func TestRunGroupCountsOutcomes(t *testing.T) {
	btc := fetcher.Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 24}
	bad := fetcher.Request{Symbol: "NOPE", Interval: "1h", Limit: 24}

	f := &mockBatchFetcher{}
	f.On("FetchMany", []fetcher.Request{btc, bad}, 3).Return([]fetcher.BatchResult{
		okResult(btc),
		{Request: bad, Err: errors.New("no provider available")},
	}).Once()

	s := NewScheduler(context.Background(), f, 3)
	require.NoError(t, s.RegisterAll([]Watch{
		{Symbol: btc.Symbol, Interval: btc.Interval, Limit: btc.Limit, Cron: "0 1 * * * *"},
		{Symbol: bad.Symbol, Interval: bad.Interval, Limit: bad.Limit, Cron: "0 1 * * * *"},
	}))

	ok, failed := s.runGroup("0 1 * * * *")
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	f.AssertExpectations(t)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(context.Background(), &mockBatchFetcher{}, 1)
	s.Start()
	s.Stop()
}
