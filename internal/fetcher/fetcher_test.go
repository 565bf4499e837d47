package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcvhub/internal/model"
	"ohlcvhub/internal/provider"
	"ohlcvhub/internal/recorder"
	"ohlcvhub/internal/router"
)

// step is one scripted provider response. A zero step serves generated bars.
type step struct {
	kind  provider.Kind
	bars  []model.Candle
	empty bool
	block bool
}

// scriptedProvider plays its steps in order and repeats the last one.
type scriptedProvider struct {
	name  string
	steps []step

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Fetch(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	p.mu.Lock()
	i := min(p.calls, len(p.steps)-1)
	p.calls++
	p.mu.Unlock()

	var s step
	if i >= 0 {
		s = p.steps[i]
	}
	switch {
	case s.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case s.kind != 0:
		return nil, provider.Errorf(p.name, s.kind, "scripted %s", s.kind)
	case s.empty:
		return []model.Candle{}, nil
	case s.bars != nil:
		return s.bars, nil
	}
	return genBars(interval, limit), nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func genBars(interval model.Interval, n int) []model.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = model.Candle{Time: start.Add(time.Duration(i) * interval.Duration()), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	return out
}

type memRecorder struct {
	mu   sync.Mutex
	recs []recorder.FetchRecord
}

func (m *memRecorder) RecordFetch(rec *recorder.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memRecorder) RecentFetches(string, int) ([]recorder.FetchRecord, error) { return nil, nil }
func (m *memRecorder) Close() error                                              { return nil }

func fastPolicy() Policy {
	return Policy{Timeout: time.Second, RetryBound: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func newTestService(t *testing.T, binance, yahoo *scriptedProvider) (*Service, *memRecorder) {
	t.Helper()
	r, err := router.New(router.DefaultTable(), binance, yahoo)
	require.NoError(t, err)
	rec := &memRecorder{}
	return NewService(r, rec, Config{Default: fastPolicy()}), rec
}

func TestFetchCryptoFromPrimary(t *testing.T) {
	binance := &scriptedProvider{name: "binance"}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, rec := newTestService(t, binance, yahoo)

	res, err := svc.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1d", Limit: 30})
	require.NoError(t, err)
	assert.Equal(t, "binance", res.Provider)
	assert.Equal(t, model.Crypto, res.Class)
	assert.Len(t, res.Candles, 30)
	assert.True(t, model.StrictlyIncreasing(res.Candles))
	assert.Equal(t, 0, yahoo.Calls())

	require.Len(t, rec.recs, 1)
	assert.Equal(t, "binance", rec.recs[0].Provider)
	assert.Equal(t, "", rec.recs[0].ErrorKind)
	require.Len(t, rec.recs[0].Attempts, 1)
	assert.Equal(t, "success", rec.recs[0].Attempts[0].Outcome)
}

func TestFetchIntlEquityGoesToYahoo(t *testing.T) {
	binance := &scriptedProvider{name: "binance"}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, _ := newTestService(t, binance, yahoo)

	bars, err := svc.Candles(context.Background(), "WM.TO", "1d", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	assert.Equal(t, 0, binance.Calls())
	assert.Equal(t, 1, yahoo.Calls())
}

func TestFetchInvalidRequestMakesNoCalls(t *testing.T) {
	binance := &scriptedProvider{name: "binance"}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, rec := newTestService(t, binance, yahoo)

	for _, req := range []Request{
		{Symbol: "", Interval: "1d", Limit: 10},
		{Symbol: "   ", Interval: "1d", Limit: 10},
		{Symbol: "AAPL", Interval: "1d", Limit: 0},
		{Symbol: "AAPL", Interval: "3h", Limit: 10},
	} {
		_, err := svc.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
	assert.Equal(t, 0, binance.Calls()+yahoo.Calls())
	require.Len(t, rec.recs, 4)
	assert.Equal(t, "invalid_request", rec.recs[0].ErrorKind)
}

func TestFetchRetriesThenFallsBack(t *testing.T) {
	binance := &scriptedProvider{name: "binance", steps: []step{
		{kind: provider.RateLimited},
		{kind: provider.RateLimited},
		{kind: provider.SymbolNotFound},
	}}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, _ := newTestService(t, binance, yahoo)

	res, err := svc.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "yahoo", res.Provider)
	assert.Equal(t, 3, binance.Calls())
	assert.Equal(t, 1, yahoo.Calls())

	require.Len(t, res.Attempts, 4)
	assert.Equal(t, []int{1, 2, 3}, []int{res.Attempts[0].Try, res.Attempts[1].Try, res.Attempts[2].Try})
	assert.Equal(t, provider.SymbolNotFound, res.Attempts[2].Kind)
	assert.Equal(t, OutcomeSuccess, res.Attempts[3].Outcome)
	assert.Equal(t, "yahoo", res.Attempts[3].Provider)
}

func TestFetchRetryBoundIsHonoured(t *testing.T) {
	binance := &scriptedProvider{name: "binance", steps: []step{{kind: provider.TransportError}}}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, _ := newTestService(t, binance, yahoo)

	_, err := svc.Fetch(context.Background(), Request{Symbol: "ETHUSDT", Interval: "1h", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, binance.Calls(), "one try plus RetryBound retries")
}

func TestFetchExhausted(t *testing.T) {
	binance := &scriptedProvider{name: "binance", steps: []step{{kind: provider.SymbolNotFound}}}
	yahoo := &scriptedProvider{name: "yahoo", steps: []step{{empty: true}}}
	svc, rec := newTestService(t, binance, yahoo)

	_, err := svc.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1d", Limit: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []string{"binance", "yahoo"}, ex.Providers())
	require.Len(t, ex.Attempts, 2)
	assert.Equal(t, OutcomeEmpty, ex.Attempts[1].Outcome)
	assert.Nil(t, ex.Cause)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, "no_provider_available", rec.recs[0].ErrorKind)
	assert.Len(t, rec.recs[0].Attempts, 2)
}

func TestFetchIntervalUnsupportedIsNotRetried(t *testing.T) {
	binance := &scriptedProvider{name: "binance"}
	yahoo := &scriptedProvider{name: "yahoo", steps: []step{{kind: provider.IntervalUnsupported}}}
	svc, _ := newTestService(t, binance, yahoo)

	_, err := svc.Fetch(context.Background(), Request{Symbol: "WM.TO", Interval: "4h", Limit: 5})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 1, yahoo.Calls())
	assert.Equal(t, provider.IntervalUnsupported, ex.Attempts[0].Kind)
}

func TestFetchRejectsBadProviderOutput(t *testing.T) {
	tooMany := genBars(model.OneDay, 8)
	unordered := genBars(model.OneDay, 3)
	unordered[0], unordered[2] = unordered[2], unordered[0]

	for name, bars := range map[string][]model.Candle{"over limit": tooMany, "unordered": unordered} {
		t.Run(name, func(t *testing.T) {
			binance := &scriptedProvider{name: "binance", steps: []step{{bars: bars}}}
			yahoo := &scriptedProvider{name: "yahoo"}
			svc, _ := newTestService(t, binance, yahoo)

			res, err := svc.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1d", Limit: 5})
			require.NoError(t, err)
			assert.Equal(t, "yahoo", res.Provider)
			assert.Equal(t, provider.MalformedResponse, res.Attempts[0].Kind)
			assert.Equal(t, 1, binance.Calls())
		})
	}
}

func TestFetchTimeoutIsTransportError(t *testing.T) {
	binance := &scriptedProvider{name: "binance", steps: []step{{block: true}}}
	yahoo := &scriptedProvider{name: "yahoo"}
	r, err := router.New(router.DefaultTable(), binance, yahoo)
	require.NoError(t, err)

	slow := fastPolicy()
	slow.Timeout = 20 * time.Millisecond
	slow.RetryBound = 0
	svc := NewService(r, nil, Config{Default: fastPolicy(), Policies: map[string]Policy{"binance": slow}})

	res, err := svc.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "yahoo", res.Provider)
	assert.Equal(t, provider.TransportError, res.Attempts[0].Kind)
	assert.Equal(t, 1, binance.Calls())
}

func TestFetchCallerCancellation(t *testing.T) {
	binance := &scriptedProvider{name: "binance", steps: []step{{block: true}}}
	yahoo := &scriptedProvider{name: "yahoo"}
	svc, _ := newTestService(t, binance, yahoo)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, yahoo.Calls(), "cancellation stops the walk")
}

func TestFetchUnroutable(t *testing.T) {
	binance := &scriptedProvider{name: "binance"}
	r, err := router.New(map[model.AssetClass][]string{model.Crypto: {"binance"}}, binance)
	require.NoError(t, err)
	svc := NewService(r, nil, Config{Default: fastPolicy()})

	_, err = svc.Fetch(context.Background(), Request{Symbol: "AAPL", Interval: "1d", Limit: 5})
	assert.ErrorIs(t, err, ErrUnroutableAsset)
	assert.Equal(t, "unroutable_asset", ErrorKind(err))
}

func TestExhaustedErrorMessage(t *testing.T) {
	ex := &ExhaustedError{Symbol: "XYZ", Class: model.USEquity, Attempts: []Attempt{
		{Provider: "yahoo", Try: 1, Outcome: OutcomeError, Kind: provider.SymbolNotFound},
	}}
	assert.Equal(t, "no provider available for XYZ (us_equity): [yahoo#1 symbol_not_found]", ex.Error())
	assert.True(t, errors.Is(ex, ErrNoProviderAvailable))
}
