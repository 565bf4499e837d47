package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ohlcvhub/internal/classifier"
	"ohlcvhub/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// yahooInterval describes how one bar size is requested from the chart API.
// The lookback is limit*bar*headroom+pad, capped at maxSpan (Yahoo refuses
// intraday ranges that reach too far back).
type yahooInterval struct {
	code     string
	headroom float64
	pad      time.Duration
	maxSpan  time.Duration
}

const day = 24 * time.Hour

// lookback returns the window that should hold limit bars ending at end.
// The product is formed in float seconds so large limits cannot overflow,
// and the window never starts before the unix epoch.
func (y yahooInterval) lookback(interval model.Interval, limit int, end time.Time) time.Duration {
	secs := interval.Duration().Seconds()*float64(limit)*y.headroom + y.pad.Seconds()
	if y.maxSpan > 0 {
		secs = math.Min(secs, y.maxSpan.Seconds())
	}
	secs = math.Min(secs, float64(end.Unix()))
	return time.Duration(secs) * time.Second
}

// Intraday headroom covers closed sessions, nights and weekends for equities.
var yahooIntervals = map[model.Interval]yahooInterval{
	model.OneMinute:      {code: "1m", headroom: 6, pad: 4 * day, maxSpan: 7 * day},
	model.FiveMinutes:    {code: "5m", headroom: 6, pad: 4 * day, maxSpan: 59 * day},
	model.FifteenMinutes: {code: "15m", headroom: 6, pad: 4 * day, maxSpan: 59 * day},
	model.OneHour:        {code: "60m", headroom: 6, pad: 4 * day, maxSpan: 729 * day},
	model.OneDay:         {code: "1d", headroom: 1.6, pad: 10 * day},
	model.OneWeek:        {code: "1wk", headroom: 1.1, pad: 21 * day},
}

// Stablecoin quotes settle against USD on Yahoo.
var yahooUSDQuotes = map[string]bool{"USDT": true, "USDC": true, "BUSD": true, "FDUSD": true, "TUSD": true}

// YahooProvider serves equities, indices, forex and crypto from the Yahoo
// Finance chart API.
type YahooProvider struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker

	now func() time.Time
}

// NewYahooProvider creates an adapter on the shared session.
func NewYahooProvider(baseURL string, sess *Session) *YahooProvider {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  sess.Client(),
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"NDX100": "^NDX",
			"DJI":    "^DJI",
		},
		now: time.Now,
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

// yahooSymbol maps a normalized symbol to its Yahoo ticker:
// BTCUSDT -> BTC-USD, ETHBTC -> ETH-BTC, EURUSD -> EURUSD=X.
func (p *YahooProvider) yahooSymbol(symbol string) string {
	if mapped, ok := p.SymbolMap[symbol]; ok {
		return mapped
	}
	switch classifier.Classify(symbol) {
	case model.Crypto:
		base, quote, _ := classifier.SplitPair(symbol)
		if yahooUSDQuotes[quote] {
			quote = "USD"
		}
		return base + "-" + quote
	case model.Forex:
		return classifier.Normalize(symbol, model.Forex) + "=X"
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []interface{} `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func at(vals []interface{}, i int) float64 {
	if i >= len(vals) {
		return 0
	}
	return toFloat(vals[i])
}

func (p *YahooProvider) Fetch(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	spec, ok := yahooIntervals[interval]
	if !ok {
		return nil, Errorf(p.Name(), IntervalUnsupported, "interval %s not offered", interval)
	}

	end := p.now().UTC()
	span := spec.lookback(interval, limit, end)

	q := url.Values{}
	q.Set("interval", spec.code)
	q.Set("period1", strconv.FormatInt(end.Add(-span).Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("includePrePost", "false")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.BaseURL, url.PathEscape(p.yahooSymbol(symbol)), q.Encode())

	bars, err := p.fetchChart(ctx, u)
	if err != nil {
		return nil, err
	}
	return model.NormalizeCandles(bars, limit), nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, u string) ([]model.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Wrap(p.Name(), MalformedResponse, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, Wrap(p.Name(), TransportError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(p.Name(), TransportError, fmt.Errorf("read body: %w", err))
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, &chart, decodeErr, body)
	}
	if decodeErr != nil {
		return nil, Wrap(p.Name(), MalformedResponse, fmt.Errorf("decode: %w", decodeErr))
	}
	if chart.Chart.Error != nil {
		return nil, p.chartError(chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return []model.Candle{}, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, Errorf(p.Name(), MalformedResponse, "missing quote block")
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n || len(quote.Close) != n {
		return nil, Errorf(p.Name(), MalformedResponse, "quote arrays do not match %d timestamps", n)
	}

	// Daily and longer series carry split/dividend adjusted closes; prices
	// are scaled onto them so the whole bar is adjusted.
	var adj []interface{}
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) == n {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]model.Candle, 0, n)
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		if a := at(adj, i); a > 0 && c > 0 {
			f := a / c
			o, h, l, c = o*f, h*f, l*f, a
		}
		bars = append(bars, model.Candle{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}
	return bars, nil
}

func (p *YahooProvider) statusError(status int, chart *yahooChart, decodeErr error, body []byte) error {
	if decodeErr == nil && chart.Chart.Error != nil && status != http.StatusTooManyRequests && status < 500 {
		return p.chartError(chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	err := fmt.Errorf("status %d, body: %s", status, truncate(body, 200))
	switch {
	case status == http.StatusTooManyRequests:
		return Wrap(p.Name(), RateLimited, err)
	case status == http.StatusNotFound:
		return Wrap(p.Name(), SymbolNotFound, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Wrap(p.Name(), IntervalUnsupported, err)
	case status >= 500:
		return Wrap(p.Name(), TransportError, err)
	default:
		return Wrap(p.Name(), MalformedResponse, err)
	}
}

func (p *YahooProvider) chartError(code, desc string) error {
	switch strings.ToLower(code) {
	case "not found":
		return Errorf(p.Name(), SymbolNotFound, "%s", desc)
	case "bad request", "unprocessable entity":
		return Errorf(p.Name(), IntervalUnsupported, "%s", desc)
	default:
		return Errorf(p.Name(), MalformedResponse, "api error %s: %s", code, desc)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
