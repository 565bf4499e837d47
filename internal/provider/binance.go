package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"ohlcvhub/internal/model"
)

const (
	defaultBinanceBaseURL = "https://api.binance.com"
	maxKlinesPerRequest   = 1000
)

// Binance API error codes that drive fallback decisions.
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
	codeIllegalChars    = -1100
	codeInvalidInterval = -1120
	codeInvalidSymbol   = -1121
)

// BinanceProvider serves spot klines through the go-binance SDK. No API key
// is needed for market data.
type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider creates an adapter whose SDK client uses the shared session.
func NewBinanceProvider(baseURL string, sess *Session) *BinanceProvider {
	client := binance.NewClient("", "")
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	client.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	client.HTTPClient = sess.Client()
	return &BinanceProvider{client: client}
}

func (p *BinanceProvider) Name() string { return "binance" }

// Fetch pages backwards from the latest kline until limit bars are collected
// or the listing history runs out.
func (p *BinanceProvider) Fetch(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	if interval.Duration() == 0 {
		return nil, Errorf(p.Name(), IntervalUnsupported, "interval %s not offered", interval)
	}
	symbol = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))

	var (
		out       []model.Candle
		endTime   int64
		remaining = limit
	)
	for remaining > 0 {
		batch := min(remaining, maxKlinesPerRequest)
		svc := p.client.NewKlinesService().Symbol(symbol).Interval(string(interval)).Limit(batch)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, p.wrapError(err)
		}
		if len(kls) == 0 {
			break
		}
		page, err := convertKlines(kls)
		if err != nil {
			return nil, Wrap(p.Name(), MalformedResponse, err)
		}
		out = append(page, out...)
		remaining -= len(kls)
		if len(kls) < batch || kls[0] == nil {
			break
		}
		endTime = kls[0].OpenTime - 1
	}
	return model.NormalizeCandles(out, limit), nil
}

func (p *BinanceProvider) wrapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeTooManyRequests, codeTooManyOrders:
			return Wrap(p.Name(), RateLimited, err)
		case codeInvalidSymbol:
			return Wrap(p.Name(), SymbolNotFound, err)
		case codeInvalidInterval:
			return Wrap(p.Name(), IntervalUnsupported, err)
		case codeIllegalChars:
			if strings.Contains(strings.ToLower(apiErr.Message), "interval") {
				return Wrap(p.Name(), IntervalUnsupported, err)
			}
			return Wrap(p.Name(), SymbolNotFound, err)
		case 0:
			// Non-JSON error body (gateway pages, 5xx).
			return Wrap(p.Name(), TransportError, err)
		default:
			return Wrap(p.Name(), MalformedResponse, err)
		}
	}
	if isTransport(err) {
		return Wrap(p.Name(), TransportError, err)
	}
	return Wrap(p.Name(), MalformedResponse, err)
}

func convertKlines(kls []*binance.Kline) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		var (
			c   = model.Candle{Time: time.UnixMilli(kl.OpenTime).UTC()}
			err error
		)
		if c.Open, err = parseFloat(kl.Open); err != nil {
			return nil, err
		}
		if c.High, err = parseFloat(kl.High); err != nil {
			return nil, err
		}
		if c.Low, err = parseFloat(kl.Low); err != nil {
			return nil, err
		}
		if c.Close, err = parseFloat(kl.Close); err != nil {
			return nil, err
		}
		if c.Volume, err = parseFloat(kl.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	return f, nil
}
