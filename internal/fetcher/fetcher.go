// Package fetcher drives a symbol through classification, routing and the
// provider fallback chain.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"ohlcvhub/internal/classifier"
	"ohlcvhub/internal/logger"
	"ohlcvhub/internal/model"
	"ohlcvhub/internal/provider"
	"ohlcvhub/internal/recorder"
	"ohlcvhub/internal/router"
)

// Policy bounds how one provider is called.
type Policy struct {
	Timeout    time.Duration // per call; exceeding it is a transport error
	RetryBound int           // extra tries on a retryable failure
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultPolicy is used for providers without their own policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    15 * time.Second,
		RetryBound: 2,
		BackoffMin: 500 * time.Millisecond,
		BackoffMax: 5 * time.Second,
	}
}

// Config carries per-provider call policies.
type Config struct {
	Default  Policy
	Policies map[string]Policy
}

// Request is one fetch call.
type Request struct {
	Symbol   string
	Interval string
	Limit    int
}

// Result is a successful fetch together with its attempt trail.
type Result struct {
	Symbol   string
	Interval model.Interval
	Class    model.AssetClass
	Provider string
	Candles  []model.Candle
	Attempts []Attempt
}

// Service is the fetch orchestrator. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	Router   *router.Router
	Recorder recorder.Recorder
	cfg      Config
}

// NewService creates a Service. A nil recorder disables auditing.
func NewService(r *router.Router, rec recorder.Recorder, cfg Config) *Service {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if cfg.Default == (Policy{}) {
		cfg.Default = DefaultPolicy()
	}
	return &Service{Router: r, Recorder: rec, cfg: cfg}
}

// Candles returns the most recent bars for symbol, oldest first.
func (s *Service) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	res, err := s.Fetch(ctx, Request{Symbol: symbol, Interval: interval, Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Candles, nil
}

// Fetch runs validation, classification and routing, then walks the chain
// until a provider returns bars. Failures are ErrInvalidRequest,
// ErrUnroutableAsset or an *ExhaustedError.
func (s *Service) Fetch(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, class, err := s.fetch(ctx, req)
	s.record(req, class, res, err, time.Since(started))
	return res, err
}

func (s *Service) fetch(ctx context.Context, req Request) (*Result, model.AssetClass, error) {
	interval, err := validate(req)
	if err != nil {
		return nil, "", err
	}

	class := classifier.Classify(req.Symbol)
	chain, err := s.Router.Route(class)
	if err != nil {
		return nil, class, err
	}
	symbol := classifier.Normalize(req.Symbol, class)

	var trail []Attempt
	for i, p := range chain {
		bars, ok := s.tryProvider(ctx, p, symbol, interval, req.Limit, &trail)
		if ok {
			return &Result{
				Symbol:   symbol,
				Interval: interval,
				Class:    class,
				Provider: p.Name(),
				Candles:  bars,
				Attempts: trail,
			}, class, nil
		}
		if ctx.Err() != nil {
			return nil, class, &ExhaustedError{Symbol: symbol, Class: class, Attempts: trail, Cause: ctx.Err()}
		}
		if i+1 < len(chain) {
			logger.Infof("[fetcher] %s: falling back from %s to %s", symbol, p.Name(), chain[i+1].Name())
		}
	}
	return nil, class, &ExhaustedError{Symbol: symbol, Class: class, Attempts: trail}
}

func validate(req Request) (model.Interval, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidRequest)
	}
	if req.Limit <= 0 {
		return "", fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, req.Limit)
	}
	interval, err := model.ParseInterval(req.Interval)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return interval, nil
}

// tryProvider calls p, retrying retryable failures up to the policy bound.
// Every call is appended to trail.
func (s *Service) tryProvider(ctx context.Context, p provider.Provider, symbol string, interval model.Interval, limit int, trail *[]Attempt) ([]model.Candle, bool) {
	pol := s.policy(p.Name())
	b := &backoff.Backoff{Min: pol.BackoffMin, Max: pol.BackoffMax, Factor: 2, Jitter: true}

	for try := 1; ; try++ {
		bars, att := s.call(ctx, p, pol, symbol, interval, limit)
		att.Try = try
		*trail = append(*trail, att)

		switch att.Outcome {
		case OutcomeSuccess:
			logger.Debugf("[fetcher] %s %s: %d bars from %s", symbol, interval, len(bars), p.Name())
			return bars, true
		case OutcomeEmpty:
			logger.Warnf("[fetcher] %s %s: %s returned no bars", symbol, interval, p.Name())
			return nil, false
		}

		logger.Warnf("[fetcher] %s %s: %s attempt %d failed: %v", symbol, interval, p.Name(), try, att.Err)
		if ctx.Err() != nil || !att.Kind.Retryable() || try > pol.RetryBound {
			return nil, false
		}
		if !sleepWithContext(ctx, b.Duration()) {
			return nil, false
		}
	}
}

// call performs one bounded provider call and grades its outcome.
func (s *Service) call(ctx context.Context, p provider.Provider, pol Policy, symbol string, interval model.Interval, limit int) ([]model.Candle, Attempt) {
	callCtx, cancel := context.WithTimeout(ctx, pol.Timeout)
	defer cancel()

	started := time.Now()
	bars, err := p.Fetch(callCtx, symbol, interval, limit)
	att := Attempt{Provider: p.Name(), Elapsed: time.Since(started)}

	switch {
	case err != nil:
		kind := provider.KindOf(err)
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = provider.TransportError
		}
		var pe *provider.Error
		if !errors.As(err, &pe) || pe.Kind != kind {
			err = provider.Wrap(p.Name(), kind, err)
		}
		att.Outcome, att.Kind, att.Err = OutcomeError, kind, err
		return nil, att
	case len(bars) == 0:
		att.Outcome, att.Kind = OutcomeEmpty, provider.SymbolNotFound
		att.Err = provider.Errorf(p.Name(), provider.SymbolNotFound, "no bars for %s", symbol)
		return nil, att
	case len(bars) > limit || !model.StrictlyIncreasing(bars):
		att.Outcome, att.Kind = OutcomeError, provider.MalformedResponse
		att.Err = provider.Errorf(p.Name(), provider.MalformedResponse, "%d bars out of order or over limit %d", len(bars), limit)
		return nil, att
	}
	att.Outcome, att.Bars = OutcomeSuccess, len(bars)
	return bars, att
}

func (s *Service) policy(name string) Policy {
	pol, ok := s.cfg.Policies[name]
	if !ok {
		pol = s.cfg.Default
	}
	if pol.Timeout <= 0 {
		pol.Timeout = s.cfg.Default.Timeout
	}
	if pol.RetryBound < 0 {
		pol.RetryBound = 0
	}
	return pol
}

func (s *Service) record(req Request, class model.AssetClass, res *Result, err error, elapsed time.Duration) {
	rec := &recorder.FetchRecord{
		At:         time.Now(),
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Interval:   req.Interval,
		Limit:      req.Limit,
		AssetClass: string(class),
		ErrorKind:  ErrorKind(err),
		Duration:   elapsed,
	}
	var attempts []Attempt
	if res != nil {
		rec.Provider = res.Provider
		rec.Bars = len(res.Candles)
		attempts = res.Attempts
	}
	if err != nil {
		rec.Error = err.Error()
		var ex *ExhaustedError
		if errors.As(err, &ex) {
			attempts = ex.Attempts
		}
	}
	for _, a := range attempts {
		ar := recorder.AttemptRecord{
			Provider: a.Provider,
			Try:      a.Try,
			Outcome:  string(a.Outcome),
			Bars:     a.Bars,
			Elapsed:  a.Elapsed,
		}
		if a.Outcome != OutcomeSuccess {
			ar.Kind = a.Kind.String()
		}
		if a.Err != nil {
			ar.Error = a.Err.Error()
		}
		rec.Attempts = append(rec.Attempts, ar)
	}
	if err := s.Recorder.RecordFetch(rec); err != nil {
		logger.Errorf("[fetcher] record fetch %s: %v", rec.Symbol, err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
