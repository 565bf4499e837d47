package fetcher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ohlcvhub/internal/model"
	"ohlcvhub/internal/provider"
	"ohlcvhub/internal/router"
)

// Only these three kinds leave the package.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrUnroutableAsset     = router.ErrUnroutableAsset
)

// Outcome of one provider call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeError   Outcome = "error"
)

// Attempt records a single call to a provider. Try counts from 1 per provider.
type Attempt struct {
	Provider string
	Try      int
	Outcome  Outcome
	Kind     provider.Kind // zero on success
	Err      error         // *provider.Error, nil on success
	Bars     int
	Elapsed  time.Duration
}

func (a Attempt) String() string {
	if a.Outcome == OutcomeSuccess {
		return fmt.Sprintf("%s#%d success (%d bars)", a.Provider, a.Try, a.Bars)
	}
	return fmt.Sprintf("%s#%d %s", a.Provider, a.Try, a.Kind)
}

// ExhaustedError is returned when every provider in the chain failed, or
// when the caller's context ended the walk early (Cause is then set).
// errors.Is(err, ErrNoProviderAvailable) holds for every ExhaustedError.
type ExhaustedError struct {
	Symbol   string
	Class    model.AssetClass
	Attempts []Attempt
	Cause    error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	msg := fmt.Sprintf("%v for %s (%s): [%s]", ErrNoProviderAvailable, e.Symbol, e.Class, strings.Join(parts, "; "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrNoProviderAvailable }

// Unwrap exposes the cancellation cause and each attempt's provider error.
func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	for _, a := range e.Attempts {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	return out
}

// Providers lists the distinct providers tried, in order.
func (e *ExhaustedError) Providers() []string {
	var out []string
	for _, a := range e.Attempts {
		if len(out) == 0 || out[len(out)-1] != a.Provider {
			out = append(out, a.Provider)
		}
	}
	return out
}

// ErrorKind names the public kind of err, or "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnroutableAsset):
		return "unroutable_asset"
	default:
		return "no_provider_available"
	}
}
