// Package provider holds the upstream OHLCV adapters and the contract they share.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"ohlcvhub/internal/model"
)

// Provider fetches historical bars from one upstream source.
//
// Fetch returns at most limit of the most recent bars, oldest first, with UTC
// timestamps. An empty slice with a nil error means the source had no data.
// Failures are reported as *Error so callers can switch on the Kind.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error)
}

// Kind classifies an adapter failure.
type Kind int

const (
	// SymbolNotFound: the source explicitly does not know the symbol.
	SymbolNotFound Kind = iota + 1
	// RateLimited: transient throttling; the same source may be retried.
	RateLimited
	// IntervalUnsupported: the source cannot serve the requested bar size.
	IntervalUnsupported
	// TransportError: network failure or timeout.
	TransportError
	// MalformedResponse: the payload could not be understood.
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case SymbolNotFound:
		return "symbol_not_found"
	case RateLimited:
		return "rate_limited"
	case IntervalUnsupported:
		return "interval_unsupported"
	case TransportError:
		return "transport_error"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Retryable reports whether the same provider may be tried again.
func (k Kind) Retryable() bool {
	return k == RateLimited || k == TransportError
}

// Error is the failure type returned by every adapter.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

// Errorf builds an *Error with a formatted cause.
func Errorf(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(provider string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: provider, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf maps any error to a Kind. Errors that are not *Error are treated as
// transport failures when they come from the network or a context, and as
// malformed responses otherwise.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if isTransport(err) {
		return TransportError
	}
	return MalformedResponse
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
