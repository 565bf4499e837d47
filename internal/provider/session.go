package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SessionConfig tunes the connection pool shared by all adapters.
type SessionConfig struct {
	Proxy               string
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Session owns the pooled HTTP client handed to every adapter. Build one at
// startup and Close it on shutdown. Per-request deadlines come from the
// caller's context, so the client itself has no timeout.
type Session struct {
	client *http.Client
}

// NewSession creates the shared client with optional proxy support.
func NewSession(cfg SessionConfig) (*Session, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok || base == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := base.Clone()
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}
	return &Session{client: &http.Client{Transport: transport}}, nil
}

// Client returns the shared client.
func (s *Session) Client() *http.Client { return s.client }

// Close drops idle pooled connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}
