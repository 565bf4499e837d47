// Package router holds the fixed table that maps asset classes to ordered
// provider chains.
package router

import (
	"errors"
	"fmt"
	"sort"

	"ohlcvhub/internal/model"
	"ohlcvhub/internal/provider"
)

// ErrUnroutableAsset means the table has no chain for a class.
var ErrUnroutableAsset = errors.New("unroutable asset class")

// Chain is an ordered list of providers tried in sequence.
type Chain []provider.Provider

// Names returns the provider names in chain order.
func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, p := range c {
		out[i] = p.Name()
	}
	return out
}

// DefaultTable orders each class by expected data quality: crypto prefers
// the native exchange feed and falls back to the aggregator.
func DefaultTable() map[model.AssetClass][]string {
	return map[model.AssetClass][]string{
		model.Crypto:     {"binance", "yahoo"},
		model.USEquity:   {"yahoo"},
		model.IntlEquity: {"yahoo"},
		model.Forex:      {"yahoo"},
	}
}

// Router is read-only after construction and safe for concurrent use.
type Router struct {
	chains map[model.AssetClass]Chain
}

// New resolves table entries against providers by name. Unknown or repeated
// names and empty chains are configuration errors.
func New(table map[model.AssetClass][]string, providers ...provider.Provider) (*Router, error) {
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		if _, dup := byName[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		byName[p.Name()] = p
	}

	chains := make(map[model.AssetClass]Chain, len(table))
	for class, names := range table {
		if len(names) == 0 {
			return nil, fmt.Errorf("route %s: empty chain", class)
		}
		seen := make(map[string]bool, len(names))
		chain := make(Chain, 0, len(names))
		for _, name := range names {
			p, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("route %s: unknown provider %q", class, name)
			}
			if seen[name] {
				return nil, fmt.Errorf("route %s: provider %q listed twice", class, name)
			}
			seen[name] = true
			chain = append(chain, p)
		}
		chains[class] = chain
	}
	return &Router{chains: chains}, nil
}

// Route returns a copy of the chain for class.
func (r *Router) Route(class model.AssetClass) (Chain, error) {
	chain, ok := r.chains[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutableAsset, class)
	}
	out := make(Chain, len(chain))
	copy(out, chain)
	return out, nil
}

// Classes lists the routed classes in sorted order.
func (r *Router) Classes() []model.AssetClass {
	out := make([]model.AssetClass, 0, len(r.chains))
	for c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
