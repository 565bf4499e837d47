package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Candle represents a single OHLCV bar. Time is the bar open, in UTC.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the price envelope of a bar.
func (c Candle) Validate() error {
	if c.Time.IsZero() || c.Time.Unix() <= 0 {
		return errors.New("time must be a positive unix timestamp")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("prices must be positive (o=%g h=%g l=%g c=%g)", c.Open, c.High, c.Low, c.Close)
	}
	if c.High < c.Low {
		return fmt.Errorf("high (%g) must be >= low (%g)", c.High, c.Low)
	}
	if c.Low > min(c.Open, c.Close) || c.High < max(c.Open, c.Close) {
		return fmt.Errorf("open/close outside [low, high] (o=%g h=%g l=%g c=%g)", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("volume must be non-negative, got %g", c.Volume)
	}
	return nil
}

// NormalizeCandles returns the limit most recent valid bars, oldest first.
// Invalid bars are dropped and a repeated timestamp keeps the later bar.
// A non-positive limit keeps everything.
func NormalizeCandles(bars []Candle, limit int) []Candle {
	out := make([]Candle, 0, len(bars))
	for _, b := range bars {
		if b.Validate() != nil {
			continue
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(b.Time) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	if limit > 0 && len(dedup) > limit {
		dedup = dedup[len(dedup)-limit:]
	}
	return dedup
}

// StrictlyIncreasing reports whether bar times are strictly increasing.
func StrictlyIncreasing(bars []Candle) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return false
		}
	}
	return true
}
