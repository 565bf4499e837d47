package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownInterval is returned by ParseInterval for unsupported bar sizes.
var ErrUnknownInterval = errors.New("unknown interval")

// Interval is a bar size such as "1h" or "1d".
type Interval string

const (
	OneMinute      Interval = "1m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	OneHour        Interval = "1h"
	FourHours      Interval = "4h"
	OneDay         Interval = "1d"
	OneWeek        Interval = "1w"
)

var intervalDurations = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	FiveMinutes:    5 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	OneHour:        time.Hour,
	FourHours:      4 * time.Hour,
	OneDay:         24 * time.Hour,
	OneWeek:        7 * 24 * time.Hour,
}

// ParseInterval returns the canonical interval for input. Case is ignored
// except for a trailing "M", which means month and is never read as minutes.
func ParseInterval(input string) (Interval, error) {
	raw := strings.TrimSpace(input)
	if !strings.HasSuffix(raw, "M") {
		raw = strings.ToLower(raw)
	}
	iv := Interval(raw)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInterval, input)
	}
	return iv, nil
}

// Duration returns the bar length, or 0 for an unknown interval.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

func (iv Interval) String() string { return string(iv) }

// SupportedIntervals lists all intervals from shortest to longest.
func SupportedIntervals() []Interval {
	return []Interval{OneMinute, FiveMinutes, FifteenMinutes, OneHour, FourHours, OneDay, OneWeek}
}
