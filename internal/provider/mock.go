package provider

import (
	"context"
	"math"
	"time"

	"ohlcvhub/internal/model"
)

// MockProvider returns controllable fixed data for development and testing.
// With Bars set it serves those (normalized); otherwise it generates bars
// around BasePrice aligned to the interval grid.
type MockProvider struct {
	ID        string
	BasePrice float64
	Bars      []model.Candle
	Err       error
	Now       func() time.Time
}

func (m *MockProvider) Name() string {
	if m.ID == "" {
		return "mock"
	}
	return m.ID
}

func (m *MockProvider) Fetch(ctx context.Context, _ string, interval model.Interval, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(m.Name(), TransportError, err)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		return model.NormalizeCandles(m.Bars, limit), nil
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return generateMockBars(m.BasePrice, limit, interval, now()), nil
}

// maxMockBars is the length of the synthetic history; larger limits get
// fewer bars, as a real source would return.
const maxMockBars = 10000

func generateMockBars(basePrice float64, count int, interval model.Interval, now time.Time) []model.Candle {
	if basePrice <= 0 {
		basePrice = 100
	}
	step := interval.Duration()
	if step == 0 || count <= 0 {
		return []model.Candle{}
	}
	count = min(count, maxMockBars)
	last := now.UTC().Truncate(step)
	bars := make([]model.Candle, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + 0.05*math.Sin(float64(i)/20))
		bars[i] = model.Candle{
			Time:   last.Add(-time.Duration(count-1-i) * step),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
