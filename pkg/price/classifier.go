package price

import (
	"math"
	"sort"
	"time"
)

const (
	LevelLow    Level = "LOW"
	LevelNormal Level = "NORMAL"
	LevelHigh   Level = "HIGH"
)

type Level string

const (
	MethodDelta      Method = "delta"
	MethodPercentile Method = "percentile"
)

type Method string

type ClassifierConfig struct {
	Method         Method
	WindowDays     int
	DeltaPercent   float64
	PercentileLow  float64
	PercentileHigh float64
}

// Classification is the result of comparing the current price against the
// rolling history. Low and High are the thresholds that were in effect,
// CoverageDays how much history actually backed them.
type Classification struct {
	Level        Level   `json:"level"`
	Price        float64 `json:"price"`
	Average      float64 `json:"average"`
	Low          float64 `json:"low"`
	High         float64 `json:"high"`
	Points       int     `json:"points"`
	CoverageDays float64 `json:"coverageDays"`
}

// Classify grades current against the points inside the rolling window
// ending at now. When a feed gap leaves the window empty, whatever older
// history exists serves as the baseline instead, a shorter one beats
// none. Prices on a threshold grade NORMAL, never the more aggressive
// side. With less than two points of history there is nothing to
// compare against and the result is NORMAL.
func Classify(history []Point, current float64, now time.Time, cfg ClassifierConfig) Classification {
	c := Classification{
		Level: LevelNormal,
		Price: current,
	}

	windowStart := now.Add(-time.Duration(cfg.WindowDays) * 24 * time.Hour)
	values, oldest := collect(history, windowStart, now)
	if len(values) == 0 {
		values, oldest = collect(history, time.Time{}, now)
	}
	c.Points = len(values)
	if len(values) < 2 {
		return c
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	c.Average = sum / float64(len(values))
	c.CoverageDays = now.Sub(oldest).Hours() / 24

	switch cfg.Method {
	case MethodPercentile:
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		c.Low = percentile(sorted, cfg.PercentileLow)
		c.High = percentile(sorted, cfg.PercentileHigh)
	default:
		c.Low = c.Average * (1 - cfg.DeltaPercent/100)
		c.High = c.Average * (1 + cfg.DeltaPercent/100)
	}

	if current < c.Low {
		c.Level = LevelLow
	}
	if current > c.High {
		c.Level = LevelHigh
	}
	return c
}

func collect(history []Point, from, to time.Time) ([]float64, time.Time) {
	values := make([]float64, 0, len(history))
	oldest := to
	for _, p := range history {
		if p.Start.Before(from) || p.Start.After(to) {
			continue
		}
		values = append(values, p.Value)
		if p.Start.Before(oldest) {
			oldest = p.Start
		}
	}
	return values, oldest
}

// percentile interpolates linearly between ranks. values must be sorted.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 100 {
		return values[len(values)-1]
	}
	rank := p / 100 * float64(len(values)-1)
	lower := int(math.Floor(rank))
	frac := rank - float64(lower)
	if lower+1 >= len(values) {
		return values[lower]
	}
	return values[lower] + frac*(values[lower+1]-values[lower])
}
