package price

import (
	"sort"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/types"
)

// Point is one spot price interval. Value is öre/kWh once normalized.
type Point struct {
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Value    float64        `json:"value"`
	Currency types.Currency `json:"currency"`
}

func (p Point) Contains(ts time.Time) bool {
	end := p.End
	if end.IsZero() {
		end = p.Start.Add(time.Hour)
	}
	return !ts.Before(p.Start) && ts.Before(end)
}

// Normalize converts all points to öre/kWh, sorts them by start time and
// drops duplicate intervals keeping the first occurrence.
func Normalize(points []Point) []Point {
	out := make([]Point, 0, len(points))
	seen := make(map[int64]struct{}, len(points))
	for _, p := range points {
		if p.Currency == types.CurrencySEK {
			p.Value = p.Value * 100
			p.Currency = types.CurrencyOere
		}
		if p.Currency == "" {
			p.Currency = types.CurrencyOere
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	deduped := out[:0]
	for _, p := range out {
		key := p.Start.Unix()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, p)
	}
	return deduped
}

// Current returns the point covering ts.
func Current(points []Point, ts time.Time) (Point, bool) {
	for _, p := range points {
		if p.Contains(ts) {
			return p, true
		}
	}
	return Point{}, false
}
