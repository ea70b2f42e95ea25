package quota

import (
	"sync"
	"time"
)

// Budget tracks calls against the vendor API quota inside a fixed window.
// Every spend is one check-and-increment under the same lock so two
// concurrent callers cannot both take the last slot.
type Budget struct {
	mu sync.Mutex

	limit       int
	window      time.Duration
	minInterval time.Duration

	used        int
	windowStart time.Time
	lastCall    time.Time

	now func() time.Time
}

type Snapshot struct {
	Used            int       `json:"callsUsedInWindow"`
	Limit           int       `json:"limit"`
	WindowStartedAt time.Time `json:"windowStartedAt"`
	LastCallAt      time.Time `json:"lastCallAt"`
}

func New(limit int, window, minInterval time.Duration) *Budget {
	return &Budget{
		limit:       limit,
		window:      window,
		minInterval: minInterval,
		now:         time.Now,
	}
}

func (b *Budget) roll(now time.Time) {
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.used = 0
	}
}

// TrySpend reserves one call if the window has budget left.
func (b *Budget) TrySpend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.roll(now)
	if b.used >= b.limit {
		return false
	}
	b.used++
	b.lastCall = now
	return true
}

// TryPollSpend is TrySpend with the minimum spacing between calls
// enforced on top of the window budget.
func (b *Budget) TryPollSpend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.roll(now)
	if b.used >= b.limit {
		return false
	}
	if !b.lastCall.IsZero() && now.Sub(b.lastCall) < b.minInterval {
		return false
	}
	b.used++
	b.lastCall = now
	return true
}

// ForceSpend counts a call that goes out regardless of remaining budget.
// Safety writes use this so the books stay correct even past the limit.
func (b *Budget) ForceSpend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.roll(now)
	b.used++
	b.lastCall = now
}

func (b *Budget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Used:            b.used,
		Limit:           b.limit,
		WindowStartedAt: b.windowStart,
		LastCallAt:      b.lastCall,
	}
}
