package alarm

import "sync"

const (
	StatusCached      = "status-cached"
	StatusUnavailable = "status-unavailable"
	QuotaExhausted    = "quota-exhausted"
	PriceFeedStale    = "price-feed-stale"
	ShortPriceHistory = "short-price-history"
	DeviceFault       = "device-fault"
	ConfirmPending    = "confirm-pending"
)

type ActiveAlarms struct {
	activeAlarms []string
	sync.RWMutex
}

// Add adds string to alarm list and returns true if it was added. returns false if it already exists.
func (a *ActiveAlarms) Add(alarm string) bool {
	a.Lock()
	defer a.Unlock()
	return a.add(alarm)
}

func (a *ActiveAlarms) add(alarm string) bool {
	for _, activeAlarm := range a.activeAlarms {
		if activeAlarm == alarm {
			return false
		}
	}

	a.activeAlarms = append(a.activeAlarms, alarm)
	return true
}

func (a *ActiveAlarms) Clear() bool {
	hasActive := false
	a.Lock()
	if len(a.activeAlarms) > 0 {
		hasActive = true
		a.activeAlarms = nil
	}
	a.Unlock()
	return hasActive
}

func (a *ActiveAlarms) Active() []string {
	a.RLock()
	defer a.RUnlock()
	out := make([]string, len(a.activeAlarms))
	copy(out, a.activeAlarms)
	return out
}

// Sync replaces the active set with the conditions of this cycle and
// reports the transitions, so callers only log edges.
func (a *ActiveAlarms) Sync(conditions []string) (raised []string, cleared []string) {
	a.Lock()
	defer a.Unlock()

	current := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		current[c] = true
	}
	for _, old := range a.activeAlarms {
		if !current[old] {
			cleared = append(cleared, old)
		}
	}

	previous := make(map[string]bool, len(a.activeAlarms))
	for _, old := range a.activeAlarms {
		previous[old] = true
	}
	for _, c := range conditions {
		if !previous[c] {
			raised = append(raised, c)
		}
	}

	a.activeAlarms = append([]string(nil), conditions...)
	return raised, cleared
}
