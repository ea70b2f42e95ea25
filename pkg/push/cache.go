package push

import (
	"sync"
	"time"

	"github.com/Smooother/poolheating/pkg/state"
)

// Cache holds the latest pushed status per device.
type Cache struct {
	statuses map[string]state.Status
	sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{
		statuses: make(map[string]state.Status),
	}
}

func (c *Cache) Get(deviceID string) (state.Status, bool) {
	c.RLock()
	defer c.RUnlock()
	s, ok := c.statuses[deviceID]
	return s, ok
}

// Fresh returns the status only if it is younger than maxAge.
func (c *Cache) Fresh(deviceID string, now time.Time, maxAge time.Duration) (state.Status, bool) {
	s, ok := c.Get(deviceID)
	if !ok {
		return state.Status{}, false
	}
	if !s.FreshWithin(now, maxAge) {
		return state.Status{}, false
	}
	return s, true
}

func (c *Cache) Set(s state.Status) {
	c.Lock()
	c.statuses[s.DeviceID] = s
	c.Unlock()
}
