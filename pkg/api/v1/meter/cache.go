package meter

import (
	"sync"
	"time"
)

type Cache struct {
	data *Data
	sync.RWMutex
}

func (c *Cache) Get() *Data {
	c.RLock()
	defer c.RUnlock()
	return c.data
}

// GetFresh returns the reading only if it is younger than maxAge.
func (c *Cache) GetFresh(now time.Time, maxAge time.Duration) *Data {
	d := c.Get()
	if d == nil || now.Sub(d.Time) > maxAge {
		return nil
	}
	return d
}

func (c *Cache) Set(d *Data) {
	c.Lock()
	c.data = d
	c.Unlock()
}
