package push

import (
	"testing"
	"time"

	"github.com/Smooother/poolheating/pkg/state"
	"github.com/stretchr/testify/assert"
)

func TestCacheFresh(t *testing.T) {
	now := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	c := NewCache()

	_, ok := c.Fresh("pool-1", now, 5*time.Minute)
	assert.False(t, ok)

	c.Set(state.Status{
		DeviceID:   "pool-1",
		Setpoint:   28,
		Source:     state.SourceRealtime,
		ObservedAt: now.Add(-2 * time.Minute),
	})

	s, ok := c.Fresh("pool-1", now, 5*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 28.0, s.Setpoint)

	_, ok = c.Fresh("pool-1", now.Add(10*time.Minute), 5*time.Minute)
	assert.False(t, ok, "entry older than maxAge is not served")

	_, ok = c.Fresh("pool-2", now, 5*time.Minute)
	assert.False(t, ok)
}
