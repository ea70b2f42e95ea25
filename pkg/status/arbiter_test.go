package status

import (
	"context"
	"testing"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/meter"
	"github.com/Smooother/poolheating/pkg/heatpump/dummy"
	"github.com/Smooother/poolheating/pkg/push"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	status *state.Status
	err    error
}

func (f *fakeStore) LastStatus(ctx context.Context, deviceID string) (*state.Status, error) {
	return f.status, f.err
}

func testArbiter(cache *push.Cache, budget *quota.Budget, store *fakeStore, now time.Time) *Arbiter {
	return NewArbiter(
		&Push{Cache: cache, DeviceID: "pool-1", StaleAfter: 5 * time.Minute, now: func() time.Time { return now }},
		&Poll{Adapter: dummy.New("pool-1"), Budget: budget},
		&Stored{Store: store, DeviceID: "pool-1"},
	)
}

func TestResolvePrefersFreshPush(t *testing.T) {
	now := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	cache := push.NewCache()
	cache.Set(state.Status{
		DeviceID:   "pool-1",
		Setpoint:   29,
		Source:     state.SourceRealtime,
		ObservedAt: now.Add(-time.Minute),
	})
	budget := quota.New(10, time.Hour, 0)

	a := testArbiter(cache, budget, &fakeStore{}, now)
	s, err := a.Resolve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, state.SourceRealtime, s.Source)
	assert.Equal(t, 29.0, s.Setpoint)
	assert.Equal(t, 0, budget.Snapshot().Used, "no quota spent when push is fresh")
}

func TestResolveFallsBackToPoll(t *testing.T) {
	now := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	cache := push.NewCache()
	cache.Set(state.Status{
		DeviceID:   "pool-1",
		Setpoint:   29,
		Source:     state.SourceRealtime,
		ObservedAt: now.Add(-10 * time.Minute),
	})
	budget := quota.New(10, time.Hour, 0)

	a := testArbiter(cache, budget, &fakeStore{}, now)
	s, err := a.Resolve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, state.SourcePolled, s.Source, "stale push is not trusted")
	assert.Equal(t, 1, budget.Snapshot().Used)
}

func TestResolveFallsBackToStored(t *testing.T) {
	now := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	budget := quota.New(0, time.Hour, 0)
	store := &fakeStore{status: &state.Status{
		DeviceID:   "pool-1",
		Setpoint:   27,
		ObservedAt: now.Add(-time.Hour),
	}}

	a := testArbiter(push.NewCache(), budget, store, now)
	s, err := a.Resolve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, state.SourceCached, s.Source)
	assert.Equal(t, 27.0, s.Setpoint)
	assert.Equal(t, 0, budget.Snapshot().Used, "exhausted quota never reaches the device")
}

func TestResolveAllSourcesFail(t *testing.T) {
	now := time.Date(2026, 6, 12, 10, 0, 0, 0, time.UTC)
	budget := quota.New(0, time.Hour, 0)

	a := testArbiter(push.NewCache(), budget, &fakeStore{}, now)
	s, err := a.Resolve(context.Background())
	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "realtime")
	assert.Contains(t, err.Error(), "polled")
	assert.Contains(t, err.Error(), "cached")
}

func TestCorroborateMeter(t *testing.T) {
	s := &state.Status{Power: state.PowerOff}
	CorroborateMeter(s, &meter.Data{Current_W: 1200}, 50)
	assert.Equal(t, state.PowerOn, s.Power, "meter beats cloud")

	s = &state.Status{Power: state.PowerOn}
	CorroborateMeter(s, &meter.Data{Current_W: 8}, 50)
	assert.Equal(t, state.PowerStandby, s.Power)

	s = &state.Status{Power: state.PowerOn}
	CorroborateMeter(s, nil, 50)
	assert.Equal(t, state.PowerOn, s.Power, "no reading changes nothing")

	s = &state.Status{Power: state.PowerStandby}
	CorroborateMeter(s, &meter.Data{Current_W: 8}, 50)
	assert.Equal(t, state.PowerStandby, s.Power)
}
