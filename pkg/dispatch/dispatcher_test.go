package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/heatpump/dummy"
	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/push"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubbornPump accepts writes but keeps reporting its own setpoint.
type stubbornPump struct {
	setpoint float64
}

func (p *stubbornPump) Status(ctx context.Context) (*state.Status, error) {
	return &state.Status{
		DeviceID:   "pool-1",
		Setpoint:   p.setpoint,
		Power:      state.PowerOn,
		Online:     true,
		Source:     state.SourcePolled,
		ObservedAt: time.Now(),
	}, nil
}
func (p *stubbornPump) SetSetpoint(ctx context.Context, value float64) error { return nil }
func (p *stubbornPump) SetPower(ctx context.Context, on bool) error          { return nil }

// flakyPump fails the first setpoint write, then behaves.
type flakyPump struct {
	*dummy.Dummy
	mu       sync.Mutex
	failures int
}

func (p *flakyPump) SetSetpoint(ctx context.Context, value float64) error {
	p.mu.Lock()
	fail := p.failures > 0
	if fail {
		p.failures--
	}
	p.mu.Unlock()
	if fail {
		return fmt.Errorf("connection reset")
	}
	return p.Dummy.SetSetpoint(ctx, value)
}

func testDispatcher(adapter heatpump.Adapter, budget *quota.Budget, cache *push.Cache, readonly bool) *Dispatcher {
	d := New(adapter, budget, cache, readonly)
	d.verifyWindow = 300 * time.Millisecond
	d.verifyEvery = 50 * time.Millisecond
	d.retryBackoff = 20 * time.Millisecond
	return d
}

func applied(from, to float64) *pool.Record {
	return &pool.Record{
		Time:             time.Now(),
		DeviceID:         "pool-1",
		PreviousSetpoint: from,
		ProposedSetpoint: to,
		AppliedSetpoint:  from,
		Outcome:          pool.OutcomeApplied,
		Reason:           "test",
	}
}

func TestDispatchNoChange(t *testing.T) {
	budget := quota.New(10, time.Hour, 0)
	d := testDispatcher(dummy.New("pool-1"), budget, push.NewCache(), false)

	r := &pool.Record{
		DeviceID:         "pool-1",
		PreviousSetpoint: 28,
		ProposedSetpoint: 28,
		Outcome:          pool.OutcomeSkippedNoChange,
	}
	d.Dispatch(context.Background(), r)

	assert.False(t, r.Dispatched)
	assert.Equal(t, 0, budget.Snapshot().Used, "nothing to do costs nothing")
}

func TestDispatchReadonly(t *testing.T) {
	pump := dummy.New("pool-1")
	budget := quota.New(10, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), true)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.False(t, r.Dispatched)
	assert.Contains(t, r.Reason, "readonly")
	assert.Equal(t, 0, budget.Snapshot().Used)

	s, _ := pump.Status(context.Background())
	assert.Equal(t, 28.0, s.Setpoint, "device untouched")
}

func TestDispatchApplies(t *testing.T) {
	pump := dummy.New("pool-1")
	budget := quota.New(10, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched)
	assert.False(t, r.Pending)
	assert.Equal(t, pool.OutcomeApplied, r.Outcome)
	assert.Equal(t, 30.0, r.AppliedSetpoint)

	s, _ := pump.Status(context.Background())
	assert.Equal(t, 30.0, s.Setpoint)
}

func TestDispatchQuotaDeferred(t *testing.T) {
	pump := dummy.New("pool-1")
	budget := quota.New(0, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.False(t, r.Dispatched, "deferred write does not move the anti cycle clock")
	assert.Equal(t, pool.OutcomeApplied, r.Outcome, "intent is kept for the next cycle")
	assert.Contains(t, r.Reason, "write deferred")

	s, _ := pump.Status(context.Background())
	assert.Equal(t, 28.0, s.Setpoint)
}

func TestDispatchCriticalBypassesQuota(t *testing.T) {
	pump := dummy.New("pool-1")
	require.NoError(t, pump.SetPower(context.Background(), false))
	budget := quota.New(0, time.Hour, 0)
	cache := push.NewCache()

	d := testDispatcher(pump, budget, cache, false)

	// the gateway pushes the post-write state during verification
	cache.Set(state.Status{
		DeviceID:   "pool-1",
		Setpoint:   28,
		Power:      state.PowerOn,
		Online:     true,
		Source:     state.SourceRealtime,
		ObservedAt: time.Now().Add(time.Hour),
	})

	on := true
	r := applied(28, 28)
	r.Critical = true
	r.PowerOn = &on
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched)
	assert.False(t, r.Pending)
	assert.Equal(t, pool.OutcomeApplied, r.Outcome)
	assert.Equal(t, 1, budget.Snapshot().Used, "forced spend is still booked")

	s, _ := pump.Status(context.Background())
	assert.Equal(t, state.PowerOn, s.Power)
}

func TestDispatchVerifyMismatchFails(t *testing.T) {
	pump := &stubbornPump{setpoint: 28}
	budget := quota.New(100, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched)
	assert.Equal(t, pool.OutcomeFailed, r.Outcome)
	assert.Equal(t, 28.0, r.AppliedSetpoint, "record shows what the device actually kept")
	assert.Contains(t, r.Reason, "kept")
}

func TestDispatchNoConfirmationPending(t *testing.T) {
	pump := dummy.New("pool-1")
	pump.ReadErr = fmt.Errorf("gateway unreachable")
	budget := quota.New(100, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched)
	assert.True(t, r.Pending)
	assert.Equal(t, pool.OutcomeApplied, r.Outcome, "pending is not failure")
	assert.Equal(t, 30.0, r.AppliedSetpoint)
	assert.Contains(t, r.Reason, "confirmation pending")
}

func TestDispatchTransportRetry(t *testing.T) {
	pump := &flakyPump{Dummy: dummy.New("pool-1"), failures: 1}
	budget := quota.New(100, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched)
	assert.Equal(t, pool.OutcomeApplied, r.Outcome)
	assert.Equal(t, 30.0, r.AppliedSetpoint)
}

func TestDispatchTransportFailsTwice(t *testing.T) {
	pump := &flakyPump{Dummy: dummy.New("pool-1"), failures: 2}
	budget := quota.New(100, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 30)
	d.Dispatch(context.Background(), r)

	assert.False(t, r.Dispatched)
	assert.Equal(t, pool.OutcomeFailed, r.Outcome)
	assert.Contains(t, r.Reason, "after retry")
}

func TestDispatchRateLimitedPartialStep(t *testing.T) {
	pump := dummy.New("pool-1")
	budget := quota.New(10, time.Hour, 0)
	d := testDispatcher(pump, budget, push.NewCache(), false)

	r := applied(28, 29)
	r.Outcome = pool.OutcomeSkippedRateLimit
	d.Dispatch(context.Background(), r)

	assert.True(t, r.Dispatched, "a partial step is a real write")
	assert.Equal(t, pool.OutcomeSkippedRateLimit, r.Outcome, "outcome keeps naming the limit")
	assert.Equal(t, 29.0, r.AppliedSetpoint)

	s, _ := pump.Status(context.Background())
	assert.Equal(t, 29.0, s.Setpoint)
}
