package dispatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/push"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/sirupsen/logrus"
)

type verdict int

const (
	verdictConfirmed verdict = iota
	verdictMismatch
	verdictNoReading
	verdictCancelled
)

// Dispatcher turns decision records into device writes. Routine writes
// go out only when quota allows, critical ones always. Every write is
// verified against what the device then reports.
type Dispatcher struct {
	adapter heatpump.Adapter
	budget  *quota.Budget
	cache   *push.Cache

	epsilon      float64
	verifyWindow time.Duration
	verifyEvery  time.Duration
	retryBackoff time.Duration
	writeTimeout time.Duration
	readonly     bool

	now func() time.Time
}

func New(adapter heatpump.Adapter, budget *quota.Budget, cache *push.Cache, readonly bool) *Dispatcher {
	return &Dispatcher{
		adapter:      adapter,
		budget:       budget,
		cache:        cache,
		epsilon:      0.25,
		verifyWindow: 20 * time.Second,
		verifyEvery:  2 * time.Second,
		retryBackoff: 2 * time.Second,
		writeTimeout: 10 * time.Second,
		readonly:     readonly,
		now:          time.Now,
	}
}

// Dispatch applies the record to the device and updates it in place
// with what actually happened. Records that propose no change are left
// untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, r *pool.Record) {
	if !r.ProposesChange() {
		return
	}
	if d.readonly {
		logrus.Infof("dispatch: readonly, suppressing write of %.2f to %s", r.ProposedSetpoint, r.DeviceID)
		r.Reason += "; readonly, write suppressed"
		return
	}

	if r.Critical {
		d.budget.ForceSpend()
	} else if !d.budget.TrySpend() {
		logrus.Warnf("dispatch: quota exhausted, deferring write of %.2f to %s", r.ProposedSetpoint, r.DeviceID)
		r.Reason += "; quota exhausted, write deferred"
		return
	}

	err := d.write(ctx, r)
	if err != nil {
		logrus.Errorf("dispatch: %s", err)
		if !d.sleep(ctx, d.retryBackoff) {
			r.Outcome = pool.OutcomeFailed
			r.Reason += "; write failed: " + err.Error()
			return
		}
		err = d.write(ctx, r)
		if err != nil {
			r.Outcome = pool.OutcomeFailed
			r.Reason += "; write failed after retry: " + err.Error()
			return
		}
	}
	r.Dispatched = true
	wroteAt := d.now()

	v, seen := d.verify(ctx, r, wroteAt)
	switch v {
	case verdictConfirmed:
		r.AppliedSetpoint = seen.Setpoint
		return
	case verdictCancelled:
		r.Pending = true
		r.AppliedSetpoint = r.ProposedSetpoint
		r.Reason += "; confirmation pending, cycle budget exhausted"
		return
	case verdictNoReading:
		// the write went out, assume it landed until someone tells us
		// otherwise
		r.Pending = true
		r.AppliedSetpoint = r.ProposedSetpoint
		r.Reason += "; confirmation pending"
		return
	}

	// the device reported something else, give it one more write
	logrus.Warnf("dispatch: %s reports %.2f after writing %.2f, retrying", r.DeviceID, seen.Setpoint, r.ProposedSetpoint)
	err = d.write(ctx, r)
	if err != nil {
		r.Outcome = pool.OutcomeFailed
		r.Reason += "; rewrite failed: " + err.Error()
		return
	}

	v, seen = d.verify(ctx, r, d.now())
	switch v {
	case verdictConfirmed:
		r.AppliedSetpoint = seen.Setpoint
		r.Reason += "; confirmed after rewrite"
	case verdictMismatch:
		r.Outcome = pool.OutcomeFailed
		r.AppliedSetpoint = seen.Setpoint
		r.Reason += fmt.Sprintf("; device kept %.2f, wanted %.2f", seen.Setpoint, r.ProposedSetpoint)
	default:
		r.Pending = true
		r.AppliedSetpoint = r.ProposedSetpoint
		r.Reason += "; confirmation pending"
	}
}

func (d *Dispatcher) write(ctx context.Context, r *pool.Record) error {
	wctx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()
	if r.PowerOn != nil {
		err := d.adapter.SetPower(wctx, *r.PowerOn)
		if err != nil {
			return fmt.Errorf("set power: %w", err)
		}
	}
	if r.ProposedSetpoint != r.PreviousSetpoint {
		err := d.adapter.SetSetpoint(wctx, r.ProposedSetpoint)
		if err != nil {
			return fmt.Errorf("set setpoint: %w", err)
		}
	}
	return nil
}

// verify watches the device until it confirms the write or the window
// closes. Push updates are free, direct reads spend quota.
func (d *Dispatcher) verify(ctx context.Context, r *pool.Record, since time.Time) (verdict, *state.Status) {
	deadline := time.NewTimer(d.verifyWindow)
	defer deadline.Stop()
	tick := time.NewTicker(d.verifyEvery)
	defer tick.Stop()

	var last *state.Status
	for {
		select {
		case <-ctx.Done():
			return verdictCancelled, last
		case <-deadline.C:
			if last != nil {
				return verdictMismatch, last
			}
			return verdictNoReading, nil
		case <-tick.C:
			s := d.observe(ctx, r.DeviceID, since)
			if s == nil {
				continue
			}
			if d.confirmed(r, s) {
				return verdictConfirmed, s
			}
			last = s
		}
	}
}

func (d *Dispatcher) observe(ctx context.Context, deviceID string, since time.Time) *state.Status {
	if s, ok := d.cache.Get(deviceID); ok && s.ObservedAt.After(since) {
		return &s
	}
	if !d.budget.TrySpend() {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()
	s, err := d.adapter.Status(rctx)
	if err != nil {
		logrus.Debugf("dispatch: verify read: %s", err)
		return nil
	}
	s.Source = state.SourcePolled
	return s
}

func (d *Dispatcher) confirmed(r *pool.Record, s *state.Status) bool {
	if math.Abs(s.Setpoint-r.ProposedSetpoint) > d.epsilon {
		return false
	}
	if r.PowerOn != nil {
		if *r.PowerOn && s.Power == state.PowerOff {
			return false
		}
		if !*r.PowerOn && s.Power != state.PowerOff {
			return false
		}
	}
	return true
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
