package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/meter"
	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/push"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/sirupsen/logrus"
)

// Source is one way of learning what the device is doing. Fetch fails
// when the source cannot answer right now.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*state.Status, error)
}

// Arbiter walks its sources in order of trust and returns the first
// answer. Which source answered is visible on the status itself.
type Arbiter struct {
	sources []Source
}

func NewArbiter(sources ...Source) *Arbiter {
	return &Arbiter{sources: sources}
}

func (a *Arbiter) Resolve(ctx context.Context) (*state.Status, error) {
	var errs []error
	for _, src := range a.sources {
		s, err := src.Fetch(ctx)
		if err != nil {
			logrus.Debugf("status: %s unavailable: %s", src.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		return s, nil
	}
	return nil, errors.Join(errs...)
}

// Push serves the broker cache while the entry is fresh enough.
type Push struct {
	Cache      *push.Cache
	DeviceID   string
	StaleAfter time.Duration

	now func() time.Time
}

func (p *Push) Name() string { return "realtime" }

func (p *Push) Fetch(ctx context.Context) (*state.Status, error) {
	now := time.Now()
	if p.now != nil {
		now = p.now()
	}
	s, ok := p.Cache.Fresh(p.DeviceID, now, p.StaleAfter)
	if !ok {
		return nil, fmt.Errorf("no push younger than %s", p.StaleAfter)
	}
	return &s, nil
}

// Poll asks the device directly. Reserving quota and making the call is
// one step, a denied reservation fails the source without I/O.
type Poll struct {
	Adapter heatpump.Adapter
	Budget  *quota.Budget
	Timeout time.Duration
}

func (p *Poll) Name() string { return "polled" }

func (p *Poll) Fetch(ctx context.Context) (*state.Status, error) {
	if !p.Budget.TryPollSpend() {
		return nil, fmt.Errorf("quota or min interval denied poll")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	s, err := p.Adapter.Status(ctx)
	if err != nil {
		return nil, err
	}
	s.Source = state.SourcePolled
	return s, nil
}

// Stored falls back to the last persisted observation, clearly marked
// as cached so downstream knows it may be stale.
type Stored struct {
	Store    LastStatusStore
	DeviceID string
}

type LastStatusStore interface {
	LastStatus(ctx context.Context, deviceID string) (*state.Status, error)
}

func (s *Stored) Name() string { return "cached" }

func (s *Stored) Fetch(ctx context.Context) (*state.Status, error) {
	st, err := s.Store.LastStatus(ctx, s.DeviceID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("nothing stored yet")
	}
	st.Source = state.SourceCached
	return st, nil
}

// CorroborateMeter reconciles the reported power state with what the
// energy meter on the feed actually measures. A pump drawing real power
// is running no matter what the vendor cloud claims.
func CorroborateMeter(st *state.Status, d *meter.Data, threshold float64) {
	if st == nil || d == nil {
		return
	}
	if st.Power == state.PowerOff && d.DrawingPower(threshold) {
		logrus.Warnf("status: reported off but meter shows %.0fW, treating as on", d.Current_W)
		st.Power = state.PowerOn
	} else if st.Power == state.PowerOn && !d.DrawingPower(threshold) {
		st.Power = state.PowerStandby
	}
}
