package pool

import (
	"errors"
	"time"

	"github.com/Smooother/poolheating/pkg/price"
	"github.com/Smooother/poolheating/pkg/state"
)

// ErrCycleRunning is returned when a manual trigger overlaps an
// in-flight decision cycle.
var ErrCycleRunning = errors.New("decision cycle already running")

const (
	OutcomeApplied          Outcome = "APPLIED"
	OutcomeSkippedNoChange  Outcome = "SKIPPED_NO_CHANGE"
	OutcomeSkippedAntiCycle Outcome = "SKIPPED_ANTI_CYCLE"
	OutcomeSkippedRateLimit Outcome = "SKIPPED_RATE_LIMIT"
	OutcomeFailed           Outcome = "FAILED"
)

type Outcome string

// Record is one audit entry: what we saw, what we decided and what
// actually happened at the device.
type Record struct {
	ID       int64     `json:"id,omitempty"`
	Time     time.Time `json:"time"`
	DeviceID string    `json:"deviceId"`

	Price        float64     `json:"price"`
	Level        price.Level `json:"level"`
	PriceAverage float64     `json:"priceAverage"`
	CoverageDays float64     `json:"coverageDays"`

	PreviousSetpoint float64 `json:"previousSetpoint"`
	ProposedSetpoint float64 `json:"proposedSetpoint"`
	AppliedSetpoint  float64 `json:"appliedSetpoint"`

	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`

	StatusSource state.Source `json:"statusSource"`

	Critical bool  `json:"critical,omitempty"`
	PowerOn  *bool `json:"powerOn,omitempty"`

	// Dispatched is set once a write actually went out, Pending when the
	// write went out but the device never confirmed inside the window.
	Dispatched bool `json:"dispatched"`
	Pending    bool `json:"pending,omitempty"`

	MeterPowerW *float64 `json:"meterPowerW,omitempty"`
}

// ProposesChange reports whether the dispatcher has anything to do. A
// rate limited decision proposes a partial step and is still a change.
func (r *Record) ProposesChange() bool {
	if r.PowerOn != nil {
		return true
	}
	switch r.Outcome {
	case OutcomeApplied, OutcomeSkippedRateLimit:
		return r.ProposedSetpoint != r.PreviousSetpoint || r.Critical
	}
	return false
}

// FailedStatus is the record written when no source could say what the
// device is doing.
func FailedStatus(now time.Time, deviceID string, err error) *Record {
	return &Record{
		Time:     now,
		DeviceID: deviceID,
		Outcome:  OutcomeFailed,
		Reason:   "no device status: " + err.Error(),
	}
}
