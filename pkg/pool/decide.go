package pool

import (
	"fmt"
	"math"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/config"
	"github.com/Smooother/poolheating/pkg/price"
	"github.com/Smooother/poolheating/pkg/state"
)

// rate credit stops accruing after two hours so a pump that sat still
// all night does not get slammed to the far end in one step.
const maxRateCreditHours = 2.0

type Inputs struct {
	Now            time.Time
	Classification price.Classification
	Status         state.Status
	LastChangeAt   time.Time
	Settings       *config.AutomationSettings
}

// Decide turns a price classification and the current device state into
// a decision record. Pure, no I/O. Gates run in a fixed order: hysteresis
// first, then the anti short cycle hold, then the hourly rate limit.
func Decide(in Inputs) *Record {
	r := &Record{
		Time:             in.Now,
		DeviceID:         in.Status.DeviceID,
		Price:            in.Classification.Price,
		Level:            in.Classification.Level,
		PriceAverage:     in.Classification.Average,
		CoverageDays:     in.Classification.CoverageDays,
		PreviousSetpoint: in.Status.Setpoint,
		ProposedSetpoint: in.Status.Setpoint,
		AppliedSetpoint:  in.Status.Setpoint,
		StatusSource:     in.Status.Source,
	}
	s := in.Settings

	if !s.Enabled {
		r.Outcome = OutcomeSkippedNoChange
		r.Reason = "automation disabled"
		return r
	}

	naive := s.TargetBaseTemp
	switch in.Classification.Level {
	case price.LevelLow:
		naive = s.TargetBaseTemp + s.LowOffset
	case price.LevelHigh:
		naive = s.TargetBaseTemp - s.HighOffset
	}
	target := clamp(naive, s.MinTemp, s.MaxTemp)

	if math.Abs(target-in.Status.Setpoint) < s.Hysteresis {
		r.Outcome = OutcomeSkippedNoChange
		r.Reason = fmt.Sprintf("target %.2f within %.2f of current %.2f", target, s.Hysteresis, in.Status.Setpoint)
		return r
	}

	if !in.LastChangeAt.IsZero() {
		hold := time.Duration(s.AntiShortCycleMinutes) * time.Minute
		since := in.Now.Sub(in.LastChangeAt)
		if since < hold {
			r.Outcome = OutcomeSkippedAntiCycle
			r.Reason = fmt.Sprintf("last change %s ago, holding %s", since.Round(time.Second), hold)
			return r
		}
	}

	if s.MaxChangePerHour > 0 && !in.LastChangeAt.IsZero() {
		hours := math.Min(in.Now.Sub(in.LastChangeAt).Hours(), maxRateCreditHours)
		allowed := s.MaxChangePerHour * hours
		if math.Abs(target-in.Status.Setpoint) > allowed {
			step := allowed
			if target < in.Status.Setpoint {
				step = -allowed
			}
			r.ProposedSetpoint = clamp(in.Status.Setpoint+step, s.MinTemp, s.MaxTemp)
			r.Outcome = OutcomeSkippedRateLimit
			r.Reason = fmt.Sprintf("target %.2f limited to %.2f by %.1f°C/h", target, r.ProposedSetpoint, s.MaxChangePerHour)
			return r
		}
	}

	r.ProposedSetpoint = target
	r.Outcome = OutcomeApplied
	r.Reason = fmt.Sprintf("price %s, target %.2f", in.Classification.Level, target)
	return r
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
