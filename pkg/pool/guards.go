package pool

import (
	"fmt"
	"math"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/config"
	"github.com/Smooother/poolheating/pkg/state"
)

// EvaluateGuards checks the water temperature against the safety limits
// and returns a critical record when immediate action is needed. Critical
// records bypass quota and the anti short cycle hold but still respect
// the configured min/max band.
func EvaluateGuards(st state.Status, s *config.AutomationSettings, now time.Time) *Record {
	if st.WaterTemp == nil {
		return nil
	}
	w := *st.WaterTemp

	if s.FrostGuardTemp > 0 && w <= s.FrostGuardTemp {
		on := true
		target := clamp(math.Max(s.FrostGuardSetpoint, st.Setpoint), s.MinTemp, s.MaxTemp)
		return &Record{
			Time:             now,
			DeviceID:         st.DeviceID,
			PreviousSetpoint: st.Setpoint,
			ProposedSetpoint: target,
			AppliedSetpoint:  st.Setpoint,
			Outcome:          OutcomeApplied,
			Reason:           fmt.Sprintf("frost guard: water %.1f at or below %.1f", w, s.FrostGuardTemp),
			StatusSource:     st.Source,
			Critical:         true,
			PowerOn:          &on,
		}
	}

	if s.OverheatTemp > 0 && w >= s.OverheatTemp {
		off := false
		return &Record{
			Time:             now,
			DeviceID:         st.DeviceID,
			PreviousSetpoint: st.Setpoint,
			ProposedSetpoint: clamp(st.Setpoint, s.MinTemp, s.MaxTemp),
			AppliedSetpoint:  st.Setpoint,
			Outcome:          OutcomeApplied,
			Reason:           fmt.Sprintf("overheat: water %.1f at or above %.1f", w, s.OverheatTemp),
			StatusSource:     st.Source,
			Critical:         true,
			PowerOn:          &off,
		}
	}

	return nil
}
