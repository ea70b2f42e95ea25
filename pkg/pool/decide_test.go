package pool

import (
	"testing"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/config"
	"github.com/Smooother/poolheating/pkg/price"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 6, 12, 14, 0, 0, 0, time.UTC)

func inputs(level price.Level, setpoint float64, lastChange time.Time, mod func(*config.AutomationSettings)) Inputs {
	s := config.DefaultSettings()
	if mod != nil {
		mod(s)
	}
	return Inputs{
		Now: testNow,
		Classification: price.Classification{
			Level:   level,
			Price:   80,
			Average: 100,
		},
		Status: state.Status{
			DeviceID: "pool-1",
			Setpoint: setpoint,
			Power:    state.PowerOn,
			Online:   true,
			Source:   state.SourceRealtime,
		},
		LastChangeAt: lastChange,
		Settings:     s,
	}
}

func TestDecide(t *testing.T) {
	twoHoursAgo := testNow.Add(-2 * time.Hour)

	var tests = []struct {
		name     string
		in       Inputs
		outcome  Outcome
		proposed float64
	}{
		{
			name:     "low price raises",
			in:       inputs(price.LevelLow, 28, twoHoursAgo, nil),
			outcome:  OutcomeApplied,
			proposed: 30,
		},
		{
			name:     "high price lowers",
			in:       inputs(price.LevelHigh, 28, twoHoursAgo, nil),
			outcome:  OutcomeApplied,
			proposed: 26,
		},
		{
			name:     "normal price holds",
			in:       inputs(price.LevelNormal, 28, twoHoursAgo, nil),
			outcome:  OutcomeSkippedNoChange,
			proposed: 28,
		},
		{
			name: "hysteresis swallows small step",
			in: inputs(price.LevelLow, 30, twoHoursAgo, func(s *config.AutomationSettings) {
				s.TargetBaseTemp = 28.2
			}),
			outcome:  OutcomeSkippedNoChange,
			proposed: 30,
		},
		{
			name: "raise clamped at max",
			in: inputs(price.LevelLow, 28, twoHoursAgo, func(s *config.AutomationSettings) {
				s.TargetBaseTemp = 31
			}),
			outcome:  OutcomeApplied,
			proposed: 32,
		},
		{
			name: "drop clamped at min",
			in: inputs(price.LevelHigh, 22, twoHoursAgo, func(s *config.AutomationSettings) {
				s.TargetBaseTemp = 21
			}),
			outcome:  OutcomeApplied,
			proposed: 20,
		},
		{
			name:     "anti short cycle holds",
			in:       inputs(price.LevelLow, 28, testNow.Add(-10*time.Minute), nil),
			outcome:  OutcomeSkippedAntiCycle,
			proposed: 28,
		},
		{
			name:     "rate limit allows partial step",
			in:       inputs(price.LevelLow, 28, testNow.Add(-30*time.Minute), nil),
			outcome:  OutcomeSkippedRateLimit,
			proposed: 29,
		},
		{
			name:     "rate limit partial step downward",
			in:       inputs(price.LevelHigh, 32, testNow.Add(-time.Hour), nil),
			outcome:  OutcomeSkippedRateLimit,
			proposed: 30,
		},
		{
			name:     "rate credit capped at two hours",
			in:       inputs(price.LevelNormal, 23, testNow.Add(-10*time.Hour), nil),
			outcome:  OutcomeSkippedRateLimit,
			proposed: 27,
		},
		{
			name:     "first change skips rate limit",
			in:       inputs(price.LevelNormal, 23, time.Time{}, nil),
			outcome:  OutcomeApplied,
			proposed: 28,
		},
		{
			name: "disabled automation still logs",
			in: inputs(price.LevelLow, 28, twoHoursAgo, func(s *config.AutomationSettings) {
				s.Enabled = false
			}),
			outcome:  OutcomeSkippedNoChange,
			proposed: 28,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := Decide(tt.in)
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.proposed, r.ProposedSetpoint)
			assert.Equal(t, tt.in.Status.Setpoint, r.PreviousSetpoint)
			assert.NotEmpty(t, r.Reason)
			assert.GreaterOrEqual(t, r.ProposedSetpoint, tt.in.Settings.MinTemp)
			assert.LessOrEqual(t, r.ProposedSetpoint, tt.in.Settings.MaxTemp)
		})
	}
}

func TestDecideDisabledReason(t *testing.T) {
	in := inputs(price.LevelLow, 28, time.Time{}, func(s *config.AutomationSettings) {
		s.Enabled = false
	})
	r := Decide(in)
	assert.Equal(t, "automation disabled", r.Reason)
	assert.False(t, r.ProposesChange())
}

func TestDecideFromClassification(t *testing.T) {
	// 0.80 SEK against a 1.00 SEK average with a 15% band grades LOW,
	// which raises the base target by the low offset.
	history := []price.Point{}
	for i := 1; i <= 24; i++ {
		history = append(history, price.Point{
			Start: testNow.Add(-time.Duration(i) * time.Hour),
			Value: 100,
		})
	}
	c := price.Classify(history, 80, testNow, price.ClassifierConfig{
		Method:       price.MethodDelta,
		WindowDays:   7,
		DeltaPercent: 15,
	})
	assert.Equal(t, price.LevelLow, c.Level)

	in := inputs(c.Level, 28, testNow.Add(-2*time.Hour), nil)
	in.Classification = c
	r := Decide(in)
	assert.Equal(t, OutcomeApplied, r.Outcome)
	assert.Equal(t, 30.0, r.ProposedSetpoint)
}

func TestProposesChange(t *testing.T) {
	r := &Record{Outcome: OutcomeApplied, PreviousSetpoint: 28, ProposedSetpoint: 30}
	assert.True(t, r.ProposesChange())

	r = &Record{Outcome: OutcomeSkippedRateLimit, PreviousSetpoint: 28, ProposedSetpoint: 29}
	assert.True(t, r.ProposesChange(), "partial step is still a change")

	r = &Record{Outcome: OutcomeSkippedNoChange, PreviousSetpoint: 28, ProposedSetpoint: 28}
	assert.False(t, r.ProposesChange())

	r = &Record{Outcome: OutcomeFailed}
	assert.False(t, r.ProposesChange())

	off := false
	r = &Record{Outcome: OutcomeApplied, PreviousSetpoint: 28, ProposedSetpoint: 28, Critical: true, PowerOn: &off}
	assert.True(t, r.ProposesChange(), "power action alone is a change")
}
