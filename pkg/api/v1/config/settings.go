package config

import (
	"fmt"

	"github.com/Smooother/poolheating/pkg/api/v1/types"
)

// AutomationSettings is the automation profile fetched from the cloud. A
// local copy is kept so a fetch failure keeps the last known profile active.
type AutomationSettings struct {
	DeviceID string `json:"deviceId"`

	Enabled bool `json:"enabled"`

	TargetBaseTemp float64 `json:"targetBaseTemp"`
	MinTemp        float64 `json:"minTemp"`
	MaxTemp        float64 `json:"maxTemp"`
	LowOffset      float64 `json:"lowOffset"`
	HighOffset     float64 `json:"highOffset"`

	Hysteresis            float64 `json:"hysteresis"`
	AntiShortCycleMinutes int     `json:"antiShortCycleMinutes"`
	MaxChangePerHour      float64 `json:"maxChangePerHour"`

	ClassificationMethod string  `json:"classificationMethod"`
	RollingWindowDays    int     `json:"rollingWindowDays"`
	DeltaPercent         float64 `json:"deltaPercent"`
	PercentileLow        float64 `json:"percentileLow"`
	PercentileHigh       float64 `json:"percentileHigh"`

	BiddingZone types.BiddingZone `json:"biddingZone"`
	Currency    types.Currency    `json:"currency"`

	FrostGuardTemp     float64 `json:"frostGuardTemp"`
	FrostGuardSetpoint float64 `json:"frostGuardSetpoint"`
	OverheatTemp       float64 `json:"overheatTemp"`

	Meters []Meter `json:"meters,omitempty"`
}

type Meter struct {
	InterfaceType string `json:"interfaceType"`
	Model         string `json:"model"`
	PrimaryID     string `json:"primaryId"`
}

func DefaultSettings() *AutomationSettings {
	return &AutomationSettings{
		Enabled:               true,
		TargetBaseTemp:        28,
		MinTemp:               20,
		MaxTemp:               32,
		LowOffset:             2,
		HighOffset:            2,
		Hysteresis:            0.4,
		AntiShortCycleMinutes: 30,
		MaxChangePerHour:      2,
		ClassificationMethod:  "delta",
		RollingWindowDays:     7,
		DeltaPercent:          15,
		PercentileLow:         25,
		PercentileHigh:        75,
		BiddingZone:           types.BiddingZoneSE3,
		Currency:              types.CurrencyOere,
		FrostGuardTemp:        4,
		FrostGuardSetpoint:    22,
		OverheatTemp:          36,
	}
}

func (s *AutomationSettings) Validate() error {
	if s.MinTemp > s.MaxTemp {
		return fmt.Errorf("minTemp %.1f above maxTemp %.1f", s.MinTemp, s.MaxTemp)
	}
	if s.TargetBaseTemp < s.MinTemp || s.TargetBaseTemp > s.MaxTemp {
		return fmt.Errorf("targetBaseTemp %.1f outside [%.1f, %.1f]", s.TargetBaseTemp, s.MinTemp, s.MaxTemp)
	}
	if s.LowOffset < 0 || s.HighOffset < 0 {
		return fmt.Errorf("offsets must not be negative")
	}
	if s.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must not be negative")
	}
	if s.MaxChangePerHour < 0 {
		return fmt.Errorf("maxChangePerHour must not be negative")
	}
	if s.RollingWindowDays < 1 {
		return fmt.Errorf("rollingWindowDays must be at least 1")
	}
	switch s.ClassificationMethod {
	case "delta", "percentile":
	default:
		return fmt.Errorf("unknown classificationMethod %q", s.ClassificationMethod)
	}
	if s.PercentileLow < 0 || s.PercentileHigh > 100 || s.PercentileLow > s.PercentileHigh {
		return fmt.Errorf("percentiles %0.f/%0.f out of order", s.PercentileLow, s.PercentileHigh)
	}
	return nil
}

func SettingsNeedAdapterSetup(old *AutomationSettings, new *AutomationSettings) bool {
	if old == nil {
		return true
	}
	if len(old.Meters) != len(new.Meters) {
		return true
	}
	for i := range old.Meters {
		if old.Meters[i] != new.Meters[i] {
			return true
		}
	}
	return false
}
