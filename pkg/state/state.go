package state

import "time"

const (
	SourceRealtime Source = "realtime"
	SourcePolled   Source = "polled"
	SourceCached   Source = "cached"
)

type Source string

const (
	PowerOn      PowerState = "on"
	PowerStandby PowerState = "standby"
	PowerOff     PowerState = "off"
)

type PowerState string

// Status is a snapshot of the pump as reported by one of the status
// sources. WaterTemp is the inlet (pool side) temperature.
type Status struct {
	DeviceID string `json:"deviceId"`

	Setpoint     float64  `json:"setpoint"`
	WaterTemp    *float64 `json:"waterTemp,omitempty"`
	WaterOutTemp *float64 `json:"waterOutTemp,omitempty"`
	AmbientTemp  *float64 `json:"ambientTemp,omitempty"`

	Power  PowerState `json:"power"`
	Alarm  *bool      `json:"alarm,omitempty"`
	Online bool       `json:"online"`

	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observedAt"`
}

func (s Status) Age(now time.Time) time.Duration {
	if s.ObservedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.ObservedAt)
}

func (s Status) FreshWithin(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) <= maxAge
}

func (s Status) Running() bool {
	return s.Power == PowerOn
}

func (s Status) Map() map[string]interface{} {
	m := make(map[string]interface{})
	m["deviceId"] = s.DeviceID
	m["setpoint"] = s.Setpoint
	if s.WaterTemp != nil {
		m["waterTemp"] = *s.WaterTemp
	}
	if s.WaterOutTemp != nil {
		m["waterOutTemp"] = *s.WaterOutTemp
	}
	if s.AmbientTemp != nil {
		m["ambientTemp"] = *s.AmbientTemp
	}
	m["power"] = string(s.Power)
	if s.Alarm != nil {
		m["alarm"] = boolToInt(*s.Alarm)
	}
	m["online"] = boolToInt(s.Online)
	m["source"] = string(s.Source)
	if !s.ObservedAt.IsZero() {
		m["observedAt"] = s.ObservedAt.Unix()
	}

	return m
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
