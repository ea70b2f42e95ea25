package dummy

import (
	"context"
	"sync"
	"time"

	"github.com/Smooother/poolheating/pkg/state"
	"github.com/sirupsen/logrus"
)

// Dummy is an in-memory pump for tests and dry runs.
type Dummy struct {
	deviceID  string
	setpoint  float64
	waterTemp float64
	power     state.PowerState

	ReadErr  error
	WriteErr error

	sync.Mutex
}

func New(deviceID string) *Dummy {
	return &Dummy{
		deviceID:  deviceID,
		setpoint:  28,
		waterTemp: 26.5,
		power:     state.PowerOn,
	}
}

func Pointer[K any](val K) *K {
	return &val
}

func (d *Dummy) Status(ctx context.Context) (*state.Status, error) {
	d.Lock()
	defer d.Unlock()
	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	return &state.Status{
		DeviceID:   d.deviceID,
		Setpoint:   d.setpoint,
		WaterTemp:  Pointer(d.waterTemp),
		Power:      d.power,
		Online:     true,
		Source:     state.SourcePolled,
		ObservedAt: time.Now(),
	}, nil
}

func (d *Dummy) SetSetpoint(ctx context.Context, value float64) error {
	d.Lock()
	defer d.Unlock()
	if d.WriteErr != nil {
		return d.WriteErr
	}
	logrus.Info("dummy: SetSetpoint: ", value)
	d.setpoint = value
	return nil
}

func (d *Dummy) SetPower(ctx context.Context, on bool) error {
	d.Lock()
	defer d.Unlock()
	if d.WriteErr != nil {
		return d.WriteErr
	}
	logrus.Info("dummy: SetPower: ", on)
	if on {
		d.power = state.PowerOn
	} else {
		d.power = state.PowerOff
	}
	return nil
}

// SetWaterTemp adjusts the simulated pool temperature.
func (d *Dummy) SetWaterTemp(v float64) {
	d.Lock()
	d.waterTemp = v
	d.Unlock()
}
