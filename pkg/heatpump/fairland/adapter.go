package fairland

import (
	"context"
	"fmt"
	"time"

	"github.com/Smooother/poolheating/pkg/heatpump"
	"github.com/Smooother/poolheating/pkg/modbusclient"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/sirupsen/logrus"
)

// Fairland drives an inverter pool pump over the RS485/modbus bridge.
type Fairland struct {
	client   modbusclient.Client
	deviceID string
}

func New(client modbusclient.Client, deviceID string) *Fairland {
	return &Fairland{
		client:   client,
		deviceID: deviceID,
	}
}

func (f *Fairland) Status(ctx context.Context) (*state.Status, error) {
	s := &state.Status{
		DeviceID:   f.deviceID,
		Source:     state.SourcePolled,
		ObservedAt: time.Now(),
	}
	var err error

	s.WaterTemp, err = heatpump.Scale10itof(f.client.ReadInputRegister(1)) // 1 inlet water temp scale 10
	if err != nil {
		return s, err
	}
	s.WaterOutTemp, err = heatpump.Scale10itof(f.client.ReadInputRegister(2)) // 2 outlet water temp scale 10
	if err != nil {
		return s, err
	}
	s.AmbientTemp, err = heatpump.Scale10itof(f.client.ReadInputRegister(3)) // 3 ambient temp scale 10
	if err != nil {
		return s, err
	}

	target, err := f.client.ReadHoldingRegister(0) // holding 0 target temp scale 10
	if err != nil {
		return s, err
	}
	s.Setpoint = float64(target) / 10.0

	on, err := f.client.ReadCoil(0) // coil 0 power
	if err != nil {
		return s, err
	}
	s.Power = state.PowerOff
	if on {
		s.Power = state.PowerOn
		speed, err := f.client.ReadInputRegister(5) // 5 compressor speed percent scale 10
		if err != nil {
			return s, err
		}
		// powered but compressor parked means the pump reached target
		if speed == 0 {
			s.Power = state.PowerStandby
		}
	}

	fault, err := f.client.ReadDiscreteInput(0) // discrete 0 fault active
	if err != nil {
		return s, err
	}
	alarm := len(fault) > 0 && fault[0]&0x01 == 0x01
	s.Alarm = &alarm
	if alarm {
		code, err := f.client.ReadInputRegister(4) // 4 fault code
		if err != nil {
			return s, err
		}
		logrus.Warnf("fairland: pump reports fault: %s", FaultText(code))
	}

	// the bridge answered, so the pump is reachable
	s.Online = true

	return s, nil
}

func (f *Fairland) SetSetpoint(ctx context.Context, value float64) error {
	logrus.Debugf("fairland: writing target temp %.1f", value)
	_, err := f.client.WriteSingleRegister(0, uint16(value*10)) // 10 = 1c
	if err != nil {
		return fmt.Errorf("error writing target temp: %w", err)
	}
	return nil
}

func (f *Fairland) SetPower(ctx context.Context, on bool) error {
	logrus.Infof("fairland: writing power %t", on)
	_, err := f.client.WriteSingleCoil(0, modbusclient.CoilValue(on))
	if err != nil {
		return fmt.Errorf("error writing power: %w", err)
	}
	return nil
}
