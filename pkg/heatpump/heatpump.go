package heatpump

import (
	"context"

	"github.com/Smooother/poolheating/pkg/state"
)

// Adapter is the narrow surface we drive a pool heat pump through. One
// implementation per vendor protocol.
type Adapter interface {
	// Status polls the device for its current state.
	Status(ctx context.Context) (*state.Status, error)

	SetSetpoint(ctx context.Context, value float64) error
	SetPower(ctx context.Context, on bool) error
}

func Scale100itof(i int, err error) (*float64, error) {
	f := float64(i) / 100.0
	return &f, err
}

func Scale10itof(i int, err error) (*float64, error) {
	f := float64(i) / 10.0
	return &f, err
}
