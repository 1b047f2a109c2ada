package service

import (
	"context"
	"log"
)

// Actuator raises the physical gate arm.  Raise is never retried: the
// command is not idempotent from the driver's point of view, and a failure
// is reported upward instead of retried blind.
type Actuator interface {
	Raise(ctx context.Context, gateID string) error
}

// LogActuator stands in for gate hardware: it logs the raise command and
// reports success.  Production deployments swap in the hardware binding.
type LogActuator struct {
	Logger *log.Logger
}

func (a *LogActuator) Raise(_ context.Context, gateID string) error {
	if a.Logger != nil {
		a.Logger.Printf("actuator: raise gate=%s", gateID)
	}
	return nil
}
