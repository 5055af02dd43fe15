// Package embedded declares the hardware and platform collaborators the
// modules depend on. Implementations live outside this module; tests use the
// mocks in mock_embedded.
package embedded

//go:generate mockgen -destination=mock_embedded/mock_embedded.go -package=mock_embedded . EdgeSource,SensorReader,Watchdog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EdgeHandler is invoked by an EdgeSource for every input change. levels holds
// the current level of every input, changed the inputs that toggled. It runs in
// the source's context and must not block.
type EdgeHandler func(levels, changed uint32)

// EdgeSource delivers digital input edges.
type EdgeSource interface {
	Init(handler EdgeHandler) error
}

// SensorReader samples a temperature and humidity sensor.
type SensorReader interface {
	Read(ctx context.Context) (temperature, humidity float32, err error)
}

// Token identifies a liveness registration.
type Token = uuid.UUID

// Watchdog expects every registered task to feed its token within the timeout
// it registered with.
type Watchdog interface {
	Register(timeout time.Duration) (Token, error)
	Feed(token Token) error
}

