// Package bus arbitrates access to the shared sensor bus. Every read,
// heater toggle and discovery scan must go through a single Gate so
// transactions never interleave on the wire.
package bus

import (
	"time"
)

// DefaultLockTimeout bounds how long a caller waits for the bus before
// giving up on this cycle's operation.
const DefaultLockTimeout = 1 * time.Second

// Device is the raw, fallible read/write surface of one sensor on the
// bus. Implementations are hardware bindings and are not goroutine safe;
// callers must hold the bus Gate around every call.
type Device interface {
	Temperature() (float64, error)
	Humidity() (float64, error)
	SetHeater(on bool) error
	Status() (uint16, error)
}

// Scanner probes a multiplexer channel for devices answering at the
// given address and returns the channels where one was found.
type Scanner interface {
	Scan(channel int, addr uint16) ([]int, error)
}

// Opener binds a Device at an address on a multiplexer channel.
type Opener interface {
	Open(channel int, addr uint16) (Device, error)
}

// Gate is a mutual-exclusion lock with a bounded acquire. A zero or
// negative timeout waits indefinitely.
type Gate struct {
	sem chan struct{}
}

// NewGate returns an unlocked Gate.
func NewGate() *Gate {
	return &Gate{sem: make(chan struct{}, 1)}
}

// Acquire takes the gate, waiting at most timeout. It reports whether
// the gate was acquired; callers that get false must skip their bus
// operation for this cycle.
func (g *Gate) Acquire(timeout time.Duration) bool {
	if timeout <= 0 {
		g.sem <- struct{}{}
		return true
	}
	select {
	case g.sem <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case g.sem <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

// Release gives the gate back. Must be called exactly once per
// successful Acquire, on every exit path.
func (g *Gate) Release() {
	<-g.sem
}
