// Package heater coordinates sensor heater pulses across the fleet.
// Running two heaters at once would skew neighbouring readings and
// brown out the bus supply, so at most one sensor holds the coordinator
// at any time.
package heater

import "time"

// Defaults for the heater schedule, matching the SHT3x duty cycle.
const (
	DefaultDuration = 10 * time.Second
	DefaultCooldown = 30 * time.Minute
)

// Coordinator is the fleet-wide heater critical section.
type Coordinator struct {
	sem chan struct{}
}

// New returns an idle Coordinator.
func New() *Coordinator {
	return &Coordinator{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the caller owns the heater slot or stop is
// closed. It reports whether the slot was acquired.
func (c *Coordinator) Acquire(stop <-chan struct{}) bool {
	select {
	case c.sem <- struct{}{}:
		return true
	case <-stop:
		return false
	}
}

// Release gives the heater slot back.
func (c *Coordinator) Release() {
	<-c.sem
}
