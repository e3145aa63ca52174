// Package display drives the physical screen. Rendering hardware sits
// behind the Screen interface; this package only decides what to show
// and when, cycling through the active sensors.
package display

import (
	"context"
	"log"
	"time"

	"github.com/automatedhome/freezer/pkg/registry"
)

const (
	// DefaultCycles is how many times the rotation passes over all
	// sensors before the screen times out. Clamped between 3 and 10.
	DefaultCycles = 3
	// DefaultTimeout is the total on-time of the display per wake-up.
	DefaultTimeout = 60 * time.Second

	minDwell = 1500 * time.Millisecond
)

// Screen renders a sensor's two text lines. Implementations must
// tolerate NaN values rendered as-is.
type Screen interface {
	Render(lines []string) error
}

// LogScreen is the fallback Screen used when no display hardware is
// attached: it writes the lines to the process log.
type LogScreen struct{}

func (LogScreen) Render(lines []string) error {
	for _, l := range lines {
		log.Printf("display: %s", l)
	}
	return nil
}

// Cycler rotates the display through every active sensor.
type Cycler struct {
	screen  Screen
	reg     *registry.Registry
	timeout time.Duration
	ncycles int
}

// NewCycler builds a Cycler; zero timeout and ncycles select defaults.
func NewCycler(screen Screen, reg *registry.Registry, timeout time.Duration, ncycles int) *Cycler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ncycles < DefaultCycles {
		ncycles = DefaultCycles
	}
	if ncycles > 10 {
		ncycles = 10
	}
	return &Cycler{screen: screen, reg: reg, timeout: timeout, ncycles: ncycles}
}

// Run cycles until ctx is canceled. An empty fleet just waits out the
// timeout and looks again.
func (c *Cycler) Run(ctx context.Context) {
	for {
		n := c.reg.Len()
		if n == 0 {
			if sleep(ctx, c.timeout) {
				return
			}
			continue
		}

		dwell := c.timeout / time.Duration(n*c.ncycles)
		if dwell < minDwell {
			dwell = minDwell
		}

		for _, s := range c.reg.CycleThru(c.ncycles) {
			if err := c.screen.Render(s.DisplayText()); err != nil {
				log.Printf("Failed to update display: %v", err)
			}
			if sleep(ctx, dwell) {
				return
			}
		}
	}
}

// sleep waits for d or cancellation, reporting whether ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
