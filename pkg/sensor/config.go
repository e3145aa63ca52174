package sensor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/automatedhome/freezer/pkg/bus"
	"github.com/automatedhome/freezer/pkg/heater"
)

// Config fully describes one sensor. It is immutable once the actor is
// constructed; the rescan loop replaces the whole actor to apply
// changes.
type Config struct {
	Key     string // settings key, e.g. "sensor.0.sht30"
	Name    string // display name
	Channel int
	Address uint16

	Interval    time.Duration
	MinPolls    int // polls before alert evaluation starts
	LockTimeout time.Duration

	MaxThres *float64 // takes precedence over MinThres when set
	MinThres *float64
	Units    string

	HeaterDuration time.Duration
	HeaterCooldown time.Duration
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MinPolls <= 0 {
		c.MinPolls = 10
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = bus.DefaultLockTimeout
	}
	if c.HeaterDuration <= 0 {
		c.HeaterDuration = heater.DefaultDuration
	}
	if c.HeaterCooldown <= 0 {
		c.HeaterCooldown = heater.DefaultCooldown
	}
	c.Units = NormalizeUnit(c.Units)
}

// windowCap returns the rolling window capacity: thirty minutes worth
// of polls, never less than one slot.
func (c *Config) windowCap() int {
	n := int(30 * time.Minute / c.Interval)
	if n < 1 {
		n = 1
	}
	return n
}

// ParseKey splits a settings key of the form "sensor.<channel>.<type>"
// or "channel<N>.<type>" into its channel number and sensor type.
func ParseKey(key string) (channel int, stype string, err error) {
	parts := strings.Split(key, ".")
	switch {
	case len(parts) == 3 && parts[0] == "sensor":
		channel, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, "", fmt.Errorf("bad channel in key %q: %w", key, err)
		}
		return channel, parts[2], nil
	case len(parts) == 2 && strings.HasPrefix(parts[0], "channel"):
		channel, err = strconv.Atoi(strings.TrimPrefix(parts[0], "channel"))
		if err != nil {
			return 0, "", fmt.Errorf("bad channel in key %q: %w", key, err)
		}
		return channel, parts[1], nil
	}
	return 0, "", fmt.Errorf("unrecognized sensor key %q", key)
}
