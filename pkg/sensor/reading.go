package sensor

import (
	"math"
	"time"
)

// Reading is one poll result. Temperature and Humidity are NaN when the
// corresponding bus read failed; a Reading is never produced without a
// timestamp.
type Reading struct {
	Time        time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"rh"`
}

func newReading(t time.Time) Reading {
	return Reading{Time: t, Temperature: math.NaN(), Humidity: math.NaN()}
}

// Publisher receives every reading for out-of-process consumers
// (telemetry push, MQTT). Implementations must not block the caller.
type Publisher interface {
	Publish(key, name string, r Reading)
}
