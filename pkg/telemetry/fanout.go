package telemetry

import "github.com/automatedhome/freezer/pkg/sensor"

// Fanout publishes every reading to each configured sink.
type Fanout []sensor.Publisher

// Publish forwards the reading to all sinks in order.
func (f Fanout) Publish(key, name string, r sensor.Reading) {
	for _, p := range f {
		p.Publish(key, name, r)
	}
}
