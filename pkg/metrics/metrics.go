// Package metrics exposes fleet counters and gauges on a private
// prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every instrument the monitor updates.
type Metrics struct {
	Temperature   *prometheus.GaugeVec
	Humidity      *prometheus.GaugeVec
	ReadFailures  *prometheus.CounterVec
	LockTimeouts  prometheus.Counter
	AlertsSent    *prometheus.CounterVec
	HeaterRuns    *prometheus.CounterVec
	ActiveSensors prometheus.Gauge
	Rescans       prometheus.Counter
}

// New builds and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "freezer",
			Name:      "temperature_celsius",
			Help:      "Last temperature reading per sensor (configured units)",
		}, []string{"sensor"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "freezer",
			Name:      "relative_humidity_percent",
			Help:      "Last relative humidity reading per sensor",
		}, []string{"sensor"}),
		ReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freezer",
			Name:      "read_failures_total",
			Help:      "Increase when a bus read returns an error",
		}, []string{"sensor"}),
		LockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freezer",
			Name:      "bus_lock_timeouts_total",
			Help:      "Increase when a bus lock acquisition times out",
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freezer",
			Name:      "alerts_sent_total",
			Help:      "Alert attempts per sensor and kind",
		}, []string{"sensor", "kind"}),
		HeaterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freezer",
			Name:      "heater_runs_total",
			Help:      "Heater pulses per sensor",
		}, []string{"sensor"}),
		ActiveSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freezer",
			Name:      "active_sensors",
			Help:      "Number of running sensor actors",
		}),
		Rescans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freezer",
			Name:      "rescans_total",
			Help:      "Completed bus rescans",
		}),
	}

	reg.MustRegister(
		m.Temperature,
		m.Humidity,
		m.ReadFailures,
		m.LockTimeouts,
		m.AlertsSent,
		m.HeaterRuns,
		m.ActiveSensors,
		m.Rescans,
	)
	return m
}
