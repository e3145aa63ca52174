// Package sensor implements the per-sensor polling actor: a poll/report
// cycle against the shared bus, a rolling-average alert evaluator,
// heater scheduling and fan-out to the data log and telemetry.
package sensor

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/automatedhome/freezer/pkg/alert"
	"github.com/automatedhome/freezer/pkg/bus"
	"github.com/automatedhome/freezer/pkg/datalog"
	"github.com/automatedhome/freezer/pkg/heater"
	"github.com/automatedhome/freezer/pkg/metrics"
)

// Deps are the shared handles a sensor needs. They are constructed once
// at startup and threaded through; none of them is owned by the sensor
// except the data log writer it creates for itself.
type Deps struct {
	Gate      *bus.Gate
	Heater    *heater.Coordinator
	Alerts    *alert.Dispatcher
	Publisher Publisher
	Metrics   *metrics.Metrics

	DataDir    string
	BackupDays int
}

// Sensor is one polling actor. Construct with New, run with Start and
// tear down with Stop; a stopped sensor cannot be restarted.
type Sensor struct {
	cfg  Config
	dev  bus.Device
	gate *bus.Gate
	heat *heater.Coordinator

	alerts *alert.Dispatcher
	pub    Publisher
	mets   *metrics.Metrics
	writer *datalog.Writer

	window *Window
	polls  int

	mu     sync.Mutex
	latest Reading

	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	heaterDone chan struct{}
}

// New builds a sensor actor and its data log writer. The returned
// sensor is idle until Start is called.
func New(cfg Config, dev bus.Device, deps Deps) (*Sensor, error) {
	cfg.normalize()

	writer, err := datalog.New(
		filepath.Join(deps.DataDir, cfg.Name+".csv"),
		deps.BackupDays,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: creating data log: %w", cfg.Name, err)
	}

	return &Sensor{
		cfg:        cfg,
		dev:        dev,
		gate:       deps.Gate,
		heat:       deps.Heater,
		alerts:     deps.Alerts,
		pub:        deps.Publisher,
		mets:       deps.Metrics,
		writer:     writer,
		window:     NewWindow(cfg.windowCap()),
		latest:     newReading(time.Time{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		heaterDone: make(chan struct{}),
	}, nil
}

// Key returns the settings key this sensor was constructed from.
func (s *Sensor) Key() string { return s.cfg.Key }

// Name returns the sensor's display name.
func (s *Sensor) Name() string { return s.cfg.Name }

// Start launches the polling and heater goroutines. The sensor stops
// when ctx is canceled or Stop is called.
func (s *Sensor) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.signalStop()
		case <-s.stop:
		}
	}()
	go s.runHeater()
	go s.run()
}

// Stop signals the actor and blocks until the poll loop, the heater
// loop and the data log writer have fully shut down. Safe to call more
// than once.
func (s *Sensor) Stop() {
	s.signalStop()
	<-s.done
}

func (s *Sensor) signalStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Latest returns the most recent reading for display consumers. Before
// the first poll both values are NaN.
func (s *Sensor) Latest() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// DisplayText returns the two lines shown on the physical display.
func (s *Sensor) DisplayText() []string {
	r := s.Latest()
	return []string{
		s.cfg.Name,
		fmt.Sprintf("T : %6.1f %s", r.Temperature, UnitLabel(s.cfg.Units)),
	}
}

// Healthy reports whether the device still answers its status register.
// Used by the rescan loop to leave working sensors untouched.
func (s *Sensor) Healthy() bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	if !s.gate.Acquire(s.cfg.LockTimeout) {
		return false
	}
	defer s.gate.Release()
	_, err := s.dev.Status()
	return err == nil
}

func (s *Sensor) run() {
	defer close(s.done)

	var last time.Time
	for {
		timer := time.NewTimer(s.delay(last))
		select {
		case <-s.stop:
			timer.Stop()
			s.teardown()
			return
		case <-timer.C:
		}

		last = time.Now()
		r := s.poll()

		s.window.Push(r.Temperature)
		s.writer.Write(
			fmt.Sprintf("%6.1f %s", r.Temperature, s.cfg.Units),
			fmt.Sprintf("%6.1f %%", r.Humidity),
		)
		if s.pub != nil {
			s.pub.Publish(s.cfg.Key, s.cfg.Name, r)
		}

		s.mu.Lock()
		s.latest = r
		s.mu.Unlock()

		s.evaluate(r)
	}
}

// delay returns how long to wait before the next poll so the cycle
// holds a fixed cadence regardless of how long the last poll took.
func (s *Sensor) delay(last time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	d := s.cfg.Interval - time.Since(last)
	if d < 0 {
		return 0
	}
	return d
}

// poll reads temperature and humidity under the bus gate. Each read
// fails independently: a failed value becomes NaN and the other is
// still attempted.
func (s *Sensor) poll() Reading {
	r := newReading(time.Now())

	if !s.gate.Acquire(s.cfg.LockTimeout) {
		log.Printf("%s - failed to acquire bus lock, could not poll sensor", s.cfg.Name)
		if s.mets != nil {
			s.mets.LockTimeouts.Inc()
		}
		return r
	}
	defer s.gate.Release()

	s.polls++

	if t, err := s.dev.Temperature(); err != nil {
		log.Printf("%s - failed to get temperature from sensor: %v", s.cfg.Name, err)
		s.readFailed()
	} else {
		r.Temperature = convert(t, s.cfg.Units)
	}

	if rh, err := s.dev.Humidity(); err != nil {
		log.Printf("%s - failed to get relative humidity from sensor: %v", s.cfg.Name, err)
		s.readFailed()
	} else {
		r.Humidity = rh
	}

	if s.mets != nil {
		if !math.IsNaN(r.Temperature) {
			s.mets.Temperature.WithLabelValues(s.cfg.Name).Set(r.Temperature)
		}
		if !math.IsNaN(r.Humidity) {
			s.mets.Humidity.WithLabelValues(s.cfg.Name).Set(r.Humidity)
		}
	}
	return r
}

func (s *Sensor) readFailed() {
	if s.mets != nil {
		s.mets.ReadFailures.WithLabelValues(s.cfg.Name).Inc()
	}
}

// evaluate checks the rolling mean against the alert conditions. The
// warm-up floor avoids false all-NaN alerts before the window has seen
// real polls. A configured max threshold suppresses the min check
// entirely.
func (s *Sensor) evaluate(r Reading) {
	if s.alerts == nil || s.polls < s.cfg.MinPolls {
		return
	}

	avg := s.window.Mean()
	unit := UnitLabel(s.cfg.Units)

	switch {
	case s.window.AllNaN():
		s.alerts.AllNaN(s.cfg.Name)
	case s.cfg.MaxThres != nil:
		if avg > *s.cfg.MaxThres {
			s.alerts.OverTemp(s.cfg.Name, r.Temperature, r.Humidity, unit)
		}
	case s.cfg.MinThres != nil:
		if avg < *s.cfg.MinThres {
			s.alerts.UnderTemp(s.cfg.Name, r.Temperature, r.Humidity, unit)
		}
	}
}

// runHeater pulses the sensor heater on the fleet-wide schedule: grab
// the coordinator, heat for the configured duration, release, then wait
// out the cooldown without holding the slot.
func (s *Sensor) runHeater() {
	defer close(s.heaterDone)
	if s.heat == nil {
		return
	}

	for {
		if !s.heat.Acquire(s.stop) {
			return
		}
		s.setHeater(true)
		if s.mets != nil {
			s.mets.HeaterRuns.WithLabelValues(s.cfg.Name).Inc()
		}
		stopped := s.wait(s.cfg.HeaterDuration)
		s.setHeater(false)
		s.heat.Release()

		if stopped {
			return
		}
		if s.wait(s.cfg.HeaterCooldown) {
			return
		}
	}
}

// wait sleeps for d or until the actor is stopped, whichever comes
// first, and reports whether it was stopped.
func (s *Sensor) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stop:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Sensor) setHeater(on bool) {
	if !s.gate.Acquire(s.cfg.LockTimeout) {
		log.Printf("%s - failed to acquire bus lock, could not toggle heater", s.cfg.Name)
		return
	}
	defer s.gate.Release()

	if err := s.dev.SetHeater(on); err != nil {
		log.Printf("%s - failed to toggle heater: %v", s.cfg.Name, err)
	}
}

// teardown runs after the poll loop exits: join the heater loop, force
// the heater off, then drain and close the data log.
func (s *Sensor) teardown() {
	<-s.heaterDone
	s.setHeater(false)
	s.writer.Close()
	log.Printf("%s - sensor stopped", s.cfg.Name)
}
