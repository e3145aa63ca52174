// Package registry owns the live sensor map and the discovery loop
// that reconciles configured sensors against periodic bus scans.
package registry

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/automatedhome/freezer/pkg/bus"
	"github.com/automatedhome/freezer/pkg/config"
	"github.com/automatedhome/freezer/pkg/sensor"
)

// DefaultPeriod is the rescan interval.
const DefaultPeriod = 10 * time.Minute

// errBusBusy marks a scan that never ran because the bus lock could not
// be acquired within the timeout.
var errBusBusy = errors.New("failed to acquire bus lock")

// Options wires a Registry. All shared handles are constructed at
// startup and live for the whole process.
type Options struct {
	// ScanGate serializes rescans and membership changes. It is
	// distinct from the bus gate: it protects the sensor map, not the
	// wire.
	ScanGate *bus.Gate
	Scanner  bus.Scanner
	Opener   bus.Opener
	Deps     sensor.Deps

	// Load returns fresh settings; called on every rescan so edits to
	// the settings file are picked up without a restart.
	Load func() (*config.Settings, error)

	Period      time.Duration
	LockTimeout time.Duration
}

// Registry maps settings keys to running sensor actors.
type Registry struct {
	opts Options

	mu       sync.Mutex
	sensors  map[string]*sensor.Sensor
	lastPass time.Time
	closed   bool

	done chan struct{}
}

// New returns an empty registry. Start launches the rescan loop.
func New(opts Options) *Registry {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = bus.DefaultLockTimeout
	}
	return &Registry{
		opts:    opts,
		sensors: make(map[string]*sensor.Sensor),
		done:    make(chan struct{}),
	}
}

// Start performs an initial scan and launches the periodic rescan loop.
func (r *Registry) Start(ctx context.Context) {
	r.Rescan(ctx)
	go r.loop(ctx)
}

func (r *Registry) loop(ctx context.Context) {
	defer close(r.done)
	t := time.NewTicker(r.opts.Period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Rescan(ctx)
		}
	}
}

// Len returns the number of running sensors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sensors)
}

// Active returns the running sensors ordered by key.
func (r *Registry) Active() []*sensor.Sensor {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.sensors))
	for k := range r.sensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*sensor.Sensor, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.sensors[k])
	}
	return out
}

// CycleThru returns the active sensors repeated n times, in key order,
// for the display rotation.
func (r *Registry) CycleThru(n int) []*sensor.Sensor {
	active := r.Active()
	out := make([]*sensor.Sensor, 0, n*len(active))
	for i := 0; i < n; i++ {
		out = append(out, active...)
	}
	return out
}

// LastPass returns when the rescan loop last completed an attempt.
func (r *Registry) LastPass() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPass
}

// Rescan reconciles the configured sensors against a bus scan. A busy
// scan gate means this period is skipped rather than queued up.
func (r *Registry) Rescan(ctx context.Context) {
	if !r.opts.ScanGate.Acquire(r.opts.LockTimeout) {
		log.Println("Failed to grab lock for scan, skipping this period")
		return
	}
	defer r.opts.ScanGate.Release()

	defer func() {
		r.mu.Lock()
		r.lastPass = time.Now()
		r.mu.Unlock()
	}()

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	settings, err := r.opts.Load()
	if err != nil {
		log.Printf("Failed to load settings file: %v", err)
		return
	}

	for _, key := range sortedSensorKeys(settings) {
		r.reconcile(ctx, key, settings)
	}

	if m := r.opts.Deps.Metrics; m != nil {
		m.Rescans.Inc()
		m.ActiveSensors.Set(float64(r.Len()))
	}
}

// reconcile brings one configured sensor key in line with the bus.
func (r *Registry) reconcile(ctx context.Context, key string, settings *config.Settings) {
	ss := settings.Sensors[key]
	name := ss.Name
	if name == "" {
		name = key
	}

	r.mu.Lock()
	existing := r.sensors[key]
	r.mu.Unlock()

	if existing != nil && existing.Healthy() {
		log.Printf("%s - Sensor seems to be functioning properly", name)
		return
	}

	channel, stype, err := sensor.ParseKey(key)
	if err != nil {
		log.Printf("%s - %v", name, err)
		return
	}
	addr, ok := sensor.KindAddress(stype)
	if !ok {
		log.Printf("%s - No matching sensor type found: %s", name, stype)
		return
	}

	found, err := r.scan(channel, addr)
	if err != nil {
		log.Printf("%s - Scan failed on channel %d: %v", name, channel, err)
		return
	}
	if len(found) != 1 {
		if existing != nil {
			// In the map but gone from the bus: was it unplugged?
			log.Printf("%s - Sensor not found on scan. Was it unplugged? Type: %s; Address: 0x%x.",
				name, stype, addr)
			r.removeAndStop(key)
		} else {
			log.Printf("%s - Failed to find sensor of type '%s' on address 0x%x!",
				name, stype, addr)
		}
		return
	}

	dev, err := r.opts.Opener.Open(found[0], addr)
	if err != nil {
		log.Printf("%s - Failed to bind sensor: %v", name, err)
		return
	}

	if existing != nil {
		r.removeAndStop(key)
	}

	cfg := buildConfig(key, name, found[0], addr, ss, settings)
	s, err := sensor.New(cfg, dev, r.opts.Deps)
	if err != nil {
		log.Printf("%s - Failed to construct sensor: %v", name, err)
		return
	}
	s.Start(ctx)

	r.mu.Lock()
	r.sensors[key] = s
	r.mu.Unlock()
	log.Printf("%s - Sensor started on channel %d", name, found[0])
}

// scan probes one channel under the bus gate so discovery never
// interleaves with polling traffic. A lock timeout is contention, not
// an empty scan: it must surface as an error so the caller skips this
// cycle instead of treating the sensor as unplugged.
func (r *Registry) scan(channel int, addr uint16) ([]int, error) {
	if !r.opts.Deps.Gate.Acquire(r.opts.LockTimeout) {
		return nil, errBusBusy
	}
	defer r.opts.Deps.Gate.Release()
	return r.opts.Scanner.Scan(channel, addr)
}

func (r *Registry) removeAndStop(key string) {
	r.mu.Lock()
	s := r.sensors[key]
	delete(r.sensors, key)
	r.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Close waits out any in-flight rescan, stops every sensor (each join
// blocks until its data log is drained), then joins the rescan loop.
// The context passed to Start must already be canceled.
func (r *Registry) Close() {
	r.opts.ScanGate.Acquire(0)
	r.mu.Lock()
	r.closed = true
	keys := make([]string, 0, len(r.sensors))
	for k := range r.sensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r.mu.Unlock()
	r.opts.ScanGate.Release()

	for _, k := range keys {
		r.removeAndStop(k)
	}
	<-r.done
}

func sortedSensorKeys(settings *config.Settings) []string {
	keys := make([]string, 0, len(settings.Sensors))
	for k := range settings.Sensors {
		if !strings.HasPrefix(k, "sensor.") && !strings.HasPrefix(k, "channel") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildConfig(key, name string, channel int, addr uint16, ss config.SensorSettings, settings *config.Settings) sensor.Config {
	interval := ss.Interval
	if interval <= 0 {
		interval = settings.Interval
	}
	return sensor.Config{
		Key:      key,
		Name:     name,
		Channel:  channel,
		Address:  addr,
		Interval: time.Duration(interval * float64(time.Second)),
		MinPolls: settings.MinPolls,
		MaxThres: ss.MaxThres,
		MinThres: ss.MinThres,
		Units:    ss.Units,
	}
}
