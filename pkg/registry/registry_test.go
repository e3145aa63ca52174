package registry

import (
	"context"
	"testing"
	"time"

	"github.com/automatedhome/freezer/pkg/alert"
	"github.com/automatedhome/freezer/pkg/bus"
	"github.com/automatedhome/freezer/pkg/config"
	"github.com/automatedhome/freezer/pkg/sensor"
)

func f64(v float64) *float64 { return &v }

func testSettings() *config.Settings {
	return &config.Settings{
		Interval:   1, // seconds
		BackupDays: 1,
		MinPolls:   10,
		Sensors: map[string]config.SensorSettings{
			"sensor.0.sht30": {Name: "Chest Freezer", MaxThres: f64(-10)},
		},
	}
}

func newTestRegistry(t *testing.T, sim *bus.Sim, settings *config.Settings) *Registry {
	t.Helper()
	return New(Options{
		ScanGate: bus.NewGate(),
		Scanner:  bus.NewSerialScanner(sim),
		Opener:   sim,
		Deps: sensor.Deps{
			Gate:       bus.NewGate(),
			Alerts:     alert.NewDispatcher(nil, nil),
			DataDir:    t.TempDir(),
			BackupDays: 1,
		},
		Load:        func() (*config.Settings, error) { return settings, nil },
		Period:      time.Hour,
		LockTimeout: 100 * time.Millisecond,
	})
}

func TestRescanStartsConfiguredSensor(t *testing.T) {
	sim := bus.NewSim()
	sim.Attach(0, 0x44, -18.0)

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRegistry(t, sim, testSettings())
	r.Start(ctx)

	if r.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", r.Len())
	}
	active := r.Active()
	if active[0].Name() != "Chest Freezer" {
		t.Errorf("Name: got %q", active[0].Name())
	}

	cancel()
	r.Close()
	if r.Len() != 0 {
		t.Errorf("Len after Close: got %d, want 0", r.Len())
	}
}

func TestRescanLeavesHealthySensorUntouched(t *testing.T) {
	sim := bus.NewSim()
	sim.Attach(0, 0x44, -18.0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRegistry(t, sim, testSettings())
	r.Start(ctx)
	defer func() { cancel(); r.Close() }()

	before := r.Active()[0]
	r.Rescan(ctx)
	after := r.Active()[0]

	if before != after {
		t.Error("healthy sensor was replaced on rescan")
	}
}

func TestRescanReplacesUnhealthySensor(t *testing.T) {
	sim := bus.NewSim()
	dev := sim.Attach(0, 0x44, -18.0)

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRegistry(t, sim, testSettings())
	r.Start(ctx)
	defer func() { cancel(); r.Close() }()

	before := r.Active()[0]
	dev.Fail(true) // status register stops answering
	r.Rescan(ctx)
	dev.Fail(false)

	if r.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", r.Len())
	}
	if before == r.Active()[0] {
		t.Error("unhealthy sensor was not replaced")
	}
}

func TestRescanRemovesVanishedSensor(t *testing.T) {
	sim := bus.NewSim()
	dev := sim.Attach(0, 0x44, -18.0)

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRegistry(t, sim, testSettings())
	r.Start(ctx)
	defer func() { cancel(); r.Close() }()

	dev.Fail(true) // fail the health check so the key is re-scanned
	sim.Detach(0, 0x44)
	r.Rescan(ctx)

	if r.Len() != 0 {
		t.Errorf("Len after unplug: got %d, want 0", r.Len())
	}
}

func TestRescanSkipsUnknownKind(t *testing.T) {
	sim := bus.NewSim()
	settings := testSettings()
	settings.Sensors = map[string]config.SensorSettings{
		"sensor.0.bmp280": {Name: "Mystery"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRegistry(t, sim, settings)
	r.Rescan(ctx)

	if r.Len() != 0 {
		t.Errorf("unknown sensor kind must be skipped, Len=%d", r.Len())
	}
}

func TestRescanSkipsNonSensorKeys(t *testing.T) {
	sim := bus.NewSim()
	settings := testSettings()
	settings.Sensors["display"] = config.SensorSettings{Name: "OLED"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Attach(0, 0x44, -18.0)
	r := newTestRegistry(t, sim, settings)
	r.Rescan(ctx)
	defer func() { cancel(); r.Close() }()

	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1 (non-sensor keys ignored)", r.Len())
	}
}

func TestRescanKeepsSensorOnBusContention(t *testing.T) {
	sim := bus.NewSim()
	sim.Attach(0, 0x44, -18.0)

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRegistry(t, sim, testSettings())
	r.Start(ctx)
	defer func() { cancel(); r.Close() }()

	before := r.Active()[0]

	// A wedged bus makes both the health check and the scan time out.
	// That is contention, not an unplugged sensor: membership must not
	// change.
	r.opts.Deps.Gate.Acquire(0)
	r.Rescan(ctx)
	r.opts.Deps.Gate.Release()

	if r.Len() != 1 {
		t.Fatalf("Len after contended rescan: got %d, want 1", r.Len())
	}
	if r.Active()[0] != before {
		t.Error("sensor was replaced on pure bus contention")
	}
}

func TestRescanSkippedWhenGateBusy(t *testing.T) {
	sim := bus.NewSim()
	sim.Attach(0, 0x44, -18.0)

	r := newTestRegistry(t, sim, testSettings())
	r.opts.ScanGate.Acquire(0)
	defer r.opts.ScanGate.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Rescan(ctx) // must give up within the lock timeout

	if r.Len() != 0 {
		t.Errorf("rescan ran despite busy gate, Len=%d", r.Len())
	}
}

func TestCycleThru(t *testing.T) {
	sim := bus.NewSim()
	sim.Attach(0, 0x44, -18.0)
	sim.Attach(1, 0x44, 4.0)

	settings := testSettings()
	settings.Sensors["sensor.1.sht30"] = config.SensorSettings{Name: "Walk-in Cooler"}

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRegistry(t, sim, settings)
	r.Start(ctx)
	defer func() { cancel(); r.Close() }()

	cycle := r.CycleThru(3)
	if len(cycle) != 6 {
		t.Fatalf("CycleThru(3): got %d entries, want 6", len(cycle))
	}
	// Key order, repeated per cycle.
	if cycle[0].Name() != "Chest Freezer" || cycle[1].Name() != "Walk-in Cooler" {
		t.Errorf("cycle order wrong: %s, %s", cycle[0].Name(), cycle[1].Name())
	}
	if cycle[2] != cycle[0] {
		t.Error("second cycle should repeat the first")
	}
}
