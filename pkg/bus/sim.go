package bus

import (
	"fmt"
	"math/rand"
	"sync"
)

// Sim is an in-process bus used when no hardware binding is compiled
// in. Devices are declared per channel/address and answer reads with a
// random walk around a base temperature.
type Sim struct {
	mu      sync.Mutex
	devices map[simKey]*SimDevice
}

type simKey struct {
	channel int
	addr    uint16
}

// NewSim returns an empty simulated bus.
func NewSim() *Sim {
	return &Sim{devices: make(map[simKey]*SimDevice)}
}

// Attach places a simulated device on the bus at channel/addr and
// returns it so tests can steer its behaviour.
func (s *Sim) Attach(channel int, addr uint16, base float64) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &SimDevice{temp: base, rh: 50.0}
	s.devices[simKey{channel, addr}] = d
	return d
}

// Detach removes the device at channel/addr, simulating an unplug.
func (s *Sim) Detach(channel int, addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, simKey{channel, addr})
}

// Scan reports the channels on which a device answers at addr. Only the
// probed channel is inspected, matching a per-channel hardware scan.
func (s *Sim) Scan(channel int, addr uint16) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[simKey{channel, addr}]; ok {
		return []int{channel}, nil
	}
	return nil, nil
}

// Open binds the device at channel/addr.
func (s *Sim) Open(channel int, addr uint16) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[simKey{channel, addr}]
	if !ok {
		return nil, fmt.Errorf("no device at address 0x%x on channel %d", addr, channel)
	}
	return d, nil
}

// SimDevice is a fake sensor with settable failure modes.
type SimDevice struct {
	mu     sync.Mutex
	temp   float64
	rh     float64
	failed bool
	heater bool
}

// Fail makes every subsequent call on the device return an error.
func (d *SimDevice) Fail(failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = failed
}

// Set pins the reported temperature and humidity.
func (d *SimDevice) Set(temp, rh float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temp, d.rh = temp, rh
}

// Heater reports the current heater state.
func (d *SimDevice) Heater() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heater
}

func (d *SimDevice) Temperature() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed {
		return 0, fmt.Errorf("device not responding")
	}
	return d.temp + rand.Float64()*0.2 - 0.1, nil
}

func (d *SimDevice) Humidity() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed {
		return 0, fmt.Errorf("device not responding")
	}
	return d.rh + rand.Float64()*0.5 - 0.25, nil
}

func (d *SimDevice) SetHeater(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed {
		return fmt.Errorf("device not responding")
	}
	d.heater = on
	return nil
}

func (d *SimDevice) Status() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed {
		return 0, fmt.Errorf("device not responding")
	}
	return 0x8010, nil
}
