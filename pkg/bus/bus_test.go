package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateMutualExclusion(t *testing.T) {
	g := NewGate()

	var inside int32
	var violations int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !g.Acquire(time.Second) {
					continue
				}
				if atomic.AddInt32(&inside, 1) != 1 {
					atomic.AddInt32(&violations, 1)
				}
				atomic.AddInt32(&inside, -1)
				g.Release()
			}
		}()
	}
	wg.Wait()

	if violations != 0 {
		t.Errorf("observed %d concurrent holders", violations)
	}
}

func TestGateAcquireTimeout(t *testing.T) {
	g := NewGate()
	if !g.Acquire(time.Second) {
		t.Fatal("first acquire should succeed")
	}

	start := time.Now()
	if g.Acquire(50 * time.Millisecond) {
		t.Fatal("second acquire should time out")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("acquire blocked for %v, expected prompt timeout", elapsed)
	}

	g.Release()
	if !g.Acquire(50 * time.Millisecond) {
		t.Error("acquire after release should succeed")
	}
}

func TestSerialScannerSameChannel(t *testing.T) {
	var active int32
	var overlap int32

	inner := scanFunc(func(channel int, addr uint16) ([]int, error) {
		if atomic.AddInt32(&active, 1) != 1 {
			atomic.AddInt32(&overlap, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return []int{channel}, nil
	})

	s := NewSerialScanner(inner)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Scan(3, 0x44)
		}()
	}
	wg.Wait()

	if overlap != 0 {
		t.Errorf("observed %d overlapping scans on one channel", overlap)
	}
}

type scanFunc func(channel int, addr uint16) ([]int, error)

func (f scanFunc) Scan(channel int, addr uint16) ([]int, error) {
	return f(channel, addr)
}

func TestSimScanAndOpen(t *testing.T) {
	sim := NewSim()
	sim.Attach(2, 0x44, -18.0)

	found, err := sim.Scan(2, 0x44)
	if err != nil || len(found) != 1 || found[0] != 2 {
		t.Fatalf("Scan: got %v, %v", found, err)
	}

	if found, _ := sim.Scan(1, 0x44); len(found) != 0 {
		t.Errorf("expected no device on channel 1, got %v", found)
	}

	dev, err := sim.Open(2, 0x44)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := dev.Temperature(); err != nil {
		t.Errorf("Temperature: %v", err)
	}

	sim.Detach(2, 0x44)
	if found, _ := sim.Scan(2, 0x44); len(found) != 0 {
		t.Errorf("expected empty scan after detach, got %v", found)
	}
}
