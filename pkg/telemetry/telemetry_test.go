package telemetry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/automatedhome/freezer/pkg/sensor"
)

type recordingSink struct {
	keys []string
}

func (r *recordingSink) Publish(key, name string, reading sensor.Reading) {
	r.keys = append(r.keys, key)
}

func TestFanoutForwardsToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	f := Fanout{a, b}

	f.Publish("sensor.0.sht30", "Chest Freezer", sensor.Reading{Time: time.Now()})

	if len(a.keys) != 1 || len(b.keys) != 1 {
		t.Errorf("fanout delivery: a=%d b=%d, want 1 each", len(a.keys), len(b.keys))
	}
}

func TestSocketFrameEncodesNaNAsNull(t *testing.T) {
	frame := socketFrame{
		Name:      "Chest Freezer",
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Temp:      finite(math.NaN()),
		RH:        finite(45.0),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("NaN readings must remain encodable: %v", err)
	}
	if !strings.Contains(string(data), `"temp":null`) {
		t.Errorf("expected null temp, got %s", data)
	}
	if !strings.Contains(string(data), `"rh":45`) {
		t.Errorf("expected numeric rh, got %s", data)
	}
}

func TestMQTTPublishDoesNotBlock(t *testing.T) {
	m := NewMQTT("freezer-test", "tcp://127.0.0.1:1", "freezer")

	done := make(chan struct{})
	go func() {
		m.Publish("sensor.0.sht30", "Chest Freezer", sensor.Reading{
			Time:        time.Now(),
			Temperature: -18.0,
			Humidity:    45.0,
		})
		close(done)
	}()

	// A dead broker must not stall the caller; delivery runs off the
	// polling goroutine.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on an unreachable broker")
	}
}

func TestSocketPublishWhileDisconnected(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1/")
	// Never connected: publishing must be a silent no-op.
	s.Publish("sensor.0.sht30", "Chest Freezer", sensor.Reading{
		Time:        time.Now(),
		Temperature: -18.0,
		Humidity:    45.0,
	})
}
