// Package telemetry pushes readings to out-of-process consumers: a
// websocket collector feeding the web front-end and an MQTT broker for
// the rest of the home automation stack. Both sinks fail soft; a dead
// consumer never affects polling.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/automatedhome/freezer/pkg/sensor"
)

const reconnectInterval = 60 * time.Second

// NaN is not representable in JSON; failed readings go out as null.
type socketFrame struct {
	Name      string   `json:"name"`
	Timestamp string   `json:"timestamp"`
	Temp      *float64 `json:"temp"`
	RH        *float64 `json:"rh"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Socket is a persistent websocket client pushing one JSON frame per
// reading. A broken connection is dropped and re-dialed on the next
// maintenance tick.
type Socket struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewSocket returns a client for addr (e.g. "ws://host:20486/").
// Run must be started for the connection to be maintained.
func NewSocket(addr string) *Socket {
	return &Socket{addr: addr}
}

// Run maintains the connection until ctx is canceled: an immediate dial
// attempt, then a retry every minute while disconnected.
func (s *Socket) Run(ctx context.Context) {
	s.connect(ctx)

	t := time.NewTicker(reconnectInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.close()
			return
		case <-t.C:
			s.connect(ctx)
		}
	}
}

func (s *Socket) connect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return
	}

	conn, _, _, err := ws.DefaultDialer.Dial(ctx, s.addr)
	if err != nil {
		log.Printf("Failed to connect to telemetry socket %s: %v", s.addr, err)
		return
	}
	log.Printf("Connected to telemetry socket %s", s.addr)
	s.conn = conn
}

func (s *Socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Publish sends one reading. Not connected means the frame is dropped
// silently; a write error drops the connection for the maintenance loop
// to re-establish.
func (s *Socket) Publish(key, name string, r sensor.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}

	frame := socketFrame{
		Name:      name,
		Timestamp: r.Time.Format(time.RFC3339Nano),
		Temp:      finite(r.Temperature),
		RH:        finite(r.Humidity),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("%s - failed to encode telemetry frame: %v", name, err)
		return
	}

	if err := wsutil.WriteClientText(s.conn, data); err != nil {
		log.Printf("%s - failed to send telemetry frame: %v", name, err)
		s.conn.Close()
		s.conn = nil
	}
}
