package bus

import "sync"

// SerialScanner wraps a Scanner so that no two scans of the same
// multiplexer channel run concurrently. Scans of different channels may
// still overlap at this layer; the bus Gate is what serializes the wire.
type SerialScanner struct {
	inner Scanner

	mu       sync.Mutex
	channels map[int]*sync.Mutex
}

// NewSerialScanner wraps scanner with per-channel serialization.
func NewSerialScanner(scanner Scanner) *SerialScanner {
	return &SerialScanner{
		inner:    scanner,
		channels: make(map[int]*sync.Mutex),
	}
}

func (s *SerialScanner) channelLock(channel int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.channels[channel]
	if !ok {
		l = &sync.Mutex{}
		s.channels[channel] = l
	}
	return l
}

// Scan probes one channel for devices at addr.
func (s *SerialScanner) Scan(channel int, addr uint16) ([]int, error) {
	l := s.channelLock(channel)
	l.Lock()
	defer l.Unlock()
	return s.inner.Scan(channel, addr)
}
