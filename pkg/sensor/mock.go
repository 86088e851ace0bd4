package sensor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/link"
)

// MockPort simulates an MU behind the Conn interface: it answers the
// handshake and streams a constant raw value at the requested frequency.
type MockPort struct {
	cfg *config.MockConfig
	now func() time.Time

	mu        sync.Mutex
	pending   []byte // bytes queued for ReadExact (handshake reply)
	streaming bool
	freqHz    uint16
	lastPoll  time.Time
	carry     float64 // fractional samples owed since the last poll
	closed    bool
	writes    [][]byte
}

var _ Conn = (*MockPort)(nil)

// NewMockPort creates a simulated MU.
func NewMockPort(cfg *config.MockConfig) *MockPort {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	return &MockPort{cfg: cfg, now: time.Now}
}

// WriteAll interprets one command packet.
func (m *MockPort) WriteAll(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("mock MU closed")
	}
	m.writes = append(m.writes, append([]byte(nil), b...))

	if len(b) < 3 {
		return fmt.Errorf("mock MU: short packet % x", b)
	}

	switch b[1] {
	case OpHandshake:
		m.pending = binary.BigEndian.AppendUint32(m.pending, m.cfg.SensorUID)
	case OpStartStream:
		if len(b) != 6 {
			return fmt.Errorf("mock MU: bad start packet % x", b)
		}
		m.streaming = true
		m.freqHz = binary.BigEndian.Uint16(b[3:5])
		m.lastPoll = m.now()
		m.carry = 0
	case OpStopStream:
		m.streaming = false
	default:
		return fmt.Errorf("mock MU: unknown opcode %#x", b[1])
	}
	return nil
}

// ReadExact returns n pending reply bytes, or link.ErrTimeout if fewer are queued.
func (m *MockPort) ReadExact(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) < n {
		got := m.pending
		m.pending = nil
		return got, link.ErrTimeout
	}
	out := m.pending[:n]
	m.pending = m.pending[n:]
	return out, nil
}

// ReadAvailable returns the samples produced since the previous poll.
func (m *MockPort) ReadAvailable() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.streaming || m.freqHz == 0 {
		return nil, nil
	}

	now := m.now()
	m.carry += now.Sub(m.lastPoll).Seconds() * float64(m.freqHz)
	m.lastPoll = now

	n := int(m.carry)
	m.carry -= float64(n)

	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = binary.BigEndian.AppendUint16(out, m.cfg.SensorRawValue)
	}
	return out, nil
}

// ClearInputBuffer drops pending reply bytes.
func (m *MockPort) ClearInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

// Flush is a no-op.
func (m *MockPort) Flush() error {
	return nil
}

// Close marks the port closed.
func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.streaming = false
	return nil
}

// Streaming reports whether a stream is active.
func (m *MockPort) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// Writes returns a copy of every packet written so far.
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}
