package bath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/thermocal/pkg/config"
	"github.com/itohio/thermocal/pkg/link"
)

// Mock simulates a bath behind the Conn interface. It understands the same
// command set as the real instrument and models a first-order thermal lag.
type Mock struct {
	cfg *config.MockConfig
	now func() time.Time

	mu        sync.Mutex
	responses []string
	closed    bool

	// Simulation state
	heating     bool
	setpoint    float64
	temperature float64
	lastUpdate  time.Time
	startTime   time.Time
	inBandSince time.Time
}

var _ Conn = (*Mock)(nil)

// NewMock creates a simulated bath at the configured ambient temperature.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	return newMockWithClock(cfg, time.Now)
}

func newMockWithClock(cfg *config.MockConfig, now func() time.Time) *Mock {
	t := now()
	return &Mock{
		cfg:         cfg,
		now:         now,
		setpoint:    cfg.AmbientC,
		temperature: cfg.AmbientC,
		lastUpdate:  t,
		startTime:   t,
	}
}

// WriteAll parses one CR-terminated command.
func (m *Mock) WriteAll(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("mock bath closed")
	}

	m.update()

	cmd := strings.TrimSpace(string(b))
	switch {
	case cmd == CmdTemperature:
		m.responses = append(m.responses, strconv.FormatFloat(m.reading(), 'f', 3, 64))
	case cmd == CmdStability:
		if m.stable() {
			m.responses = append(m.responses, "1")
		} else {
			m.responses = append(m.responses, "0")
		}
	case strings.HasPrefix(cmd, CmdSetpoint+" "):
		v, err := strconv.ParseFloat(strings.TrimPrefix(cmd, CmdSetpoint+" "), 64)
		if err != nil {
			return fmt.Errorf("mock bath: bad setpoint %q", cmd)
		}
		m.setpoint = v
		m.inBandSince = time.Time{}
	case cmd == CmdOutput+" 1":
		m.heating = true
	case cmd == CmdOutput+" 0":
		m.heating = false
		m.inBandSince = time.Time{}
	default:
		return fmt.Errorf("mock bath: unknown command %q", cmd)
	}
	return nil
}

// ReadLine returns the oldest pending response.
func (m *Mock) ReadLine() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.responses) == 0 {
		return "", link.ErrTimeout
	}
	line := m.responses[0]
	m.responses = m.responses[1:]
	return line + "\r", nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Heating reports whether the output is enabled.
func (m *Mock) Heating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heating
}

// Setpoint returns the last commanded setpoint.
func (m *Mock) Setpoint() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setpoint
}

// update advances the thermal model to now. Must be called with mu held.
func (m *Mock) update() {
	now := m.now()
	dt := now.Sub(m.lastUpdate).Seconds()
	m.lastUpdate = now
	if dt <= 0 {
		return
	}

	target := m.cfg.AmbientC
	if m.heating {
		target = m.setpoint
	}

	// T = T + (target - T) * (1 - exp(-dt/tau))
	tau := m.cfg.TimeConstant.Seconds()
	alpha := 1.0
	if tau > 0 {
		alpha = 1 - math.Exp(-dt/tau)
	}
	m.temperature += alpha * (target - m.temperature)

	if m.heating && math.Abs(m.temperature-m.setpoint) <= m.cfg.StableBand {
		if m.inBandSince.IsZero() {
			m.inBandSince = now
		}
	} else {
		m.inBandSince = time.Time{}
	}
}

func (m *Mock) stable() bool {
	return !m.inBandSince.IsZero() && m.now().Sub(m.inBandSince) >= m.cfg.StableAfter
}

func (m *Mock) reading() float64 {
	elapsed := float64(m.now().Sub(m.startTime).Nanoseconds())
	noise := (math.Sin(elapsed*0.001) + math.Cos(elapsed*0.0013)) * m.cfg.NoiseLevel * 0.5
	return m.temperature + noise
}
