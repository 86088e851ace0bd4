// Package sample keeps a time-windowed history of calibration readings for
// plotting.
package sample

import (
	"sync"
	"time"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/thermistor"
)

// Point is one tick reduced to plottable values, all in °C.
type Point struct {
	Timestamp time.Time
	Reference float64 // Bath reading
	Sensor    float64 // Mean of the MU readings in the tick
	HasSensor bool    // False when the tick carried no valid MU samples
	Dwell     bool
	Step      int
}

// FromSnapshot converts a snapshot into a Point. MU readings are in Kelvin
// and are converted here.
func FromSnapshot(s calibration.Snapshot) Point {
	p := Point{
		Timestamp: s.Time(),
		Reference: float64(s.ReferenceTemperature),
		Dwell:     s.Phase == calibration.PhaseDwell,
		Step:      s.StepIndex,
	}
	if n := len(s.SensorTemperatures); n > 0 {
		var sum float64
		for _, k := range s.SensorTemperatures {
			sum += float64(thermistor.KelvinToCelsius(k))
		}
		p.Sensor = sum / float64(n)
		p.HasSensor = true
	}
	return p
}

// History is a FIFO of points ordered oldest first. Points older than the
// window, measured from the newest point, are removed on Add.
type History struct {
	mu     sync.RWMutex
	points []Point
	window time.Duration
}

// NewHistory creates a history. A window <= 0 keeps everything.
func NewHistory(window time.Duration) *History {
	return &History{
		points: make([]Point, 0),
		window: window,
	}
}

// Add appends p and trims points outside the window.
func (h *History) Add(p Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, p)
	if h.window <= 0 {
		return
	}

	cutoff := p.Timestamp.Add(-h.window)
	cutoffIndex := 0
	for i, q := range h.points {
		if !q.Timestamp.Before(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		h.points = append(h.points[:0], h.points[cutoffIndex:]...)
	}
}

// Points returns a copy of the history.
func (h *History) Points() []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Point, len(h.points))
	copy(out, h.points)
	return out
}

// Len returns the number of points held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

// Reset drops every point.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = h.points[:0]
}
