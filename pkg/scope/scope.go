package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/thermocal/pkg/sample"
)

// ScopeWidget is a custom Fyne widget that plots bath and MU temperatures over time.
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu     sync.RWMutex
	points []sample.Point // Downsampled for display

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	minWindow        time.Duration
	maxDisplayPoints int
}

// New creates a new ScopeWidget. minWindow is the shortest time span shown on the X axis.
func New(minWindow time.Duration) *ScopeWidget {
	s := &ScopeWidget{
		points:           make([]sample.Point, 0, 1000),
		minWindow:        minWindow,
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.ExtendBaseWidget(s)
	s.updateAutoScale()
	return s
}

// UpdateData replaces the plotted points.
// This should be called on the main thread using fyne.Do().
func (s *ScopeWidget) UpdateData(points []sample.Point) {
	s.mu.Lock()
	s.points = sample.Downsample(s.points, points, s.maxDisplayPoints)
	s.updateAutoScale()
	s.mu.Unlock()

	// Refresh outside the lock, the renderer takes it again
	s.Refresh()
}

// Range returns the current axis ranges.
func (s *ScopeWidget) Range() (yMin, yMax float64, xMin, xMax time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yMin, s.yMax, s.xMin, s.xMax
}

// updateAutoScale calculates axis ranges from the current points.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.points) == 0 {
		now := time.Now()
		s.yMin = 0.0
		s.yMax = 100.0
		s.xMin = now
		s.xMax = now.Add(s.minWindow)
		return
	}

	s.yMin = s.points[0].Reference
	s.yMax = s.points[0].Reference
	for _, p := range s.points {
		s.yMin = min(s.yMin, p.Reference)
		s.yMax = max(s.yMax, p.Reference)
		if p.HasSensor {
			s.yMin = min(s.yMin, p.Sensor)
			s.yMax = max(s.yMax, p.Sensor)
		}
	}

	// 10% margin, at least half a degree
	margin := max((s.yMax-s.yMin)*0.1, 0.5)
	s.yMin -= margin
	s.yMax += margin

	s.xMin = s.points[0].Timestamp
	s.xMax = s.points[len(s.points)-1].Timestamp
	if s.xMax.Sub(s.xMin) < s.minWindow {
		s.xMax = s.xMin.Add(s.minWindow)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
