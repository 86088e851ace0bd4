package scope

import (
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermocal/pkg/sample"
)

func TestScope_AutoScale(t *testing.T) {
	test.NewTempApp(t)

	now := time.Unix(1000, 0)
	s := New(time.Minute)
	s.UpdateData([]sample.Point{
		{Timestamp: now, Reference: 20},
		{Timestamp: now.Add(time.Second), Reference: 30, Sensor: 35, HasSensor: true},
	})

	yMin, yMax, xMin, xMax := s.Range()
	assert.InDelta(t, 18.5, yMin, 1e-9, "range 20..35 plus 10% margin")
	assert.InDelta(t, 36.5, yMax, 1e-9)
	assert.Equal(t, now, xMin)
	assert.Equal(t, now.Add(time.Minute), xMax, "minimum window applies")
}

func TestScope_FlatDataMargin(t *testing.T) {
	test.NewTempApp(t)

	now := time.Unix(1000, 0)
	s := New(time.Second)
	s.UpdateData([]sample.Point{
		{Timestamp: now, Reference: 25},
		{Timestamp: now.Add(10 * time.Second), Reference: 25},
	})

	yMin, yMax, _, xMax := s.Range()
	assert.Equal(t, 24.5, yMin)
	assert.Equal(t, 25.5, yMax)
	assert.Equal(t, now.Add(10*time.Second), xMax)
}

func TestScope_Render(t *testing.T) {
	test.NewTempApp(t)

	now := time.Unix(1000, 0)
	s := New(time.Minute)
	s.Resize(fyne.NewSize(800, 600))

	points := []sample.Point{
		{Timestamp: now, Reference: 20, Step: 1},
		{Timestamp: now.Add(time.Second), Reference: 21, Step: 1},
		{Timestamp: now.Add(2 * time.Second), Reference: 22, Sensor: 22.1, HasSensor: true, Dwell: true, Step: 1},
		{Timestamp: now.Add(3 * time.Second), Reference: 22, Sensor: 22.2, HasSensor: true, Dwell: true, Step: 1},
		{Timestamp: now.Add(4 * time.Second), Reference: 40, Step: 2},
	}
	s.UpdateData(points)

	r := test.WidgetRenderer(s).(*scopeRenderer)
	r.Refresh()

	lines := 0
	var legend *canvas.Text
	for _, o := range r.Objects() {
		switch v := o.(type) {
		case *canvas.Line:
			lines++
		case *canvas.Text:
			if v.Alignment == fyne.TextAlignLeading {
				legend = v
			}
		}
	}
	// 9 + 11 grid lines, 1 dwell marker, 4 reference segments, 1 sensor segment
	assert.Equal(t, 9+11+1+4+1, lines)
	require.NotNil(t, legend)
	assert.Equal(t, "bath 40.00°C", legend.Text)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "30s", formatOffset(30*time.Second))
	assert.Equal(t, "1.5m", formatOffset(90*time.Second))
}
