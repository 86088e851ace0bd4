package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/thermocal/pkg/sample"
)

var (
	colorGrid      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	colorAxisText  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	colorReference = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	colorSensor    = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
	colorDwell     = color.RGBA{R: 0, G: 100, B: 200, A: 255}   // Dark blue
	colorLabel     = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// plotArea maps data coordinates onto the widget.
type plotArea struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (a plotArea) pos(t time.Time, v float64) fyne.Position {
	x := a.x + float32(t.Sub(a.xMin).Seconds()/a.xMax.Sub(a.xMin).Seconds())*a.w
	y := a.y + a.h - float32((v-a.yMin)/(a.yMax-a.yMin))*a.h
	return fyne.NewPos(x, y)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		// Redraw for the new dimensions
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	points := r.scope.points
	area := plotArea{
		yMin: r.scope.yMin,
		yMax: r.scope.yMax,
		xMin: r.scope.xMin,
		xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	const (
		marginLeft   = float32(60.0)
		marginRight  = float32(20.0)
		marginTop    = float32(20.0)
		marginBottom = float32(40.0)
	)
	area.x = marginLeft
	area.y = marginTop
	area.w = size.Width - marginLeft - marginRight
	area.h = size.Height - marginTop - marginBottom

	r.drawGrid(area)
	r.drawDwellMarkers(area, points)
	r.drawReferenceLine(area, points)
	r.drawSensorLine(area, points)
	r.drawLegend(area, points)
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(a plotArea) {
	// Horizontal grid lines (temperature)
	numHLines := 8
	for i := range numHLines + 1 {
		y := a.y + float32(i)*a.h/float32(numHLines)
		r.addLine(colorGrid, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))

		value := a.yMax - float64(i)*(a.yMax-a.yMin)/float64(numHLines)
		text := canvas.NewText(fmt.Sprintf("%.2f°C", value), colorAxisText)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(a.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	// Vertical grid lines (time)
	numVLines := 10
	span := a.xMax.Sub(a.xMin)
	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.w/float32(numVLines)
		r.addLine(colorGrid, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))

		offset := span * time.Duration(i) / time.Duration(numVLines)
		text := canvas.NewText(formatOffset(offset), colorAxisText)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, a.y+a.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawReferenceLine draws the bath temperature (orange).
func (r *scopeRenderer) drawReferenceLine(a plotArea, points []sample.Point) {
	for i := 1; i < len(points); i++ {
		r.addLine(colorReference, 1.5,
			a.pos(points[i-1].Timestamp, points[i-1].Reference),
			a.pos(points[i].Timestamp, points[i].Reference))
	}
}

// drawSensorLine draws the mean MU temperature (light blue). Ticks without
// MU data break the line.
func (r *scopeRenderer) drawSensorLine(a plotArea, points []sample.Point) {
	for i := 1; i < len(points); i++ {
		if !points[i-1].HasSensor || !points[i].HasSensor {
			continue
		}
		r.addLine(colorSensor, 2.5,
			a.pos(points[i-1].Timestamp, points[i-1].Sensor),
			a.pos(points[i].Timestamp, points[i].Sensor))
	}
}

// drawDwellMarkers draws a vertical line where each step enters DWELL.
func (r *scopeRenderer) drawDwellMarkers(a plotArea, points []sample.Point) {
	for i, p := range points {
		if !p.Dwell {
			continue
		}
		if i > 0 && points[i-1].Dwell && points[i-1].Step == p.Step {
			continue
		}
		x := a.pos(p.Timestamp, a.yMin).X
		r.addLine(colorDwell, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))
	}
}

// drawLegend prints the latest readings in the top left corner.
func (r *scopeRenderer) drawLegend(a plotArea, points []sample.Point) {
	if len(points) == 0 {
		return
	}
	last := points[len(points)-1]

	label := fmt.Sprintf("bath %.2f°C", last.Reference)
	if last.HasSensor {
		label += fmt.Sprintf("   MU %.2f°C", last.Sensor)
	}
	text := canvas.NewText(label, colorLabel)
	text.TextSize = 11
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(a.x+10, a.y+10))
	r.objects = append(r.objects, text)
}

func (r *scopeRenderer) addLine(c color.Color, width float32, p1, p2 fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = p1
	line.Position2 = p2
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatOffset(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
