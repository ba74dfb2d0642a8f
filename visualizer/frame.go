package visualizer

import (
	"math"
	"time"
)

const (
	CanvasWidth     = 240
	CanvasHeight    = 80
	PillWidthIdle   = 120
	PillWidthActive = 180
	PillHeight      = 40

	BlobBaseRadius  = 12
	BlobRadiusRange = 8

	IdleBaseRadius    = 10
	IdlePulseRange    = 3
	IdleReducedRadius = 11
)

type Point struct {
	X, Y float64
}

// Frame is everything needed to draw one tick.
type Frame struct {
	Center     Point
	PillWidth  float64
	PillHeight float64

	// Active frames carry blob points; idle frames a circle radius.
	Active bool
	Points []Point
	Radius float64
}

func center() Point {
	return Point{X: CanvasWidth / 2, Y: CanvasHeight / 2}
}

// IdleRadius is the breathing circle's radius at time t.
func IdleRadius(t time.Time, reducedMotion bool) float64 {
	if reducedMotion {
		return IdleReducedRadius
	}
	secs := float64(t.UnixNano()) / float64(time.Second)
	pulse := math.Sin(secs*2)*0.5 + 0.5
	return IdleBaseRadius + pulse*IdlePulseRange
}

func IdleFrame(t time.Time, reducedMotion bool) Frame {
	return Frame{
		Center:     center(),
		PillWidth:  PillWidthIdle,
		PillHeight: PillHeight,
		Radius:     IdleRadius(t, reducedMotion),
	}
}

// ActiveFrame places min(bands, len(bins)) points around the center, each
// pushed outward by its bin's amplitude.
func ActiveFrame(bins []uint8, bands int) Frame {
	c := center()
	n := min(bands, len(bins))

	points := make([]Point, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		r := BlobBaseRadius + float64(bins[i])/255*BlobRadiusRange
		points[i] = Point{
			X: c.X + math.Cos(angle)*r,
			Y: c.Y + math.Sin(angle)*r,
		}
	}

	return Frame{
		Center:     c,
		PillWidth:  PillWidthActive,
		PillHeight: PillHeight,
		Active:     true,
		Points:     points,
	}
}
