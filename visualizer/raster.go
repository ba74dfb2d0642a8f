package visualizer

import (
	"image"
	"image/draw"

	"golang.org/x/image/vector"
)

// Raster is a Surface backed by one alpha mask per paint, at scale pixels
// per canvas unit.
type Raster struct {
	scale  float64
	bounds image.Rectangle
	z      *vector.Rasterizer
	layers [3]*image.Alpha
}

func NewRaster(scale float64) *Raster {
	if scale <= 0 {
		scale = 1
	}
	w := int(CanvasWidth*scale + 0.5)
	h := int(CanvasHeight*scale + 0.5)
	b := image.Rect(0, 0, w, h)

	r := &Raster{
		scale:  scale,
		bounds: b,
		z:      vector.NewRasterizer(w, h),
	}
	for i := range r.layers {
		r.layers[i] = image.NewAlpha(b)
	}
	return r
}

func (r *Raster) Bounds() image.Rectangle { return r.bounds }

func (r *Raster) Scale() float64 { return r.scale }

func (r *Raster) Layer(p Paint) *image.Alpha { return r.layers[p] }

func (r *Raster) Clear() {
	for _, l := range r.layers {
		clear(l.Pix)
	}
}

func (r *Raster) Fill(p *Path, paint Paint) {
	if p == nil {
		return
	}

	r.z.Reset(r.bounds.Dx(), r.bounds.Dy())
	r.z.DrawOp = draw.Over

	s := float32(r.scale)
	for _, op := range p.Ops {
		a, b, c := op.Pts[0], op.Pts[1], op.Pts[2]
		switch op.Kind {
		case OpMove:
			r.z.MoveTo(float32(a.X)*s, float32(a.Y)*s)
		case OpLine:
			r.z.LineTo(float32(a.X)*s, float32(a.Y)*s)
		case OpQuad:
			r.z.QuadTo(float32(a.X)*s, float32(a.Y)*s, float32(b.X)*s, float32(b.Y)*s)
		case OpCube:
			r.z.CubeTo(
				float32(a.X)*s, float32(a.Y)*s,
				float32(b.X)*s, float32(b.Y)*s,
				float32(c.X)*s, float32(c.Y)*s,
			)
		case OpClose:
			r.z.ClosePath()
		}
	}

	r.z.Draw(r.layers[paint], r.bounds, image.Opaque, image.Point{})
}
