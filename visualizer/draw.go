package visualizer

type Paint int

const (
	PaintPill Paint = iota
	PaintIdle
	PaintActive
)

func (p Paint) String() string {
	switch p {
	case PaintPill:
		return "pill"
	case PaintIdle:
		return "idle"
	default:
		return "active"
	}
}

// Surface is a drawing target in canvas units.
type Surface interface {
	Clear()
	Fill(p *Path, paint Paint)
}

type OpKind int

const (
	OpMove OpKind = iota
	OpLine
	OpQuad
	OpCube
	OpClose
)

type Op struct {
	Kind OpKind
	Pts  [3]Point
}

type Path struct {
	Ops []Op
}

func (p *Path) MoveTo(pt Point) { p.Ops = append(p.Ops, Op{Kind: OpMove, Pts: [3]Point{pt}}) }

func (p *Path) LineTo(pt Point) { p.Ops = append(p.Ops, Op{Kind: OpLine, Pts: [3]Point{pt}}) }

func (p *Path) QuadTo(ctrl, pt Point) {
	p.Ops = append(p.Ops, Op{Kind: OpQuad, Pts: [3]Point{ctrl, pt}})
}

func (p *Path) CubeTo(c1, c2, pt Point) {
	p.Ops = append(p.Ops, Op{Kind: OpCube, Pts: [3]Point{c1, c2, pt}})
}

func (p *Path) Close() { p.Ops = append(p.Ops, Op{Kind: OpClose}) }

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// arc appends a quarter circle from the current point (at angle a0 around c)
// to the point at angle a0 + 90°, both given as unit vectors.
func (p *Path) arc(c Point, r float64, from, to Point) {
	p.CubeTo(
		Point{c.X + r*(from.X+kappa*to.X), c.Y + r*(from.Y+kappa*to.Y)},
		Point{c.X + r*(to.X+kappa*from.X), c.Y + r*(to.Y+kappa*from.Y)},
		Point{c.X + r*to.X, c.Y + r*to.Y},
	)
}

// PillPath is a rounded rectangle whose ends are semicircles.
func PillPath(c Point, w, h float64) *Path {
	r := h / 2
	x0, y0 := c.X-w/2, c.Y-h/2
	x1, y1 := c.X+w/2, c.Y+h/2

	up, down := Point{0, -1}, Point{0, 1}
	left, right := Point{-1, 0}, Point{1, 0}

	p := &Path{}
	p.MoveTo(Point{x0 + r, y0})
	p.LineTo(Point{x1 - r, y0})
	p.arc(Point{x1 - r, y0 + r}, r, up, right)
	p.arc(Point{x1 - r, y0 + r}, r, right, down)
	p.LineTo(Point{x0 + r, y1})
	p.arc(Point{x0 + r, y0 + r}, r, down, left)
	p.arc(Point{x0 + r, y0 + r}, r, left, up)
	p.Close()
	return p
}

func CirclePath(c Point, r float64) *Path {
	dirs := []Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

	p := &Path{}
	p.MoveTo(Point{c.X + r, c.Y})
	for i := range dirs {
		p.arc(c, r, dirs[i], dirs[(i+1)%len(dirs)])
	}
	p.Close()
	return p
}

// BlobPath joins points with quadratic curves through the midpoints of
// consecutive points. It returns nil for fewer than two points.
func BlobPath(points []Point) *Path {
	if len(points) < 2 {
		return nil
	}

	p := &Path{}
	p.MoveTo(points[0])
	for i, p1 := range points {
		p2 := points[(i+1)%len(points)]
		p.QuadTo(p1, Point{(p1.X + p2.X) / 2, (p1.Y + p2.Y) / 2})
	}
	p.Close()
	return p
}

// Draw renders f onto s, replacing whatever was there.
func Draw(s Surface, f Frame) {
	s.Clear()
	s.Fill(PillPath(f.Center, f.PillWidth, f.PillHeight), PaintPill)

	if f.Active {
		if blob := BlobPath(f.Points); blob != nil {
			s.Fill(blob, PaintActive)
		}
		return
	}
	s.Fill(CirclePath(f.Center, f.Radius), PaintIdle)
}
