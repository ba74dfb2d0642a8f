package ui

import (
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"node.town/wisp/visualizer"
)

// Each terminal cell shows a 2×4 block of raster pixels as braille dots.
const (
	cellW = 2
	cellH = 4

	brailleBase = 0x2800
	coverage    = 128
)

var brailleBits = [cellH][cellW]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

type cellKind int

const (
	cellEmpty cellKind = iota
	cellPill
)

type cell struct {
	kind cellKind
	dots rune
}

// renderCanvas turns the raster's layers into terminal text: the pill as a
// background colour, the shape as braille dots on top of it.
func renderCanvas(r *visualizer.Raster, shape visualizer.Paint, p Palette) string {
	b := r.Bounds()
	cols := (b.Dx() + cellW - 1) / cellW
	rows := (b.Dy() + cellH - 1) / cellH

	pill := r.Layer(visualizer.PaintPill)
	dots := r.Layer(shape)

	fg := p.WaveIdle
	if shape == visualizer.PaintActive {
		fg = p.WaveActive
	}
	styles := map[cellKind]lipgloss.Style{
		cellEmpty: lipgloss.NewStyle().Foreground(fg),
		cellPill:  lipgloss.NewStyle().Foreground(fg).Background(p.Pill),
	}

	var sb strings.Builder
	line := make([]cell, cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			line[col] = sampleCell(pill, dots, col*cellW, row*cellH)
		}
		writeRuns(&sb, line, styles)
		if row < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func sampleCell(pill, dots *image.Alpha, x0, y0 int) cell {
	var (
		c       cell
		covered int
	)
	for dy := 0; dy < cellH; dy++ {
		for dx := 0; dx < cellW; dx++ {
			x, y := x0+dx, y0+dy
			if !(image.Point{x, y}.In(pill.Rect)) {
				continue
			}
			if pill.AlphaAt(x, y).A >= coverage {
				covered++
			}
			if dots.AlphaAt(x, y).A >= coverage {
				c.dots |= brailleBits[dy][dx]
			}
		}
	}
	if covered*2 >= cellW*cellH {
		c.kind = cellPill
	}
	return c
}

func (c cell) rune() rune {
	if c.dots == 0 {
		return ' '
	}
	return brailleBase + c.dots
}

// writeRuns renders consecutive cells of the same kind with one style call.
func writeRuns(sb *strings.Builder, line []cell, styles map[cellKind]lipgloss.Style) {
	start := 0
	for i := 1; i <= len(line); i++ {
		if i < len(line) && line[i].kind == line[start].kind {
			continue
		}
		var run strings.Builder
		for _, c := range line[start:i] {
			run.WriteRune(c.rune())
		}
		if line[start].kind == cellEmpty && strings.TrimSpace(run.String()) == "" {
			sb.WriteString(run.String())
		} else {
			sb.WriteString(styles[line[start].kind].Render(run.String()))
		}
		start = i
	}
}
