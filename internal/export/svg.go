// Package export writes simulation state and residual histories as SVG.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/sim"
)

const (
	background  = "#0a0a0a"
	edgeColor   = "#00d4ff"
	dotColor    = "#ff6ec7"
	pinnedColor = "#ffd700"
)

// SnapshotSVG draws constraints as lines and particles as dots, pinned ones
// highlighted, scaled to fit width x height with y pointing up.
func SnapshotSVG(w io.Writer, snap sim.Snapshot, width, height int) error {
	if len(snap.Positions) == 0 {
		return fmt.Errorf("export: empty snapshot")
	}
	lo, hi, ok := bounds(snap.Positions)
	if !ok {
		return fmt.Errorf("export: snapshot has no finite positions")
	}
	span := math.Max(hi.X-lo.X, hi.Y-lo.Y)
	if span == 0 {
		span = 1
	}
	pad := 0.1 * span
	lo = r2.Sub(lo, r2.Vec{X: pad, Y: pad})
	span += 2 * pad
	scale := math.Min(float64(width), float64(height)) / span

	project := func(p r2.Vec) (float64, float64) {
		return (p.X - lo.X) * scale, float64(height) - (p.Y-lo.Y)*scale
	}

	var sb strings.Builder
	header(&sb, width, height)

	fmt.Fprintf(&sb, "<g stroke=\"%s\" stroke-width=\"1.5\">\n", edgeColor)
	for _, e := range snap.Edges {
		x0, y0 := project(snap.Positions[e.A])
		x1, y1 := project(snap.Positions[e.B])
		fmt.Fprintf(&sb, "<line x1=\"%.1f\" y1=\"%.1f\" x2=\"%.1f\" y2=\"%.1f\"/>\n", x0, y0, x1, y1)
	}
	sb.WriteString("</g>\n")

	for i, p := range snap.Positions {
		color, r := dotColor, 3.0
		if i < len(snap.Pinned) && snap.Pinned[i] {
			color, r = pinnedColor, 5.0
		}
		x, y := project(p)
		fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\" fill=\"%s\"/>\n", x, y, r, color)
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// ResidualSVG draws log10 of the residuals as a polyline, one point per
// value. Non-positive values are clamped to 1e-16.
func ResidualSVG(w io.Writer, residuals []float64, width, height int) error {
	if len(residuals) < 2 {
		return fmt.Errorf("export: need at least 2 residuals, got %d", len(residuals))
	}

	logs := make([]float64, len(residuals))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, v := range residuals {
		logs[i] = math.Log10(math.Max(v, 1e-16))
		if math.IsNaN(logs[i]) || math.IsInf(logs[i], 0) {
			return fmt.Errorf("export: residual %d is not finite", i)
		}
		minY = math.Min(minY, logs[i])
		maxY = math.Max(maxY, logs[i])
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= 0.1 * rangeY
	rangeY *= 1.2

	var sb strings.Builder
	header(&sb, width, height)
	fmt.Fprintf(&sb, "<path fill=\"none\" stroke=\"%s\" stroke-width=\"1.5\" d=\"M", edgeColor)
	for i, v := range logs {
		x := float64(i) / float64(len(logs)-1) * float64(width)
		y := float64(height) - (v-minY)/rangeY*float64(height)
		if i > 0 {
			sb.WriteString(" L")
		}
		fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
	}
	sb.WriteString("\"/>\n</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

func bounds(pos []r2.Vec) (lo, hi r2.Vec, ok bool) {
	lo = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range pos {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			continue
		}
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
		ok = true
	}
	return lo, hi, ok
}
