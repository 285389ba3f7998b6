package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles are the lipgloss styles derived from a Theme.
type styles struct {
	canvas   lipgloss.Style
	panel    lipgloss.Style
	header   lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	graph    lipgloss.Style
	help     lipgloss.Style
	running  lipgloss.Style
	paused   lipgloss.Style
	failed   lipgloss.Style
	selected lipgloss.Style
	ink      map[Ink]lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		canvas:   lipgloss.NewStyle().Padding(1, 2),
		panel:    lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(t.Muted).Padding(1, 2).Width(48),
		header:   lipgloss.NewStyle().Foreground(t.Accent).Bold(true).MarginBottom(1),
		label:    lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:    lipgloss.NewStyle().Foreground(t.Text),
		graph:    lipgloss.NewStyle().Foreground(t.Edge).Padding(1, 0),
		help:     lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		running:  lipgloss.NewStyle().Bold(true).Foreground(t.Particle),
		paused:   lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		failed:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		selected: lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		ink: map[Ink]lipgloss.Style{
			InkEdge:     lipgloss.NewStyle().Foreground(t.Edge),
			InkParticle: lipgloss.NewStyle().Foreground(t.Particle),
			InkPinned:   lipgloss.NewStyle().Foreground(t.Pinned).Bold(true),
		},
	}
}

func (s styles) paint(ink Ink, run string) string {
	style, ok := s.ink[ink]
	if !ok {
		return run
	}
	return style.Render(run)
}

// Sparkline renders values as a one-line bar chart of at most width runes,
// sampling evenly when there are more values than columns. Non-finite
// values are drawn as spaces.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	bars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		span = 1
	}

	n := len(values)
	if n > width {
		n = width
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		v := values[i*len(values)/n]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteRune(' ')
			continue
		}
		idx := int((v - lo) / span * float64(len(bars)-1))
		b.WriteRune(bars[idx])
	}
	return b.String()
}

// Log10 maps residuals to log scale for charts; non-positive values become
// the floor so a converged sweep still plots.
func Log10(values []float64, floor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v <= 0 {
			out[i] = floor
			continue
		}
		out[i] = math.Max(math.Log10(v), floor)
	}
	return out
}
