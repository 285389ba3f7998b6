package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/pbdsim/internal/sim"
)

const (
	width           = 72
	height          = 24
	historyCapacity = 300
	frameInterval   = time.Second / 30
)

// Stepper is what the viewer drives; *sim.Driver implements it.
type Stepper interface {
	Step(ctx context.Context) ([]float64, error)
	Snapshot() (sim.Snapshot, error)
	Reset() error
}

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model draws particles and constraints of a running driver and charts the
// residuals of the latest step. It starts paused.
type Model struct {
	driver   Stepper
	title    string
	subtitle string

	canvas   *Canvas
	viewport Viewport
	theme    Theme
	styles   styles

	snap    sim.Snapshot
	history []float64
	paused  bool
	err     error
}

// NewModel wraps a driver. title and subtitle head the side panel, e.g. the
// scene and the solver configuration.
func NewModel(driver Stepper, title, subtitle string) Model {
	m := Model{
		driver:   driver,
		title:    title,
		subtitle: subtitle,
		canvas:   NewCanvas(width, height),
		viewport: NewViewport(),
		theme:    Themes[0],
		styles:   newStyles(Themes[0]),
		history:  make([]float64, 0, historyCapacity),
		paused:   true,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Paused reports whether ticks are currently ignored.
func (m Model) Paused() bool { return m.paused }

// Err returns the error that stopped the simulation, if any.
func (m Model) Err() error { return m.err }

// Snapshot returns the state currently on screen.
func (m Model) Snapshot() sim.Snapshot { return m.snap }

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "n":
			if m.paused {
				m.step()
			}
		case "r":
			m.reset()
		case "t":
			m.theme = nextTheme(m.theme.Name)
			m.styles = newStyles(m.theme)
		}
	case TickMsg:
		if !m.paused && m.err == nil {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	res, err := m.driver.Step(context.Background())
	if err != nil {
		m.err = err
		m.paused = true
		return
	}
	if len(res) > 0 {
		m.history = append(m.history, res[len(res)-1])
		if len(m.history) > historyCapacity {
			m.history = m.history[1:]
		}
	}
	m.refresh()
}

func (m *Model) reset() {
	if err := m.driver.Reset(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.history = m.history[:0]
	m.viewport = NewViewport()
	m.refresh()
}

func (m *Model) refresh() {
	snap, err := m.driver.Snapshot()
	if err != nil {
		m.err = err
		return
	}
	m.snap = snap
	m.viewport.Fit(snap.Positions)
	m.draw()
}

// draw renders edges first, then free particles, then pinned ones.
func (m *Model) draw() {
	m.canvas.Clear()
	w, h := m.canvas.Dots()
	pos := m.snap.Positions
	if len(pos) == 0 {
		return
	}

	for _, e := range m.snap.Edges {
		x0, y0 := m.viewport.Project(pos[e.A], w, h)
		x1, y1 := m.viewport.Project(pos[e.B], w, h)
		m.canvas.DrawLine(x0, y0, x1, y1, InkEdge)
	}
	for i, p := range pos {
		ink := InkParticle
		if i < len(m.snap.Pinned) && m.snap.Pinned[i] {
			ink = InkPinned
		}
		x, y := m.viewport.Project(p, w, h)
		m.canvas.DrawDot(x, y, ink)
	}
}

// View renders the canvas next to the status panel.
func (m Model) View() string {
	st := m.styles
	canvasView := st.canvas.Render(m.canvas.Render(st.paint))

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	if m.subtitle != "" {
		s.WriteString(st.value.Render(m.subtitle) + "\n")
	}

	switch {
	case m.err != nil:
		s.WriteString(st.failed.Render("HALTED") + "\n")
		s.WriteString(st.value.Render(wrap(m.err.Error(), 42)) + "\n")
	case m.paused:
		s.WriteString(st.paused.Render("PAUSED") + "\n")
	default:
		s.WriteString(st.running.Render("RUNNING") + "\n")
	}

	res := m.snap.Residuals
	if len(res) > 1 {
		chart := asciigraph.Plot(Log10(res, -16),
			asciigraph.Height(6), asciigraph.Width(34), asciigraph.Caption("log10 residual / sweep"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	s.WriteString(st.label.Render("Step") + st.value.Render(fmt.Sprintf("%d", m.snap.Step)) + "\n")
	if len(res) > 0 {
		s.WriteString(st.label.Render("Sweeps") + st.value.Render(fmt.Sprintf("%d", len(res))) + "\n")
		s.WriteString(st.label.Render("Residual") + st.value.Render(fmt.Sprintf("%.3e", res[len(res)-1])) + "\n")
	}
	pinned := 0
	for _, p := range m.snap.Pinned {
		if p {
			pinned++
		}
	}
	s.WriteString(st.label.Render("Particles") + st.value.Render(fmt.Sprintf("%d (%d pinned)", len(m.snap.Positions), pinned)) + "\n")
	s.WriteString(st.label.Render("Edges") + st.value.Render(fmt.Sprintf("%d", len(m.snap.Edges))) + "\n")
	if len(m.history) > 1 {
		s.WriteString(st.label.Render("History") + st.value.Render(Sparkline(Log10(m.history, -16), 30)) + "\n")
	}
	s.WriteString(st.label.Render("Theme") + st.value.Render(m.theme.Name) + "\n")

	s.WriteString(st.help.Render("SPACE pause  N step  R reset\nT theme  Q quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
}

func wrap(text string, n int) string {
	var b strings.Builder
	line := 0
	for _, word := range strings.Fields(text) {
		if line > 0 && line+1+len(word) > n {
			b.WriteByte('\n')
			line = 0
		} else if line > 0 {
			b.WriteByte(' ')
			line++
		}
		b.WriteString(word)
		line += len(word)
	}
	return b.String()
}

// Run opens the viewer full screen until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
