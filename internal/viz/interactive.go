package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Preset is one entry in the picker menu.
type Preset struct {
	Name string
	Info string
}

// Launch builds a driver for the chosen preset. It returns the stepper with
// the title and subtitle to show above the live panel.
type Launch func(name string) (Stepper, string, string, error)

const (
	stateMenu = iota
	stateSim
)

type app struct {
	state   int
	cursor  int
	presets []Preset
	launch  Launch
	styles  styles
	err     error
	live    Model
}

// NewInteractiveApp returns a menu over presets; picking one starts the
// live viewer on the driver returned by launch. Esc in the viewer goes back
// to the menu.
func NewInteractiveApp(presets []Preset, launch Launch) tea.Model {
	return app{
		state:   stateMenu,
		presets: presets,
		launch:  launch,
		styles:  newStyles(Themes[0]),
	}
}

func (a app) Init() tea.Cmd { return nil }

func (a app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.state == stateSim {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			a.state = stateMenu
			return a, nil
		}
		live, cmd := a.live.Update(msg)
		a.live = live.(Model)
		return a, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	switch k.String() {
	case "q", "ctrl+c", "esc":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.presets)-1 {
			a.cursor++
		}
	case "enter", " ":
		if len(a.presets) == 0 {
			return a, nil
		}
		driver, title, subtitle, err := a.launch(a.presets[a.cursor].Name)
		if err != nil {
			a.err = err
			return a, nil
		}
		a.err = nil
		a.live = NewModel(driver, title, subtitle)
		a.state = stateSim
		return a, a.live.Init()
	}
	return a, nil
}

func (a app) View() string {
	if a.state == stateSim {
		return a.live.View()
	}

	st := a.styles
	var s strings.Builder
	s.WriteString(st.header.Render("PBDSIM") + "\n")
	for i, p := range a.presets {
		line := fmt.Sprintf("%-18s %s", p.Name, p.Info)
		if i == a.cursor {
			s.WriteString(st.selected.Render("> "+line) + "\n")
		} else {
			s.WriteString(st.value.Render("  "+line) + "\n")
		}
	}
	if a.err != nil {
		s.WriteString("\n" + st.failed.Render(wrap(a.err.Error(), 60)) + "\n")
	}
	s.WriteString(st.help.Render("↑/↓ select  ENTER run  ESC back  Q quit"))
	return st.canvas.Render(s.String())
}

// RunInteractive opens the preset picker full screen.
func RunInteractive(presets []Preset, launch Launch) error {
	_, err := tea.NewProgram(NewInteractiveApp(presets, launch), tea.WithAltScreen()).Run()
	return err
}
