// Package cockpit is the keyboard intent source and its terminal view.
package cockpit

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/tellosup/internal/arbiter"
	"github.com/san-kum/tellosup/internal/flight"
)

// Status is what the view shows, polled once per refresh.
type Status struct {
	Mode    flight.Mode
	Label   string
	Yaw     float64
	Height  float64
	Battery int
	Dropped int64
}

type Cockpit struct {
	status  func() Status
	refresh time.Duration
	opts    []tea.ProgramOption
}

// New builds the source. opts are passed to the bubbletea program.
func New(status func() Status, refresh time.Duration, opts ...tea.ProgramOption) *Cockpit {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return &Cockpit{status: status, refresh: refresh, opts: opts}
}

func (c *Cockpit) Name() string { return "keyboard" }

func (c *Cockpit) Run(ctx context.Context, submit func(arbiter.Intent) error) error {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, c.opts...)
	p := tea.NewProgram(newModel(c.status, c.refresh, submit), opts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

type tickMsg time.Time

type model struct {
	status  func() Status
	refresh time.Duration
	submit  func(arbiter.Intent) error

	last    Status
	history []float64
	err     error
	quit    bool
}

func newModel(status func() Status, refresh time.Duration, submit func(arbiter.Intent) error) model {
	m := model{status: status, refresh: refresh, submit: submit}
	m.last = status()
	return m
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return m.tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.last = m.status()
		m.history = append(m.history, m.last.Yaw)
		if len(m.history) > 60 {
			m.history = m.history[1:]
		}
		return m, m.tick()
	}
	return m, nil
}

var keyIntents = map[string]arbiter.Kind{
	"s":    arbiter.Sequence,
	"e":    arbiter.Emergency,
	"up":   arbiter.AltitudeUp,
	"down": arbiter.AltitudeDown,
	"a":    arbiter.YawLeft,
	"d":    arbiter.YawRight,
	"h":    arbiter.Hover,
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	key := msg.String()
	switch key {
	case " ":
		kind := arbiter.Land
		if m.last.Mode.OnGround() {
			kind = arbiter.Takeoff
		}
		m.send(kind)
	case "esc", "q", "ctrl+c":
		if !m.last.Mode.OnGround() {
			m.send(arbiter.Land)
		}
		m.send(arbiter.Quit)
		m.quit = true
		return m, tea.Quit
	default:
		if kind, ok := keyIntents[key]; ok {
			m.send(kind)
		}
	}
	return m, nil
}

func (m *model) send(kind arbiter.Kind) {
	m.err = m.submit(arbiter.Intent{Kind: kind, Source: "keyboard"})
}

func (m model) View() string {
	if m.quit {
		return ""
	}
	s := m.last

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s  %s\n\n",
		modeStyle(s.Mode).Render("●"), cyan.Render("tellosup"), modeStyle(s.Mode).Render(s.Mode.String())))
	b.WriteString(fmt.Sprintf("%s %s\n", dim.Render("command"), white.Render(s.Label)))
	b.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		dim.Render("yaw"), white.Render(fmt.Sprintf("%4.0f°", s.Yaw)),
		dim.Render("height"), white.Render(fmt.Sprintf("%3.0f cm", s.Height))))
	b.WriteString(fmt.Sprintf("%s %s %d%%\n", dim.Render("battery"), batteryBar(s.Battery, 20), s.Battery))
	if len(m.history) > 1 {
		b.WriteString(fmt.Sprintf("%s %s\n", dim.Render("heading"), cyan.Render(sparkline(m.history, 30))))
	}
	if s.Dropped > 0 {
		b.WriteString(yellow.Render(fmt.Sprintf("dropped %d intents", s.Dropped)) + "\n")
	}
	if m.err != nil {
		b.WriteString(red.Render(m.err.Error()) + "\n")
	}

	hint := dim.Render("space takeoff/land  s sequence  a/d yaw  ↑/↓ height  e EMERGENCY  q quit")
	return panel.Render(b.String()) + "\n" + hint + "\n"
}
