package cockpit

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/tellosup/internal/flight"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 2)
)

func modeStyle(m flight.Mode) lipgloss.Style {
	switch {
	case m == flight.Emergency:
		return red
	case m.OnGround():
		return dim
	case m.Maneuvering(), m == flight.TakingOff, m == flight.Landing:
		return yellow
	default:
		return green
	}
}

// batteryBar draws pct on a bar of the given width, coloured by charge.
func batteryBar(pct, width int) string {
	filled := pct * width / 100
	filled = max(0, min(width, filled))
	bar := strings.Repeat("█", filled)
	rest := dimmer.Render(strings.Repeat("░", width-filled))

	switch {
	case pct > 50:
		return green.Render(bar) + rest
	case pct > 20:
		return yellow.Render(bar) + rest
	default:
		return red.Render(bar) + rest
	}
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	var sb strings.Builder
	for _, v := range data {
		idx := int((v - lo) / span * 7)
		sb.WriteRune(chars[max(0, min(7, idx))])
	}
	return sb.String()
}
