package voice

import (
	"fmt"
	"strings"

	"github.com/san-kum/tellosup/internal/arbiter"
)

type Grammar interface {
	Parse(text string) (arbiter.Kind, bool)
}

// GrammarFunc adapts a function to [Grammar].
type GrammarFunc func(text string) (arbiter.Kind, bool)

func (f GrammarFunc) Parse(text string) (arbiter.Kind, bool) { return f(text) }

var offlineWords = map[string]arbiter.Kind{
	"up":        arbiter.Sequence,
	"takeoff":   arbiter.Sequence,
	"down":      arbiter.Land,
	"land":      arbiter.Land,
	"stop":      arbiter.Emergency,
	"emergency": arbiter.Emergency,
	"exit":      arbiter.Quit,
}

var onlineWords = map[string]arbiter.Kind{
	"takeoff":   arbiter.Takeoff,
	"land":      arbiter.Land,
	"up":        arbiter.AltitudeUp,
	"higher":    arbiter.AltitudeUp,
	"down":      arbiter.AltitudeDown,
	"lower":     arbiter.AltitudeDown,
	"left":      arbiter.YawLeft,
	"right":     arbiter.YawRight,
	"sequence":  arbiter.Sequence,
	"hover":     arbiter.Hover,
	"stop":      arbiter.Emergency,
	"emergency": arbiter.Emergency,
	"exit":      arbiter.Quit,
}

func normalize(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".,!? ")
}

// Offline suits small-vocabulary recognizers that often mishear: besides
// the exact words, any phrase starting with a, u, o or b runs the flight
// sequence and any phrase starting with d lands.
var Offline = GrammarFunc(func(text string) (arbiter.Kind, bool) {
	text = normalize(text)
	if text == "" {
		return 0, false
	}
	if k, ok := offlineWords[text]; ok {
		return k, true
	}
	switch text[0] {
	case 'a', 'u', 'o', 'b':
		return arbiter.Sequence, true
	case 'd':
		return arbiter.Land, true
	}
	return 0, false
})

// Online expects accurate transcripts and picks the first known word.
var Online = GrammarFunc(func(text string) (arbiter.Kind, bool) {
	text = normalize(text)
	if k, ok := onlineWords[text]; ok {
		return k, true
	}
	for _, w := range strings.Fields(text) {
		if k, ok := onlineWords[normalize(w)]; ok {
			return k, true
		}
	}
	return 0, false
})

func GrammarByName(name string) (Grammar, error) {
	switch name {
	case "offline", "":
		return Offline, nil
	case "online":
		return Online, nil
	}
	return nil, fmt.Errorf("unknown grammar: %s", name)
}
