// Package link opens vehicle connections by name.
package link

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/vehicle"
)

type Options struct {
	Kind        string
	CommandAddr string
	StateAddr   string
	Timeout     time.Duration
	Sim         vehicle.Config
}

type opener func(Options, *slog.Logger) flight.Link

var registry = map[string]opener{
	"tello": func(o Options, l *slog.Logger) flight.Link {
		return NewTello(o.CommandAddr, o.StateAddr, o.Timeout, l.With("link", "tello"))
	},
	"sim": func(o Options, l *slog.Logger) flight.Link {
		return vehicle.NewSim(o.Sim)
	},
}

// Open builds an unconnected link. Callers Connect it.
func Open(opts Options, logger *slog.Logger) (flight.Link, error) {
	fn, ok := registry[opts.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown link: %s", opts.Kind)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return fn(opts, logger), nil
}

func Kinds() []string {
	return slices.Sorted(maps.Keys(registry))
}
