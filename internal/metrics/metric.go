// Package metrics summarizes regulator runs.
//
// A regulator feeds every tick's error and emitted command to each
// [Metric]; the sequencer logs the values when the maneuver returns.
package metrics

import "github.com/san-kum/tellosup/internal/flight"

type Metric interface {
	Name() string
	Observe(err float64, cmd flight.RateCommand)
	Value() float64
	Reset()
}

// Default returns the metric set logged for every maneuver.
func Default() []Metric {
	return []Metric{NewControlEffort(), NewPeakOutput(), NewInBand(5)}
}

// Values collects the current value of every metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
