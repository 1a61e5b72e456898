package metrics

import (
	"math"

	"github.com/san-kum/tellosup/internal/flight"
)

// InBand is the fraction of ticks whose error was within the band.
type InBand struct {
	name    string
	band    float64
	inside  int
	samples int
}

func NewInBand(band float64) *InBand {
	return &InBand{
		name: "in_band",
		band: band,
	}
}

func (s *InBand) Name() string {
	return s.name
}

func (s *InBand) Observe(err float64, _ flight.RateCommand) {
	s.samples++
	if math.Abs(err) <= s.band {
		s.inside++
	}
}

func (s *InBand) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return float64(s.inside) / float64(s.samples)
}

func (s *InBand) Reset() {
	s.inside = 0
	s.samples = 0
}
