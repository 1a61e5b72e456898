package metrics

import "github.com/san-kum/tellosup/internal/flight"

// ControlEffort is the mean absolute stick deflection per tick.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(_ float64, cmd flight.RateCommand) {
	c.sum += float64(abs(cmd.Roll) + abs(cmd.Pitch) + abs(cmd.Throttle) + abs(cmd.Yaw))
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// PeakOutput is the largest single-channel magnitude seen.
type PeakOutput struct {
	peak int
}

func NewPeakOutput() *PeakOutput { return &PeakOutput{} }

func (p *PeakOutput) Name() string { return "peak_output" }

func (p *PeakOutput) Observe(_ float64, cmd flight.RateCommand) {
	for _, v := range [...]int{cmd.Roll, cmd.Pitch, cmd.Throttle, cmd.Yaw} {
		if abs(v) > p.peak {
			p.peak = abs(v)
		}
	}
}

func (p *PeakOutput) Value() float64 { return float64(p.peak) }

func (p *PeakOutput) Reset() { p.peak = 0 }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
