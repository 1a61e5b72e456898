package control

import (
	"math"
	"time"
)

// Gains are the PID coefficients.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

func DefaultGains() Gains {
	return Gains{Kp: 0.8, Ki: 0.1, Kd: 0.05}
}

// PID is the per-maneuver controller state. A new PID is built for every
// rotation so no integral or derivative history crosses maneuvers.
type PID struct {
	gains         Gains
	integralLimit float64
	outputLimit   float64
	integral      float64
	prevErr       float64
	prevT         time.Time
}

// NewPID returns a zeroed controller. A non-positive limit disables that clamp.
func NewPID(g Gains, integralLimit, outputLimit float64) *PID {
	return &PID{
		gains:         g,
		integralLimit: integralLimit,
		outputLimit:   outputLimit,
	}
}

// Start sets the reference time for the first Update.
func (p *PID) Start(t time.Time) {
	p.prevT = t
}

// Update advances the controller to sample time t.
func (p *PID) Update(err float64, t time.Time) float64 {
	dt := t.Sub(p.prevT).Seconds()
	p.prevT = t
	return p.Step(err, dt)
}

// Step computes one output for error err after dt seconds. A zero dt skips
// the derivative term.
func (p *PID) Step(err, dt float64) float64 {
	if dt < 0 {
		dt = 0
	}

	p.integral = clamp(p.integral+err*dt, p.integralLimit)

	u := p.gains.Kp*err + p.gains.Ki*p.integral
	if dt > 0 {
		u += p.gains.Kd * (err - p.prevErr) / dt
	}
	p.prevErr = err

	return clamp(u, p.outputLimit)
}

// Integral returns the accumulated error.
func (p *PID) Integral() float64 { return p.integral }

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevT = time.Time{}
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

// ShortestAngle maps a heading difference in degrees onto [-180, 180).
func ShortestAngle(deg float64) float64 {
	d := math.Mod(deg+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
