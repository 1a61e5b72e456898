package vehicle

import (
	"fmt"
	"math"
)

// State layout: x, y, z (cm), yaw (deg), vx, vy, vz (cm/s), yaw rate (deg/s).
type State []float64

const (
	iX = iota
	iY
	iZ
	iYaw
	iVX
	iVY
	iVZ
	iYawRate
	stateDim
)

// Control layout: roll, pitch, throttle, yaw in stick units.
type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Quad maps stick deflection to commanded body velocities and lets the
// actual velocities follow with time constant Lag.
type Quad struct {
	// SpeedGain is cm/s per stick unit on roll, pitch and throttle.
	SpeedGain float64
	// YawGain is deg/s per stick unit.
	YawGain float64
	Lag     float64
}

func NewQuad() *Quad {
	return &Quad{
		SpeedGain: 1,
		YawGain:   1,
		Lag:       0.3,
	}
}

func (q *Quad) StateDim() int   { return stateDim }
func (q *Quad) ControlDim() int { return 4 }

func (q *Quad) Derive(x State, u Control, t float64) State {
	roll, pitch, throttle, yawCmd := 0.0, 0.0, 0.0, 0.0
	if len(u) >= 4 {
		roll, pitch, throttle, yawCmd = u[0], u[1], u[2], u[3]
	}

	lag := math.Max(q.Lag, 1e-3)
	sin, cos := math.Sincos(x[iYaw] * math.Pi / 180)

	// body frame to world frame
	wantVX := q.SpeedGain * (pitch*cos - roll*sin)
	wantVY := q.SpeedGain * (pitch*sin + roll*cos)
	wantVZ := q.SpeedGain * throttle
	wantYawRate := q.YawGain * yawCmd

	d := make(State, stateDim)
	d[iX] = x[iVX]
	d[iY] = x[iVY]
	d[iZ] = x[iVZ]
	d[iYaw] = x[iYawRate]
	d[iVX] = (wantVX - x[iVX]) / lag
	d[iVY] = (wantVY - x[iVY]) / lag
	d[iVZ] = (wantVZ - x[iVZ]) / lag
	d[iYawRate] = (wantYawRate - x[iYawRate]) / lag
	return d
}

func (q *Quad) GetParams() map[string]float64 {
	return map[string]float64{
		"speed_gain": q.SpeedGain,
		"yaw_gain":   q.YawGain,
		"lag":        q.Lag,
	}
}

func (q *Quad) SetParam(name string, value float64) error {
	switch name {
	case "speed_gain":
		q.SpeedGain = value
	case "yaw_gain":
		q.YawGain = value
	case "lag":
		q.Lag = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
