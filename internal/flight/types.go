package flight

import (
	"context"
	"fmt"
	"sync/atomic"
)

type Mode int32

const (
	Grounded Mode = iota
	TakingOff
	Airborne
	Rotating
	ChangingAltitude
	Landing
	Landed
	Emergency
)

var modeNames = [...]string{
	Grounded:         "grounded",
	TakingOff:        "taking-off",
	Airborne:         "airborne",
	Rotating:         "rotating",
	ChangingAltitude: "changing-altitude",
	Landing:          "landing",
	Landed:           "landed",
	Emergency:        "emergency",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int32(m))
	}
	return modeNames[m]
}

// OnGround reports whether a takeoff may start from m.
func (m Mode) OnGround() bool { return m == Grounded || m == Landed }

// Maneuvering reports whether a regulator holds control authority in m.
func (m Mode) Maneuvering() bool { return m == Rotating || m == ChangingAltitude }

// RateCommand is one stick update. Each channel is a signed rate in the
// vehicle's native units.
type RateCommand struct {
	Roll, Pitch, Throttle, Yaw int
}

// Hover is the all-zero command.
var Hover = RateCommand{}

func (r RateCommand) IsZero() bool { return r == Hover }

// Clamp bounds every channel to [-limit, limit].
func (r RateCommand) Clamp(limit int) RateCommand {
	return RateCommand{
		Roll:     clampInt(r.Roll, limit),
		Pitch:    clampInt(r.Pitch, limit),
		Throttle: clampInt(r.Throttle, limit),
		Yaw:      clampInt(r.Yaw, limit),
	}
}

func (r RateCommand) String() string {
	return fmt.Sprintf("rc %d %d %d %d", r.Roll, r.Pitch, r.Throttle, r.Yaw)
}

func clampInt(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// SnapshotArity is the number of fields in a well-formed telemetry snapshot.
const SnapshotArity = 21

// SnapshotFields names the snapshot columns in wire order.
var SnapshotFields = [SnapshotArity]string{
	"mid", "x", "y", "z", "mpry",
	"pitch", "roll", "yaw",
	"vgx", "vgy", "vgz",
	"templ", "temph", "tof", "h", "bat", "baro", "time",
	"agx", "agy", "agz",
}

// Snapshot is an ordered vector of numeric telemetry fields.
type Snapshot []float64

func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	copy(c, s)
	return c
}

// Valid reports whether the snapshot has the expected arity.
func (s Snapshot) Valid(arity int) bool {
	return len(s) == arity
}

// Field returns the named column of a full-arity snapshot.
func (s Snapshot) Field(name string) (float64, bool) {
	if len(s) != SnapshotArity {
		return 0, false
	}
	for i, f := range SnapshotFields {
		if f == name {
			return s[i], true
		}
	}
	return 0, false
}

type Sensors interface {
	Yaw() (float64, error)
	Height() (float64, error)
	Battery() (int, error)
}

type SnapshotReader interface {
	Snapshot() (Snapshot, error)
}

// RateWriter is the control-authority channel. Exactly one goroutine holds it.
type RateWriter interface {
	SendRateCommand(cmd RateCommand) error
}

type Commander interface {
	Connect(ctx context.Context) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
}

// Link is a full vehicle connection.
type Link interface {
	Commander
	Sensors
	SnapshotReader
	RateWriter
	Close() error
}

// ModeCell holds the current Mode. Emergency is absorbing: once stored,
// no other mode can replace it.
type ModeCell struct {
	v atomic.Int32
}

func NewModeCell(m Mode) *ModeCell {
	c := &ModeCell{}
	c.v.Store(int32(m))
	return c
}

func (c *ModeCell) Load() Mode {
	return Mode(c.v.Load())
}

// Set stores m and reports whether it took effect.
func (c *ModeCell) Set(m Mode) bool {
	for {
		cur := c.v.Load()
		if Mode(cur) == Emergency {
			return m == Emergency
		}
		if c.v.CompareAndSwap(cur, int32(m)) {
			return true
		}
	}
}

// Transition moves to next only if the current mode is one of from. It
// returns the mode observed before the attempt.
func (c *ModeCell) Transition(next Mode, from ...Mode) (Mode, bool) {
	for {
		cur := c.v.Load()
		allowed := false
		for _, f := range from {
			if Mode(cur) == f {
				allowed = true
				break
			}
		}
		if !allowed || Mode(cur) == Emergency {
			return Mode(cur), false
		}
		if c.v.CompareAndSwap(cur, int32(next)) {
			return Mode(cur), true
		}
	}
}

// LabelCell holds the most recent command label.
type LabelCell struct {
	p atomic.Pointer[string]
}

func NewLabelCell(initial string) *LabelCell {
	c := &LabelCell{}
	c.Store(initial)
	return c
}

func (c *LabelCell) Load() string {
	if p := c.p.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *LabelCell) Store(label string) {
	c.p.Store(&label)
}
