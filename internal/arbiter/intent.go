package arbiter

import "fmt"

// Kind discriminates operator intents.
type Kind int

const (
	Takeoff Kind = iota
	Land
	Emergency
	YawLeft
	YawRight
	AltitudeUp
	AltitudeDown
	Sequence
	Hover
	Quit
)

// InitialLabel is the command label before any intent is handled.
const InitialLabel = "stand"

var kindLabels = [...]string{
	Takeoff:      "takeoff",
	Land:         "land",
	Emergency:    "EMERGENCY",
	YawLeft:      "YAW LEFT",
	YawRight:     "YAW RIGHT",
	AltitudeUp:   "UP",
	AltitudeDown: "DOWN",
	Sequence:     "sequence",
	Hover:        InitialLabel,
	Quit:         "exit",
}

var kindNames = [...]string{
	Takeoff:      "takeoff",
	Land:         "land",
	Emergency:    "emergency",
	YawLeft:      "yaw-left",
	YawRight:     "yaw-right",
	AltitudeUp:   "up",
	AltitudeDown: "down",
	Sequence:     "sequence",
	Hover:        "hover",
	Quit:         "quit",
}

// Label is the fixed command label recorded with telemetry.
func (k Kind) Label() string {
	if k < 0 || int(k) >= len(kindLabels) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindLabels[k]
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name, as used in mission files, back to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("arbiter: unknown intent %q", name)
}

// Intent is one discrete operator request. Step is in degrees for yaw
// kinds and centimeters for altitude kinds; zero selects the default.
type Intent struct {
	Kind   Kind
	Step   float64
	Source string
}

func (i Intent) Label() string { return i.Kind.Label() }

func (i Intent) String() string {
	if i.Step != 0 {
		return fmt.Sprintf("%s(%g) from %s", i.Kind, i.Step, i.Source)
	}
	return fmt.Sprintf("%s from %s", i.Kind, i.Source)
}
