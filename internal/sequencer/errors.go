package sequencer

import (
	"fmt"

	"github.com/san-kum/tellosup/internal/control"
)

// ManeuverError reports a regulator call that ended without reaching its
// setpoint.
type ManeuverError struct {
	Op     string
	Target float64
	Result control.Result
	Err    error
}

func (e *ManeuverError) Error() string {
	return fmt.Sprintf("sequencer: %s to %.1f stopped after %d ticks (error %.1f): %v",
		e.Op, e.Target, e.Result.Ticks, e.Result.Final, e.Err)
}

func (e *ManeuverError) Unwrap() error { return e.Err }
