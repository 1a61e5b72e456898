package flight

import "errors"

// Domain errors shared across the supervisor.
var (
	// ErrLowBattery indicates the preflight battery check refused takeoff.
	ErrLowBattery = errors.New("flight: battery below takeoff minimum")

	// ErrLinkFailure indicates the vehicle link could not complete a call.
	ErrLinkFailure = errors.New("flight: link failure")

	// ErrEmergency indicates the supervisor is latched in emergency mode.
	ErrEmergency = errors.New("flight: emergency stop latched")

	// ErrInvalidTransition indicates an intent that is illegal in the current mode.
	ErrInvalidTransition = errors.New("flight: invalid mode transition")

	// ErrPreempted indicates a maneuver was cut short by an abort.
	ErrPreempted = errors.New("flight: maneuver pre-empted")

	// ErrNotConverged indicates a regulator gave up before reaching its setpoint.
	ErrNotConverged = errors.New("flight: setpoint not reached before timeout")

	// ErrMalformedSnapshot indicates a telemetry vector of unexpected arity.
	ErrMalformedSnapshot = errors.New("flight: malformed telemetry snapshot")
)

// TransitionError records which mode rejected which request.
type TransitionError struct {
	From    Mode
	Request string
}

func (e *TransitionError) Error() string {
	return "flight: cannot " + e.Request + " while " + e.From.String()
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
