// Package control provides the regulators that hold control authority
// over the vehicle during a maneuver.
//
//   - [PID]: discrete PID step with integral and output clamps
//   - [YawRegulator]: closed-loop heading controller built on [PID]
//   - [AltitudeRegulator]: open-loop bang-bang climb/descend
//
// # Usage
//
//	yaw := control.NewYawRegulator(link, control.DefaultYawConfig())
//	res, err := yaw.RotateTo(ctx, link, initial+90)
//	// err wraps flight.ErrPreempted when ctx was cancelled mid-turn
//
// Every regulator call ends with exactly one zero-rate command unless it
// never moved the vehicle. Regulators are not safe for concurrent use; the
// sequencer serializes them.
package control
