// Package flight provides the shared vocabulary of the supervisor.
//
// It defines the types exchanged between the control layers and the
// vehicle:
//
//   - [Mode]: the high-level flight mode owned by the sequencer
//   - [RateCommand]: one four-channel stick update
//   - [Snapshot]: a fixed-arity telemetry vector
//   - [Link]: the vehicle connection, split into [Sensors], [RateWriter]
//     and [Commander] so each goroutine only receives what it may use
//
// # Thread Safety
//
// [ModeCell] and [LabelCell] are safe for concurrent use. Everything else
// is a plain value.
package flight
