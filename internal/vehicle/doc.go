// Package vehicle simulates a small quadrotor behind the flight link
// interfaces.
//
// The body model is a first-order response of the velocity and yaw rate
// to the stick channels, integrated with a fourth-order Runge-Kutta step.
// [Sim] wraps it as a [flight.Link] with the firmware's conventions:
// channels saturate at ±100, heading is reported in [-180, 180) and height
// in whole centimeters.
package vehicle
