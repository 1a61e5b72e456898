// Package sequencer owns the flight mode and the rate-command channel.
//
// A [Sequencer] is driven by exactly one goroutine. It is the only holder
// of the vehicle's [flight.RateWriter], so regulator calls never overlap:
// each one returns, after its terminal zero-rate command, before the next
// can begin.
//
//	Grounded|Landed --Takeoff--> TakingOff --> Airborne
//	Airborne --Rotate--> Rotating --> Airborne
//	Airborne --ChangeAltitude--> ChangingAltitude --> Airborne
//	Airborne --Land--> Landing --> Landed
//	any --Emergency--> Emergency
package sequencer
