package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/tellosup/internal/control"
	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/safety"
)

// Vehicle is the part of the link the sequencer drives.
type Vehicle interface {
	flight.Commander
	flight.Sensors
	flight.RateWriter
}

type Config struct {
	// Offset is the scripted rotation away from the initial heading.
	Offset float64
	// Dwell is the hover time before the scripted landing.
	Dwell time.Duration
	// HoldForLand keeps the vehicle airborne after the scripted rotation
	// until a land intent arrives.
	HoldForLand bool
	// Settle is waited after takeoff before the initial heading is read.
	Settle time.Duration
}

func DefaultConfig() Config {
	return Config{
		Offset: 90,
		Dwell:  2 * time.Second,
		Settle: time.Second,
	}
}

type Sequencer struct {
	cfg      Config
	vehicle  Vehicle
	gate     *safety.Gate
	mode     *flight.ModeCell
	yaw      *control.YawRegulator
	altitude *control.AltitudeRegulator
	logger   *slog.Logger

	initial float64
	heading float64
	// known is false until a heading has been read since the last takeoff.
	known bool
}

func New(cfg Config, v Vehicle, gate *safety.Gate, mode *flight.ModeCell,
	yaw *control.YawRegulator, alt *control.AltitudeRegulator, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sequencer{
		cfg:      cfg,
		vehicle:  v,
		gate:     gate,
		mode:     mode,
		yaw:      yaw,
		altitude: alt,
		logger:   logger,
	}
}

func (s *Sequencer) Mode() flight.Mode { return s.mode.Load() }

// Heading returns the current yaw setpoint.
func (s *Sequencer) Heading() float64 { return s.heading }

// InitialYaw returns the heading captured at the last takeoff.
func (s *Sequencer) InitialYaw() float64 { return s.initial }

func (s *Sequencer) enter(next flight.Mode, req string, from ...flight.Mode) error {
	prev, ok := s.mode.Transition(next, from...)
	if ok {
		return nil
	}
	if prev == flight.Emergency {
		return flight.ErrEmergency
	}
	return &flight.TransitionError{From: prev, Request: req}
}

// leave moves back from a transient mode. It is a no-op after an emergency.
func (s *Sequencer) leave(from, to flight.Mode) {
	s.mode.Transition(to, from)
}

// headingRetry is how often a missing initial heading is read again.
const headingRetry = 100 * time.Millisecond

// Takeoff checks the battery, lifts off and captures the initial heading.
// The vehicle is Airborne once the link takeoff succeeds, even when the
// settle wait is pre-empted or no heading arrives; both are returned as
// errors so a scripted sequence stops there.
func (s *Sequencer) Takeoff(ctx context.Context) error {
	if cur := s.mode.Load(); !cur.OnGround() {
		if cur == flight.Emergency {
			return flight.ErrEmergency
		}
		return &flight.TransitionError{From: cur, Request: "take off"}
	}
	if err := s.gate.Preflight(s.vehicle); err != nil {
		s.logger.Warn("takeoff refused", "error", err)
		return err
	}

	prev := s.mode.Load()
	if err := s.enter(flight.TakingOff, "take off", flight.Grounded, flight.Landed); err != nil {
		return err
	}
	s.known = false
	if err := s.vehicle.Takeoff(ctx); err != nil {
		s.leave(flight.TakingOff, prev)
		return fmt.Errorf("%w: takeoff: %w", flight.ErrLinkFailure, err)
	}

	mctx, release := s.gate.Maneuver(ctx)
	err := s.captureHeading(mctx)
	release()

	if err := s.enter(flight.Airborne, "finish takeoff", flight.TakingOff); err != nil {
		return err
	}
	if err != nil {
		s.logger.Warn("takeoff settle stopped", "error", err)
		return err
	}
	s.logger.Info("airborne", "initial_yaw", s.initial)
	return nil
}

// captureHeading waits out the settle time, then reads the heading, retrying
// for up to another settle period.
func (s *Sequencer) captureHeading(ctx context.Context) error {
	if s.cfg.Settle > 0 {
		t := time.NewTimer(s.cfg.Settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return cancelled(ctx)
		case <-t.C:
		}
	}

	window := time.NewTimer(max(s.cfg.Settle, headingRetry))
	defer window.Stop()
	retry := time.NewTicker(headingRetry)
	defer retry.Stop()
	for {
		yaw, err := s.vehicle.Yaw()
		if err == nil {
			s.initial, s.heading, s.known = yaw, yaw, true
			return nil
		}
		select {
		case <-ctx.Done():
			return cancelled(ctx)
		case <-window.C:
			return fmt.Errorf("%w: initial heading: %w", flight.ErrLinkFailure, err)
		case <-retry.C:
		}
	}
}

// ensureHeading reads the heading when takeoff could not capture it.
func (s *Sequencer) ensureHeading() error {
	if s.known {
		return nil
	}
	yaw, err := s.vehicle.Yaw()
	if err != nil {
		return fmt.Errorf("%w: reading yaw: %w", flight.ErrLinkFailure, err)
	}
	s.initial, s.heading, s.known = yaw, yaw, true
	return nil
}

// Rotate turns by delta degrees relative to the current setpoint.
func (s *Sequencer) Rotate(ctx context.Context, delta float64) error {
	if s.mode.Load() == flight.Airborne {
		if err := s.ensureHeading(); err != nil {
			return err
		}
	}
	return s.RotateTo(ctx, s.heading+delta)
}

// RotateTo turns to an absolute heading. A rotation that stops short leaves
// the setpoint at the measured heading.
func (s *Sequencer) RotateTo(ctx context.Context, target float64) error {
	if err := s.enter(flight.Rotating, "rotate", flight.Airborne); err != nil {
		return err
	}
	defer s.leave(flight.Rotating, flight.Airborne)

	mctx, release := s.gate.Maneuver(ctx)
	res, err := s.yaw.RotateTo(mctx, s.gate.Guard(mctx, s.vehicle), target)
	release()

	s.report("rotate", target, res, err)
	if err != nil {
		if yaw, yerr := s.vehicle.Yaw(); yerr == nil {
			s.heading, s.known = yaw, true
		}
		return &ManeuverError{Op: "rotate", Target: target, Result: res, Err: err}
	}
	s.heading = target
	return nil
}

// ChangeAltitude climbs or descends by delta cm from the measured height.
func (s *Sequencer) ChangeAltitude(ctx context.Context, delta float64) error {
	if err := s.enter(flight.ChangingAltitude, "change altitude", flight.Airborne); err != nil {
		return err
	}
	defer s.leave(flight.ChangingAltitude, flight.Airborne)

	h, err := s.vehicle.Height()
	if err != nil {
		return fmt.Errorf("%w: reading height: %w", flight.ErrLinkFailure, err)
	}
	target := h + delta

	mctx, release := s.gate.Maneuver(ctx)
	res, err := s.altitude.MoveTo(mctx, s.gate.Guard(mctx, s.vehicle), target)
	release()

	s.report("altitude", target, res, err)
	if err != nil {
		return &ManeuverError{Op: "altitude", Target: target, Result: res, Err: err}
	}
	return nil
}

// Land brings an airborne vehicle down. It clears a latched interrupt
// whatever the mode, since the interrupt was raised for this request.
func (s *Sequencer) Land(ctx context.Context) error {
	s.gate.ClearInterrupt()
	if err := s.enter(flight.Landing, "land", flight.Airborne, flight.Rotating, flight.ChangingAltitude); err != nil {
		return err
	}
	if err := s.vehicle.Land(ctx); err != nil {
		s.leave(flight.Landing, flight.Airborne)
		return fmt.Errorf("%w: land: %w", flight.ErrLinkFailure, err)
	}
	if err := s.enter(flight.Landed, "finish landing", flight.Landing); err != nil {
		return err
	}
	s.logger.Info("landed")
	return nil
}

// Emergency trips the safety gate.
func (s *Sequencer) Emergency(ctx context.Context) error {
	return s.gate.EmergencyAbort(ctx)
}

// Hover holds position with a zero-rate command while airborne.
func (s *Sequencer) Hover() error {
	if s.mode.Load() != flight.Airborne {
		return nil
	}
	if err := s.vehicle.SendRateCommand(flight.Hover); err != nil {
		return fmt.Errorf("%w: %w", flight.ErrLinkFailure, err)
	}
	return nil
}

// RunSequence flies the scripted maneuver: take off if needed, rotate to
// the offset and back, then either dwell and land or hold for a land intent.
func (s *Sequencer) RunSequence(ctx context.Context) error {
	if s.mode.Load().OnGround() {
		if err := s.Takeoff(ctx); err != nil {
			return err
		}
	} else if s.mode.Load() == flight.Airborne {
		if err := s.ensureHeading(); err != nil {
			return err
		}
	}
	origin := s.initial

	if err := s.RotateTo(ctx, origin+s.cfg.Offset); err != nil {
		return err
	}
	if err := s.RotateTo(ctx, origin); err != nil {
		return err
	}
	if s.cfg.HoldForLand {
		s.logger.Info("holding for land intent")
		return nil
	}

	if err := s.dwell(ctx); err != nil {
		return err
	}
	return s.Land(ctx)
}

func (s *Sequencer) dwell(ctx context.Context) error {
	if s.cfg.Dwell <= 0 {
		return nil
	}
	mctx, release := s.gate.Maneuver(ctx)
	defer release()

	t := time.NewTimer(s.cfg.Dwell)
	defer t.Stop()
	select {
	case <-mctx.Done():
		return cancelled(mctx)
	case <-t.C:
		return nil
	}
}

// cancelled reports why a maneuver context ended, always wrapping
// flight.ErrPreempted.
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, flight.ErrPreempted) {
		return cause
	}
	return fmt.Errorf("%w: %w", flight.ErrPreempted, cause)
}

func (s *Sequencer) report(op string, target float64, res control.Result, err error) {
	attrs := []any{
		"op", op,
		"target", target,
		"ticks", res.Ticks,
		"elapsed", res.Elapsed,
		"final_error", res.Final,
	}
	for name, v := range res.Metrics {
		attrs = append(attrs, name, v)
	}
	if err != nil {
		s.logger.Warn("maneuver stopped", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("maneuver complete", attrs...)
}
