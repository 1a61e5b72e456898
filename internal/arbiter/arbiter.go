// Package arbiter serializes operator intents from concurrent sources into
// the single control goroutine.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/safety"
	"github.com/san-kum/tellosup/internal/sequencer"
)

var (
	// ErrQueueFull indicates an intent was dropped because the queue was full.
	ErrQueueFull = errors.New("arbiter: intent queue full")

	// ErrQuit indicates the operator ended the session.
	ErrQuit = errors.New("arbiter: operator quit")
)

// Pilot carries out intents. It is only ever called from Run.
type Pilot interface {
	Mode() flight.Mode
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	Emergency(ctx context.Context) error
	Rotate(ctx context.Context, delta float64) error
	ChangeAltitude(ctx context.Context, delta float64) error
	RunSequence(ctx context.Context) error
	Hover() error
}

// Preemptor stops maneuvers from outside the control goroutine.
type Preemptor interface {
	Interrupt() bool
	EmergencyAbort(ctx context.Context) error
}

var (
	_ Pilot     = (*sequencer.Sequencer)(nil)
	_ Preemptor = (*safety.Gate)(nil)
)

// Source produces intents until ctx ends or the source is exhausted.
type Source interface {
	Name() string
	Run(ctx context.Context, submit func(Intent) error) error
}

type Config struct {
	Queue        int
	YawStep      float64
	AltitudeStep float64
	// Keepalive is how often an idle airborne vehicle receives a hover
	// command. Zero disables it.
	Keepalive time.Duration
}

func DefaultConfig() Config {
	return Config{
		Queue:        8,
		YawStep:      60,
		AltitudeStep: 20,
		Keepalive:    time.Second,
	}
}

// Arbiter queues intents first come first served. Land and Emergency skip
// the queue through a priority lane.
type Arbiter struct {
	cfg    Config
	pilot  Pilot
	gate   Preemptor
	label  *flight.LabelCell
	logger *slog.Logger

	normal   chan Intent
	priority chan Intent

	handled atomic.Int64
	dropped atomic.Int64
}

func New(cfg Config, pilot Pilot, gate Preemptor, label *flight.LabelCell, logger *slog.Logger) *Arbiter {
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultConfig().Queue
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Arbiter{
		cfg:      cfg,
		pilot:    pilot,
		gate:     gate,
		label:    label,
		logger:   logger,
		normal:   make(chan Intent, cfg.Queue),
		priority: make(chan Intent, cfg.Queue),
	}
}

// Submit enqueues an intent without blocking. It is safe for concurrent
// use by any number of sources.
//
// Land interrupts the running maneuver once it is queued. Emergency trips
// the safety gate on the caller's goroutine; its error is the gate's
// result.
func (a *Arbiter) Submit(in Intent) error {
	switch in.Kind {
	case Emergency:
		a.label.Store(in.Label())
		err := a.gate.EmergencyAbort(context.Background())
		if qerr := a.enqueue(a.priority, in); qerr != nil {
			a.logger.Error("emergency not queued, gate already tripped", "error", qerr)
		}
		return err
	case Land:
		if err := a.enqueue(a.priority, in); err != nil {
			return err
		}
		a.gate.Interrupt()
		return nil
	}
	return a.enqueue(a.normal, in)
}

func (a *Arbiter) enqueue(lane chan Intent, in Intent) error {
	select {
	case lane <- in:
		return nil
	default:
		a.dropped.Add(1)
		a.logger.Warn("intent dropped", "intent", in.String())
		return fmt.Errorf("%w: %s", ErrQueueFull, in)
	}
}

// Run consumes intents until ctx ends, the operator quits, or a handled
// intent fails fatally. It must be the only caller of the pilot.
func (a *Arbiter) Run(ctx context.Context) error {
	var keepalive <-chan time.Time
	if a.cfg.Keepalive > 0 {
		t := time.NewTicker(a.cfg.Keepalive)
		defer t.Stop()
		keepalive = t.C
	}

	for {
		select {
		case in := <-a.priority:
			if err := a.handle(ctx, in); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-a.priority:
			if err := a.handle(ctx, in); err != nil {
				return err
			}
		case in := <-a.normal:
			if err := a.handle(ctx, in); err != nil {
				return err
			}
		case <-keepalive:
			if err := a.pilot.Hover(); err != nil {
				a.logger.Warn("keepalive failed", "error", err)
			}
		}
	}
}

// handle sets the label and delegates. The returned error is non-nil only
// when the session must end.
func (a *Arbiter) handle(ctx context.Context, in Intent) error {
	if in.Kind == Quit {
		a.logger.Info("quit requested", "source", in.Source)
		return ErrQuit
	}

	a.label.Store(in.Label())
	a.handled.Add(1)
	a.logger.Info("intent", "kind", in.Kind.String(), "step", in.Step, "source", in.Source, "mode", a.pilot.Mode().String())

	err := a.dispatch(ctx, in)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flight.ErrLowBattery):
		a.logger.Error("takeoff refused, ending session", "error", err)
		return err
	case in.Kind == Emergency:
		a.logger.Error("emergency path failed", "error", err)
		return err
	default:
		a.logger.Warn("intent failed", "kind", in.Kind.String(), "error", err)
		return nil
	}
}

func (a *Arbiter) dispatch(ctx context.Context, in Intent) error {
	step := in.Step
	switch in.Kind {
	case YawLeft, YawRight:
		if step == 0 {
			step = a.cfg.YawStep
		}
	case AltitudeUp, AltitudeDown:
		if step == 0 {
			step = a.cfg.AltitudeStep
		}
	}

	switch in.Kind {
	case Takeoff:
		return a.pilot.Takeoff(ctx)
	case Land:
		return a.pilot.Land(ctx)
	case Emergency:
		return a.pilot.Emergency(ctx)
	case YawLeft:
		return a.pilot.Rotate(ctx, -step)
	case YawRight:
		return a.pilot.Rotate(ctx, step)
	case AltitudeUp:
		return a.pilot.ChangeAltitude(ctx, step)
	case AltitudeDown:
		return a.pilot.ChangeAltitude(ctx, -step)
	case Sequence:
		return a.pilot.RunSequence(ctx)
	case Hover:
		return a.pilot.Hover()
	default:
		return fmt.Errorf("arbiter: unhandled intent %s", in.Kind)
	}
}

// Handled is the number of intents delegated to the pilot.
func (a *Arbiter) Handled() int64 { return a.handled.Load() }

// Dropped is the number of intents rejected by a full lane.
func (a *Arbiter) Dropped() int64 { return a.dropped.Load() }

// Pending is the number of queued intents.
func (a *Arbiter) Pending() int { return len(a.normal) + len(a.priority) }
