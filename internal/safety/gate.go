// Package safety guards takeoff and owns the emergency abort path.
package safety

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/san-kum/tellosup/internal/flight"
)

// DefaultMinBattery is the lowest battery percentage accepted for takeoff.
const DefaultMinBattery = 10

// Gate checks preconditions and can pre-empt any running maneuver.
//
// A maneuver registers itself through [Gate.Maneuver] and watches the
// returned context. [Gate.Interrupt] cancels it with [flight.ErrPreempted]
// and stays latched until [Gate.ClearInterrupt], so a maneuver started in
// between is born cancelled too. [Gate.EmergencyAbort] cancels with
// [flight.ErrEmergency] and latches for good.
type Gate struct {
	link       flight.Commander
	mode       *flight.ModeCell
	minBattery int
	logger     *slog.Logger

	mu          sync.Mutex
	cancel      context.CancelCauseFunc
	serial      uint64
	interrupted bool
	tripped     chan struct{}

	// sendMu orders guarded rate commands against cancellation.
	sendMu sync.Mutex
	once    sync.Once
	err     error
}

func NewGate(link flight.Commander, mode *flight.ModeCell, minBattery int, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{
		link:       link,
		mode:       mode,
		minBattery: minBattery,
		logger:     logger,
		tripped:    make(chan struct{}),
	}
}

func (g *Gate) MinBattery() int { return g.minBattery }

// CheckPreflight refuses takeoff below the minimum battery level.
func (g *Gate) CheckPreflight(battery int) error {
	if g.Tripped() {
		return flight.ErrEmergency
	}
	if battery < g.minBattery {
		return fmt.Errorf("%w: %d%% < %d%%", flight.ErrLowBattery, battery, g.minBattery)
	}
	return nil
}

// Preflight reads the battery from s and checks it.
func (g *Gate) Preflight(s flight.Sensors) error {
	bat, err := s.Battery()
	if err != nil {
		return fmt.Errorf("%w: reading battery: %w", flight.ErrLinkFailure, err)
	}
	return g.CheckPreflight(bat)
}

// Maneuver derives the context a regulator must watch. The returned
// release func must be called when the maneuver ends.
func (g *Gate) Maneuver(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	g.mu.Lock()
	g.serial++
	id := g.serial
	g.cancel = cancel
	interrupted := g.interrupted
	g.mu.Unlock()

	switch {
	case g.Tripped():
		cancel(flight.ErrEmergency)
	case interrupted:
		cancel(flight.ErrPreempted)
	}

	return ctx, func() {
		g.mu.Lock()
		if g.serial == id {
			g.cancel = nil
		}
		g.mu.Unlock()
		cancel(nil)
	}
}

// Interrupt pre-empts the running maneuver and every maneuver started
// before [Gate.ClearInterrupt]. It reports whether a running maneuver was
// cancelled.
func (g *Gate) Interrupt() bool {
	g.mu.Lock()
	g.interrupted = true
	g.mu.Unlock()
	return g.cancelCurrent(flight.ErrPreempted)
}

// ClearInterrupt releases the latch set by Interrupt. The land path calls
// it once it is served.
func (g *Gate) ClearInterrupt() {
	g.mu.Lock()
	g.interrupted = false
	g.mu.Unlock()
}

// Interrupted reports whether an interrupt is latched.
func (g *Gate) Interrupted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interrupted
}

func (g *Gate) cancelCurrent(cause error) bool {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel == nil {
		return false
	}
	g.sendMu.Lock()
	cancel(cause)
	g.sendMu.Unlock()
	return true
}

// Guard wraps w for a maneuver watching ctx. Once ctx is cancelled only
// zero-rate commands pass. Cancellation through the gate waits for a
// guarded send in progress, so after Interrupt or EmergencyAbort return no
// non-zero command reaches w. Cancellation of a parent context is not
// ordered this way and may still race with one send.
func (g *Gate) Guard(ctx context.Context, w flight.RateWriter) flight.RateWriter {
	return &guardedWriter{gate: g, ctx: ctx, w: w}
}

type guardedWriter struct {
	gate *Gate
	ctx  context.Context
	w    flight.RateWriter
}

func (gw *guardedWriter) SendRateCommand(cmd flight.RateCommand) error {
	gw.gate.sendMu.Lock()
	defer gw.gate.sendMu.Unlock()
	if !cmd.IsZero() && gw.ctx.Err() != nil {
		return context.Cause(gw.ctx)
	}
	return gw.w.SendRateCommand(cmd)
}

// EmergencyAbort latches the emergency state, stops the running maneuver
// and invokes the link's emergency stop. Only the first call acts; later
// calls return the first result.
//
// If the emergency stop fails the link is reconnected once. A failed
// reconnect is returned as a fatal [flight.ErrLinkFailure].
func (g *Gate) EmergencyAbort(ctx context.Context) error {
	g.once.Do(func() {
		err := g.abort(ctx)
		g.mu.Lock()
		g.err = err
		g.mu.Unlock()
	})
	return g.Err()
}

func (g *Gate) abort(ctx context.Context) error {
	g.mode.Set(flight.Emergency)
	close(g.tripped)
	if g.cancelCurrent(flight.ErrEmergency) {
		g.logger.Warn("maneuver aborted by emergency stop")
	}

	err := g.link.EmergencyStop(ctx)
	if err == nil {
		g.logger.Warn("emergency stop issued")
		return nil
	}
	g.logger.Error("emergency stop failed, reconnecting", "error", err)

	if rerr := g.link.Connect(ctx); rerr != nil {
		g.logger.Error("reconnect failed", "error", rerr)
		return fmt.Errorf("%w: emergency stop: %v; reconnect: %w", flight.ErrLinkFailure, err, rerr)
	}
	g.logger.Warn("link reconnected after failed emergency stop")
	return nil
}

// Emergency is closed once the gate trips.
func (g *Gate) Emergency() <-chan struct{} { return g.tripped }

func (g *Gate) Tripped() bool {
	select {
	case <-g.tripped:
		return true
	default:
		return false
	}
}

// Err returns the fatal error of the emergency path, if any.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
