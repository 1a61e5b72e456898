package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/metrics"
)

// Result summarizes one regulator call.
type Result struct {
	Ticks   int
	Elapsed time.Duration
	// Final is the last observed setpoint error.
	Final   float64
	Metrics map[string]float64
}

type options struct {
	now     func() time.Time
	metrics []metrics.Metric
	logger  *slog.Logger
}

type Option func(*options)

// WithClock replaces time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMetrics(ms ...metrics.Metric) Option {
	return func(o *options) { o.metrics = ms }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) observe(err float64, cmd flight.RateCommand) {
	for _, m := range o.metrics {
		m.Observe(err, cmd)
	}
}

func (o *options) reset() {
	for _, m := range o.metrics {
		m.Reset()
	}
}

// release returns control authority with a terminal zero-rate command.
func (o *options) release(out flight.RateWriter, res Result, start time.Time, cause error) (Result, error) {
	if err := out.SendRateCommand(flight.Hover); err != nil {
		o.logger.Warn("final zero-rate command failed", "error", err)
		if cause == nil {
			cause = fmt.Errorf("%w: %w", flight.ErrLinkFailure, err)
		}
	}
	res.Elapsed = o.now().Sub(start)
	res.Metrics = metrics.Values(o.metrics)
	return res, cause
}

func preempted(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, flight.ErrPreempted) {
		return cause
	}
	return fmt.Errorf("%w: %w", flight.ErrPreempted, cause)
}

// sendFailed classifies a rejected rate command. A guarded writer refuses
// commands once the maneuver is cancelled; that is a pre-emption, not a
// link fault.
func sendFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return preempted(ctx)
	}
	return fmt.Errorf("%w: %w", flight.ErrLinkFailure, err)
}

func newDeadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
