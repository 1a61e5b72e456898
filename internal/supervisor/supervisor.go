// Package supervisor wires the flight components into one session.
//
// Goroutines: the arbiter (sole holder of the rate channel through the
// sequencer), the telemetry sampler, and one per intent source. The session
// ends when the operator quits, the parent context ends, or the arbiter
// reports a fatal fault. Any vehicle still in the air is landed on the way
// out.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/tellosup/internal/arbiter"
	"github.com/san-kum/tellosup/internal/cockpit"
	"github.com/san-kum/tellosup/internal/config"
	"github.com/san-kum/tellosup/internal/control"
	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/metrics"
	"github.com/san-kum/tellosup/internal/safety"
	"github.com/san-kum/tellosup/internal/sequencer"
	"github.com/san-kum/tellosup/internal/telemetry"
)

type Supervisor struct {
	cfg    *config.Config
	link   flight.Link
	logger *slog.Logger

	mode    *flight.ModeCell
	label   *flight.LabelCell
	gate    *safety.Gate
	seq     *sequencer.Sequencer
	arb     *arbiter.Arbiter
	sampler *telemetry.Sampler
}

// New builds every component around an unconnected link. sink receives
// telemetry records; it may be nil.
func New(cfg *config.Config, link flight.Link, sink telemetry.Sink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = &telemetry.Buffer{}
	}

	s := &Supervisor{
		cfg:    cfg,
		link:   link,
		logger: logger,
		mode:   flight.NewModeCell(flight.Grounded),
		label:  flight.NewLabelCell(arbiter.InitialLabel),
	}

	s.gate = safety.NewGate(link, s.mode, cfg.Safety.MinBattery, logger.With("component", "safety"))

	ctlLog := logger.With("component", "control")
	yaw := control.NewYawRegulator(link, cfg.YawRegulator(),
		control.WithMetrics(metrics.Default()...), control.WithLogger(ctlLog))
	alt := control.NewAltitudeRegulator(link, cfg.AltitudeRegulator(),
		control.WithMetrics(metrics.Default()...), control.WithLogger(ctlLog))

	s.seq = sequencer.New(cfg.Sequencer(), link, s.gate, s.mode, yaw, alt, logger.With("component", "sequencer"))
	s.arb = arbiter.New(cfg.ArbiterConfig(), s.seq, s.gate, s.label, logger.With("component", "arbiter"))
	s.sampler = telemetry.NewSampler(link, s.label, sink,
		telemetry.WithPeriod(cfg.Telemetry.Period), telemetry.WithLogger(logger.With("component", "telemetry")))
	return s
}

// Submit hands an intent to the arbiter from outside any source.
func (s *Supervisor) Submit(in arbiter.Intent) error { return s.arb.Submit(in) }

func (s *Supervisor) Mode() flight.Mode { return s.mode.Load() }
func (s *Supervisor) Label() string     { return s.label.Load() }

// Status feeds the cockpit view. Sensor read failures leave zero values.
func (s *Supervisor) Status() cockpit.Status {
	st := cockpit.Status{
		Mode:    s.mode.Load(),
		Label:   s.label.Load(),
		Dropped: s.arb.Dropped(),
	}
	st.Yaw, _ = s.link.Yaw()
	st.Height, _ = s.link.Height()
	st.Battery, _ = s.link.Battery()
	return st
}

// Stats summarizes a finished session.
type Stats struct {
	Intents   int64
	Dropped   int64
	Recorded  int64
	Malformed int64
	Mode      flight.Mode
}

func (s *Supervisor) Stats() Stats {
	return Stats{
		Intents:   s.arb.Handled(),
		Dropped:   s.arb.Dropped(),
		Recorded:  s.sampler.Recorded(),
		Malformed: s.sampler.Malformed(),
		Mode:      s.mode.Load(),
	}
}

// Run connects the link and serves the sources until the session ends. A
// quit intent or parent cancellation ends it cleanly.
func (s *Supervisor) Run(ctx context.Context, sources ...arbiter.Source) error {
	if err := s.link.Connect(ctx); err != nil {
		return fmt.Errorf("%w: connect: %w", flight.ErrLinkFailure, err)
	}
	defer s.link.Close()
	s.logger.Info("session started", "sources", len(sources), "mode", s.mode.Load())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		err := s.arb.Run(gctx)
		if errors.Is(err, arbiter.ErrQuit) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return s.sampler.Run(gctx)
	})
	for _, src := range sources {
		g.Go(func() error {
			if err := src.Run(gctx, s.arb.Submit); err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			s.logger.Debug("source finished", "source", src.Name())
			return nil
		})
	}

	err := g.Wait()
	s.shutdown()
	s.logger.Info("session ended", "mode", s.mode.Load(), "intents", s.arb.Handled(), "dropped", s.arb.Dropped(), "error", err)
	return err
}

// shutdown lands a vehicle left in the air.
func (s *Supervisor) shutdown() {
	switch s.mode.Load() {
	case flight.Airborne, flight.Rotating, flight.ChangingAltitude:
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Link.Timeout+time.Second)
	defer cancel()

	s.logger.Warn("landing before exit")
	if err := s.seq.Land(ctx); err != nil {
		s.logger.Error("landing on exit failed", "error", err)
	}
}

// Script is a source that submits a fixed list of intents and returns.
type Script []arbiter.Intent

func (Script) Name() string { return "script" }

func (sc Script) Run(ctx context.Context, submit func(arbiter.Intent) error) error {
	for _, in := range sc {
		if ctx.Err() != nil {
			return nil
		}
		if in.Source == "" {
			in.Source = "script"
		}
		if err := submit(in); err != nil {
			return err
		}
	}
	return nil
}
