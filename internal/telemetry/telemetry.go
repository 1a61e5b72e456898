// Package telemetry samples vehicle state alongside the control loop and
// hands complete records to a session sink.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

// DefaultPeriod is the sampling cadence, independent of the regulators.
const DefaultPeriod = 100 * time.Millisecond

// Record is one session log entry.
type Record struct {
	Time     time.Time       `json:"time"`
	Snapshot flight.Snapshot `json:"snapshot"`
	Label    string          `json:"label"`
	Tag      int             `json:"tag"`
}

// Sink receives records in sampling order.
type Sink interface {
	Append(r Record) error
}

// Sampler polls the snapshot reader on its own ticker. It never touches
// the rate channel and never blocks the control goroutine.
type Sampler struct {
	reader flight.SnapshotReader
	label  *flight.LabelCell
	sink   Sink
	period time.Duration
	arity  int
	now    func() time.Time
	logger *slog.Logger

	recorded  atomic.Int64
	malformed atomic.Int64
	failed    atomic.Int64
}

type Option func(*Sampler)

func WithPeriod(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.period = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

func NewSampler(reader flight.SnapshotReader, label *flight.LabelCell, sink Sink, opts ...Option) *Sampler {
	s := &Sampler{
		reader: reader,
		label:  label,
		sink:   sink,
		period: DefaultPeriod,
		arity:  flight.SnapshotArity,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample takes one snapshot and appends it when it has the expected
// arity. It reports whether a record was appended.
func (s *Sampler) Sample() bool {
	snap, err := s.reader.Snapshot()
	if err != nil {
		s.failed.Add(1)
		s.logger.Debug("snapshot unavailable", "error", err)
		return false
	}
	if !snap.Valid(s.arity) {
		s.malformed.Add(1)
		s.logger.Debug("snapshot dropped", "error", flight.ErrMalformedSnapshot, "fields", len(snap))
		return false
	}

	rec := Record{
		Time:     s.now(),
		Snapshot: snap.Clone(),
		Label:    s.label.Load(),
	}
	if err := s.sink.Append(rec); err != nil {
		s.failed.Add(1)
		s.logger.Warn("telemetry append failed", "error", err)
		return false
	}
	s.recorded.Add(1)
	return true
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("telemetry stopped", "recorded", s.Recorded(), "malformed", s.Malformed())
			return nil
		case <-ticker.C:
			s.Sample()
		}
	}
}

func (s *Sampler) Recorded() int64  { return s.recorded.Load() }
func (s *Sampler) Malformed() int64 { return s.malformed.Load() }
func (s *Sampler) Failed() int64    { return s.failed.Load() }
