package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
)

type queuedReader struct {
	mu    sync.Mutex
	snaps []flight.Snapshot
	err   error
}

func (q *queuedReader) Snapshot() (flight.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if len(q.snaps) == 0 {
		return make(flight.Snapshot, flight.SnapshotArity), nil
	}
	s := q.snaps[0]
	q.snaps = q.snaps[1:]
	return s, nil
}

type failingSink struct{}

func (failingSink) Append(Record) error { return errors.New("disk full") }

func TestSampleArity(t *testing.T) {
	for n := 0; n <= 30; n++ {
		buf := &Buffer{}
		reader := &queuedReader{snaps: []flight.Snapshot{make(flight.Snapshot, n)}}
		s := NewSampler(reader, flight.NewLabelCell("stand"), buf)

		ok := s.Sample()
		got := len(buf.Records())

		if n == flight.SnapshotArity {
			if !ok || got != 1 {
				t.Errorf("arity %d: expected exactly one record, got %d", n, got)
			}
			continue
		}
		if ok || got != 0 {
			t.Errorf("arity %d: expected no record, got %d", n, got)
		}
		if s.Malformed() != 1 {
			t.Errorf("arity %d: expected malformed count 1, got %d", n, s.Malformed())
		}
	}
}

func TestSampleTagsLabel(t *testing.T) {
	buf := &Buffer{}
	label := flight.NewLabelCell("stand")
	snap := make(flight.Snapshot, flight.SnapshotArity)
	snap[7] = 42
	reader := &queuedReader{snaps: []flight.Snapshot{snap, snap}}
	s := NewSampler(reader, label, buf)

	s.Sample()
	label.Store("YAW LEFT")
	s.Sample()

	recs := buf.Records()
	if recs[0].Label != "stand" || recs[1].Label != "YAW LEFT" {
		t.Errorf("unexpected labels %q %q", recs[0].Label, recs[1].Label)
	}
	if recs[1].Tag != 0 {
		t.Errorf("expected zero tag, got %d", recs[1].Tag)
	}
	if yaw, _ := recs[1].Snapshot.Field("yaw"); yaw != 42 {
		t.Errorf("expected yaw 42, got %v", yaw)
	}

	snap[7] = 0
	if yaw, _ := recs[0].Snapshot.Field("yaw"); yaw != 42 {
		t.Error("record must not alias the reader's snapshot")
	}
}

func TestSampleErrorsAreLocal(t *testing.T) {
	s := NewSampler(&queuedReader{err: errors.New("no state")}, flight.NewLabelCell(""), &Buffer{})
	if s.Sample() {
		t.Error("expected no record without a snapshot")
	}

	s = NewSampler(&queuedReader{}, flight.NewLabelCell(""), failingSink{})
	if s.Sample() {
		t.Error("expected failed append to report false")
	}
	if s.Failed() != 1 || s.Recorded() != 0 {
		t.Errorf("failed=%d recorded=%d", s.Failed(), s.Recorded())
	}
}

func TestRunUntilCancelled(t *testing.T) {
	buf := &Buffer{}
	s := NewSampler(&queuedReader{}, flight.NewLabelCell("stand"), buf, WithPeriod(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(buf.Records()) == 0 {
		t.Error("expected records while running")
	}
	if int64(len(buf.Records())) != s.Recorded() {
		t.Errorf("recorded counter %d disagrees with %d records", s.Recorded(), len(buf.Records()))
	}
}

func TestTee(t *testing.T) {
	a, b := &Buffer{}, &Buffer{}
	if err := (Tee{a, failingSink{}, b}).Append(Record{Label: "UP"}); err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(a.Records()) != 1 || len(b.Records()) != 1 {
		t.Error("expected every sink to receive the record")
	}
}
