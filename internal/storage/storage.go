// Package storage persists flight sessions and their telemetry records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/tellosup/internal/telemetry"
)

var (
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("storage: session not found")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// Session describes one supervisor run.
type Session struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended,omitzero"`
	Mode    string    `json:"mode"`
	Link    string    `json:"link"`
	Preset  string    `json:"preset,omitempty"`
	Kp      float64   `json:"kp"`
	Ki      float64   `json:"ki"`
	Kd      float64   `json:"kd"`
	Records int       `json:"records"`
}

// NewSessionID derives an id from the run mode and start time.
func NewSessionID(mode string, started time.Time) string {
	return fmt.Sprintf("%s_%d", mode, started.UnixMilli())
}

// SessionLog is the append side of one open session.
type SessionLog interface {
	telemetry.Sink
	Session() Session
	// Close finalizes the session metadata.
	Close() error
}

// Store is a session backend.
type Store interface {
	Begin(ctx context.Context, s Session) (SessionLog, error)
	List(ctx context.Context) ([]Session, error)
	Load(ctx context.Context, id string) (*Session, error)
	Records(ctx context.Context, id string) ([]telemetry.Record, error)
	Close() error
}

var (
	_ Store = (*CSVStore)(nil)
	_ Store = (*SqliteStore)(nil)
)

// Open returns the backend named kind rooted at path. For "csv" path is a
// directory; for "sqlite" it is a database file.
func Open(kind, path string) (Store, error) {
	switch kind {
	case "csv", "":
		st := NewCSVStore(path)
		if err := st.Init(); err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		return NewSqliteStore(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

func prepare(s Session) Session {
	if s.Started.IsZero() {
		s.Started = time.Now()
	}
	if s.ID == "" {
		s.ID = NewSessionID(s.Mode, s.Started)
	}
	s.Records = 0
	return s
}
