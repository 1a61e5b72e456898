package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/telemetry"
)

// SqliteStore keeps every session in one database file.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) exists() bool {
	_, err := os.Stat(s.dbPath)
	return err == nil
}

func (s *SqliteStore) Begin(ctx context.Context, sess Session) (SessionLog, error) {
	sess = prepare(sess)

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, insertSessionSQL,
		sess.ID, sess.Started.UTC(), sess.Mode, sess.Link, sess.Preset, sess.Kp, sess.Ki, sess.Kd); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	return &sqliteLog{db: db, stmt: stmt, sess: sess}, nil
}

type sqliteLog struct {
	db   *sql.DB
	stmt *sql.Stmt
	sess Session
}

func (l *sqliteLog) Session() Session { return l.sess }

func (l *sqliteLog) Append(r telemetry.Record) error {
	if len(r.Snapshot) != flight.SnapshotArity {
		return flight.ErrMalformedSnapshot
	}

	args := make([]any, 0, flight.SnapshotArity+4)
	args = append(args, l.sess.ID, r.Time.UTC(), r.Label, r.Tag)
	for _, v := range r.Snapshot {
		args = append(args, v)
	}

	if _, err := l.stmt.Exec(args...); err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	l.sess.Records++
	return nil
}

func (l *sqliteLog) Close() (err error) {
	defer closeWithError(l.stmt, &err)

	l.sess.Ended = time.Now()
	if _, err = l.db.Exec(finishSessionSQL, l.sess.Ended.UTC(), l.sess.Records, l.sess.ID); err != nil {
		err = fmt.Errorf("finishing session: %w", err)
	}
	return
}

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSession(row sessionScanner) (*Session, error) {
	var sess Session
	var ended sql.NullTime
	var preset sql.NullString
	if err := row.Scan(&sess.ID, &sess.Started, &ended, &sess.Mode, &sess.Link, &preset,
		&sess.Kp, &sess.Ki, &sess.Kd, &sess.Records); err != nil {
		return nil, err
	}
	sess.Ended = ended.Time
	sess.Preset = preset.String
	return &sess, nil
}

func (s *SqliteStore) List(ctx context.Context) (sessions []Session, err error) {
	if !s.exists() {
		return []Session{}, nil
	}
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	sessions = []Session{}
	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, *sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Load(ctx context.Context, id string) (*Session, error) {
	if !s.exists() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	sess, err := scanSession(db.QueryRowContext(ctx, selectSessionSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return sess, nil
}

func (s *SqliteStore) Records(ctx context.Context, id string) (records []telemetry.Record, err error) {
	if _, err = s.Load(ctx, id); err != nil {
		return
	}
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, id)
	if err != nil {
		err = fmt.Errorf("querying records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	records = []telemetry.Record{}
	for rows.Next() {
		rec := telemetry.Record{Snapshot: make(flight.Snapshot, flight.SnapshotArity)}
		dest := []any{&rec.Time, &rec.Label, &rec.Tag}
		for i := range rec.Snapshot {
			dest = append(dest, &rec.Snapshot[i])
		}
		if err = rows.Scan(dest...); err != nil {
			err = fmt.Errorf("scanning record: %w", err)
			return
		}
		records = append(records, rec)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
