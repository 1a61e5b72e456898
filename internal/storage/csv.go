package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/telemetry"
)

const (
	sessionFile   = "session.json"
	telemetryFile = "telemetry.csv"
)

// Header is the telemetry.csv column layout.
func Header() []string {
	h := make([]string, 0, flight.SnapshotArity+2)
	h = append(h, flight.SnapshotFields[:]...)
	return append(h, "command", "tag")
}

// CSVStore keeps one directory per session holding session.json and
// telemetry.csv.
type CSVStore struct {
	baseDir string
}

func NewCSVStore(baseDir string) *CSVStore {
	return &CSVStore{baseDir: baseDir}
}

func (s *CSVStore) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *CSVStore) Dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *CSVStore) Begin(_ context.Context, sess Session) (SessionLog, error) {
	sess = prepare(sess)
	dir := s.Dir(sess.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := writeSession(dir, sess); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, telemetryFile))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header()); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &csvLog{dir: dir, sess: sess, file: f, w: w}, nil
}

func writeSession(dir string, sess Session) error {
	f, err := os.Create(filepath.Join(dir, sessionFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(sess)
}

type csvLog struct {
	dir  string
	sess Session
	file *os.File
	w    *csv.Writer
}

func (l *csvLog) Session() Session { return l.sess }

func (l *csvLog) Append(r telemetry.Record) error {
	row := make([]string, 0, len(r.Snapshot)+2)
	for _, v := range r.Snapshot {
		row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
	}
	row = append(row, r.Label, strconv.Itoa(r.Tag))

	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	l.sess.Records++
	return nil
}

func (l *csvLog) Close() error {
	l.w.Flush()
	err := errors.Join(l.w.Error(), l.file.Close())
	l.sess.Ended = time.Now()
	return errors.Join(err, writeSession(l.dir, l.sess))
}

func (s *CSVStore) List(_ context.Context) ([]Session, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Session{}, nil
		}
		return nil, err
	}

	sessions := make([]Session, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := readSession(s.Dir(entry.Name()))
		if err != nil {
			continue
		}
		sessions = append(sessions, *sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Started.Before(sessions[j].Started)
	})
	return sessions, nil
}

func readSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *CSVStore) Load(_ context.Context, id string) (*Session, error) {
	sess, err := readSession(s.Dir(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// Records reads the telemetry back. Rows that do not parse are skipped.
func (s *CSVStore) Records(_ context.Context, id string) ([]telemetry.Record, error) {
	file, err := os.Open(filepath.Join(s.Dir(id), telemetryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []telemetry.Record{}, nil
	}

	records := make([]telemetry.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != flight.SnapshotArity+2 {
			continue
		}
		rec, ok := parseRow(row)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (telemetry.Record, bool) {
	snap := make(flight.Snapshot, flight.SnapshotArity)
	for i := range snap {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return telemetry.Record{}, false
		}
		snap[i] = v
	}
	tag, err := strconv.Atoi(row[flight.SnapshotArity+1])
	if err != nil {
		return telemetry.Record{}, false
	}
	return telemetry.Record{Snapshot: snap, Label: row[flight.SnapshotArity], Tag: tag}, true
}

func (s *CSVStore) Close() error { return nil }
