package storage

import (
	"strings"

	"github.com/san-kum/tellosup/internal/flight"
)

var initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id       TEXT PRIMARY KEY,
    started  TIMESTAMP NOT NULL,
    ended    TIMESTAMP,
    mode     TEXT NOT NULL,
    link     TEXT NOT NULL,
    preset   TEXT,
    kp       REAL,
    ki       REAL,
    kd       REAL,
    records  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES sessions(id),
    sampled_at  TIMESTAMP NOT NULL,
    command     TEXT NOT NULL,
    tag         INTEGER NOT NULL,
` + snapshotColumnsDDL + `
);
`

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, id);
`

const (
	insertSessionSQL = `
INSERT INTO sessions (id, started, mode, link, preset, kp, ki, kd)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET ended = ?, records = ?
WHERE id = ?`

	selectSessionColumns = `
SELECT
    id,
    started,
    ended,
    mode,
    link,
    preset,
    kp,
    ki,
    kd,
    records
FROM sessions`

	selectSessionSQL  = selectSessionColumns + ` WHERE id = ?`
	selectSessionsSQL = selectSessionColumns + ` ORDER BY started`
)

var (
	snapshotColumnsDDL = snapshotColumns(" REAL NOT NULL", ",\n")

	insertRecordSQL = `
INSERT INTO records (session_id, sampled_at, command, tag, ` + snapshotColumns("", ", ") + `)
VALUES (?, ?, ?, ?` + strings.Repeat(", ?", flight.SnapshotArity) + `)`

	selectRecordsSQL = `
SELECT sampled_at, command, tag, ` + snapshotColumns("", ", ") + `
FROM records
WHERE session_id = ?
ORDER BY id`
)

// snapshotColumns renders the snapshot field names as column list items.
// The firmware's "time" field is stored as flight_time.
func snapshotColumns(suffix, sep string) string {
	cols := make([]string, len(flight.SnapshotFields))
	for i, f := range flight.SnapshotFields {
		if f == "time" {
			f = "flight_time"
		}
		cols[i] = "    " + f + suffix
		if sep == ", " {
			cols[i] = f
		}
	}
	return strings.Join(cols, sep)
}
