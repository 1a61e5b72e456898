package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/tellosup/internal/flight"
	"github.com/san-kum/tellosup/internal/telemetry"
)

type ExportData struct {
	Session Session            `json:"session"`
	Fields  []string           `json:"fields"`
	Records []telemetry.Record `json:"records"`
	Labels  map[string]int     `json:"labels"`
}

func NewExport(sess Session, records []telemetry.Record) ExportData {
	data := ExportData{
		Session: sess,
		Fields:  flight.SnapshotFields[:],
		Records: records,
		Labels:  make(map[string]int),
	}
	for _, r := range records {
		data.Labels[r.Label]++
	}
	return data
}

// ExportJSON writes the session to path, or to stdout when path is "-".
func ExportJSON(path string, sess Session, records []telemetry.Record) error {
	if path == "-" {
		return WriteJSON(os.Stdout, sess, records)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteJSON(file, sess, records)
}

func WriteJSON(w io.Writer, sess Session, records []telemetry.Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExport(sess, records))
}
