package telemetry

import "sync"

// Buffer is an in-memory Sink.
type Buffer struct {
	mu      sync.Mutex
	records []Record
}

func (b *Buffer) Append(r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
	return nil
}

// Records returns a copy of the buffered records.
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.records...)
}

// Last returns the newest record.
func (b *Buffer) Last() (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return Record{}, false
	}
	return b.records[len(b.records)-1], true
}

// Tee appends every record to each sink and returns the first error.
type Tee []Sink

func (t Tee) Append(r Record) error {
	var first error
	for _, s := range t {
		if err := s.Append(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
