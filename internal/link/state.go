package link

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/san-kum/tellosup/internal/flight"
)

// ParseState decodes one "key:value;" state datagram. Values keep datagram
// order; mpry carries three comma-separated parts and only the first is kept.
func ParseState(b []byte) ([]string, flight.Snapshot, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty datagram", ErrBadState)
	}

	var (
		keys []string
		snap flight.Snapshot
	)
	for _, pair := range bytes.Split(b, []byte(";")) {
		pair = bytes.TrimSpace(pair)
		if len(pair) == 0 {
			continue
		}
		k, v, ok := bytes.Cut(pair, []byte(":"))
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrBadState, pair)
		}
		if first, _, found := bytes.Cut(v, []byte(",")); found {
			v = first
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrBadState, k, err)
		}
		keys = append(keys, string(k))
		snap = append(snap, f)
	}
	return keys, snap, nil
}
