package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Transcript is a listener fed with one already transcribed utterance per
// line, for piping an external speech engine into the supervisor.
type Transcript struct {
	lines chan string
	errc  chan error
}

func NewTranscript(r io.Reader) *Transcript {
	t := &Transcript{lines: make(chan string), errc: make(chan error, 1)}
	go t.scan(r)
	return t
}

func (t *Transcript) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t.lines <- line
	}
	if err := sc.Err(); err != nil {
		t.errc <- err
	} else {
		t.errc <- io.EOF
	}
	close(t.lines)
}

func (t *Transcript) Listen(ctx context.Context, timeout time.Duration) (Utterance, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	case <-timer.C:
		return Utterance{}, ErrRecognitionTimeout
	case line, ok := <-t.lines:
		if !ok {
			err := <-t.errc
			t.errc <- err
			return Utterance{}, err
		}
		return Utterance{Text: line}, nil
	}
}

// TextRecognizer passes through utterances that already carry text.
type TextRecognizer struct{}

func (TextRecognizer) Recognize(ctx context.Context, u Utterance) (string, error) {
	text := strings.ToLower(strings.TrimSpace(u.Text))
	if text == "" {
		return "", fmt.Errorf("%w: no transcript", ErrRecognitionFailure)
	}
	return text, nil
}
