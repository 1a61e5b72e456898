// Package voice turns spoken commands into operator intents.
//
// A [Listener] captures one utterance at a time and a [Recognizer] turns it
// into lowercase text. A [Grammar] maps the text to an intent kind. Timeouts
// and recognition failures are logged by [Source] and listening resumes.
package voice

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecognitionTimeout = errors.New("voice: no speech before timeout")
	ErrRecognitionFailure = errors.New("voice: speech not recognized")
)

// Utterance is one captured phrase. Text is set by listeners that receive
// already transcribed input.
type Utterance struct {
	Samples []float32
	Rate    float64
	Text    string
}

func (u Utterance) Duration() time.Duration {
	if u.Rate <= 0 {
		return 0
	}
	return time.Duration(float64(len(u.Samples)) / u.Rate * float64(time.Second))
}

type Listener interface {
	// Listen blocks until an utterance ends or timeout passes with no speech,
	// in which case it returns ErrRecognitionTimeout.
	Listen(ctx context.Context, timeout time.Duration) (Utterance, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, u Utterance) (string, error)
}
