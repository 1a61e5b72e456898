package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/tellosup/internal/arbiter"
)

const DefaultListen = 5 * time.Second

// Source is the voice intent source. It listens for one utterance at a
// time so a new phrase is not captured while the last one is recognized.
type Source struct {
	listener   Listener
	recognizer Recognizer
	grammar    Grammar
	listen     time.Duration
	logger     *slog.Logger
}

var _ arbiter.Source = (*Source)(nil)

func NewSource(l Listener, r Recognizer, g Grammar, listen time.Duration, logger *slog.Logger) *Source {
	if listen <= 0 {
		listen = DefaultListen
	}
	if g == nil {
		g = Offline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{listener: l, recognizer: r, grammar: g, listen: listen, logger: logger}
}

func (s *Source) Name() string { return "voice" }

// Run returns nil when ctx ends, the listener runs dry, or "exit" is heard.
func (s *Source) Run(ctx context.Context, submit func(arbiter.Intent) error) error {
	for ctx.Err() == nil {
		u, err := s.listener.Listen(ctx, s.listen)
		switch {
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrRecognitionTimeout):
			s.logger.Debug("no speech", "timeout", s.listen)
			continue
		case err != nil:
			return fmt.Errorf("voice: listen: %w", err)
		}

		text, err := s.recognizer.Recognize(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("recognition failed", "err", err, "duration", u.Duration())
			continue
		}

		kind, ok := s.grammar.Parse(text)
		if !ok {
			s.logger.Info("command not recognized", "text", text)
			continue
		}
		s.logger.Info("heard", "text", text, "intent", kind)

		if err := submit(arbiter.Intent{Kind: kind, Source: s.Name()}); err != nil {
			s.logger.Warn("intent rejected", "intent", kind, "err", err)
		}
		if kind == arbiter.Quit {
			return nil
		}
	}
	return nil
}
