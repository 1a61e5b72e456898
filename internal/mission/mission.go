// Package mission replays scripted intents from a YAML file.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/tellosup/internal/arbiter"
)

var ErrEmptyMission = errors.New("mission: no steps")

// Mission is a scripted intent sequence.
type Mission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step submits one intent and then waits before the next.
type Step struct {
	Intent string        `yaml:"intent"`
	Step   float64       `yaml:"step,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty"`
}

func Load(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Mission, error) {
	var m Mission
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mission: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Mission) Validate() error {
	if len(m.Steps) == 0 {
		return ErrEmptyMission
	}
	for i, s := range m.Steps {
		if _, err := arbiter.ParseKind(s.Intent); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if s.Wait < 0 {
			return fmt.Errorf("step %d: negative wait %v", i+1, s.Wait)
		}
	}
	return nil
}

// Source replays a mission through the arbiter.
type Source struct {
	mission *Mission
	logger  *slog.Logger
}

var _ arbiter.Source = (*Source)(nil)

func NewSource(m *Mission, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{mission: m, logger: logger}
}

func (s *Source) Name() string { return "mission" }

func (s *Source) Run(ctx context.Context, submit func(arbiter.Intent) error) error {
	steps := s.mission.Steps
	for i, step := range steps {
		kind, err := arbiter.ParseKind(step.Intent)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		s.logger.Info("mission step", "step", fmt.Sprintf("%d/%d", i+1, len(steps)), "intent", kind)
		if err := submit(arbiter.Intent{Kind: kind, Step: step.Step, Source: s.Name()}); err != nil {
			s.logger.Warn("mission step rejected", "step", i+1, "err", err)
		}
		if kind == arbiter.Quit {
			return nil
		}

		if step.Wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(step.Wait):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
