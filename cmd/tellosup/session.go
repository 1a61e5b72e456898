package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/tellosup/internal/arbiter"
	"github.com/san-kum/tellosup/internal/cockpit"
	"github.com/san-kum/tellosup/internal/link"
	"github.com/san-kum/tellosup/internal/logging"
	"github.com/san-kum/tellosup/internal/mission"
	"github.com/san-kum/tellosup/internal/storage"
	"github.com/san-kum/tellosup/internal/supervisor"
	"github.com/san-kum/tellosup/internal/voice"
)

// sourcesFunc builds the intent sources once the supervisor exists.
type sourcesFunc func(sup *supervisor.Supervisor, log *logging.Logger) ([]arbiter.Source, func() error, error)

func openStore() (storage.Store, error) {
	path := cfg.Storage.Path
	if cfg.Storage.Backend == "sqlite" && filepath.Ext(path) == "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		path = filepath.Join(path, "tellosup.db")
	}
	return storage.Open(cfg.Storage.Backend, path)
}

// runSession records one supervisor run under mode.
func runSession(mode string, console io.Writer, build sourcesFunc) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logging.New(console, cfg.Logging())
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	started := time.Now()
	sess, err := store.Begin(ctx, storage.Session{
		ID:      storage.NewSessionID(mode, started),
		Started: started,
		Mode:    mode,
		Link:    cfg.Link.Kind,
		Preset:  preset,
		Kp:      cfg.Yaw.Kp,
		Ki:      cfg.Yaw.Ki,
		Kd:      cfg.Yaw.Kd,
	})
	if err != nil {
		return err
	}

	lnk, err := link.Open(cfg.LinkOptions(), log.Component("link"))
	if err != nil {
		return errors.Join(err, sess.Close())
	}

	sup := supervisor.New(cfg, lnk, sess, log.Logger)
	sources, cleanup, err := build(sup, log)
	if err != nil {
		return errors.Join(err, sess.Close())
	}
	if cleanup != nil {
		defer cleanup()
	}

	runErr := sup.Run(ctx, sources...)
	closeErr := sess.Close()

	st := sup.Stats()
	fmt.Printf("session %s: %d intents, %d dropped, %d records (%d malformed), final mode %s\n",
		sess.Session().ID, st.Intents, st.Dropped, st.Recorded, st.Malformed, st.Mode)
	return errors.Join(runErr, closeErr)
}

func runFly(cmd *cobra.Command, args []string) error {
	// the cockpit owns the terminal
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(logDir(), "tellosup.log")
	}
	return runSession("fly", os.Stderr, func(sup *supervisor.Supervisor, _ *logging.Logger) ([]arbiter.Source, func() error, error) {
		return []arbiter.Source{cockpit.New(sup.Status, cfg.Telemetry.Period)}, nil, nil
	})
}

func logDir() string {
	if filepath.Ext(cfg.Storage.Path) != "" {
		return filepath.Dir(cfg.Storage.Path)
	}
	return cfg.Storage.Path
}

func runVoice(cmd *cobra.Command, args []string) error {
	g, err := voice.GrammarByName(cfg.Voice.Grammar)
	if err != nil {
		return err
	}

	return runSession("voice", os.Stderr, func(sup *supervisor.Supervisor, log *logging.Logger) ([]arbiter.Source, func() error, error) {
		vlog := log.Component("voice")

		if transcript != "" {
			r, closeFn, err := openTranscript(transcript)
			if err != nil {
				return nil, nil, err
			}
			src := voice.NewSource(voice.NewTranscript(r), voice.TextRecognizer{}, g, cfg.Voice.Listen, vlog)
			return []arbiter.Source{src}, closeFn, nil
		}

		if len(cfg.Voice.Recognizer) == 0 {
			return nil, nil, errors.New("voice.recognizer is not configured; use --transcript or set a recognizer command")
		}
		mic, err := voice.OpenMicrophone(cfg.Microphone(), vlog)
		if err != nil {
			return nil, nil, err
		}
		src := voice.NewSource(mic, voice.Command{Argv: cfg.Voice.Recognizer}, g, cfg.Voice.Listen, vlog)
		return []arbiter.Source{src}, mic.Close, nil
	})
}

func openTranscript(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runSequence(cmd *cobra.Command, args []string) error {
	return runSession("sequence", os.Stderr, func(*supervisor.Supervisor, *logging.Logger) ([]arbiter.Source, func() error, error) {
		return []arbiter.Source{supervisor.Script{
			{Kind: arbiter.Sequence},
			{Kind: arbiter.Quit},
		}}, nil, nil
	})
}

func runMission(cmd *cobra.Command, args []string) error {
	m, err := mission.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("mission %s: %d steps\n", m.Name, len(m.Steps))

	return runSession("mission", os.Stderr, func(_ *supervisor.Supervisor, log *logging.Logger) ([]arbiter.Source, func() error, error) {
		return []arbiter.Source{mission.NewSource(m, log.Component("mission"))}, nil, nil
	})
}

func listDevices(cmd *cobra.Command, args []string) error {
	devices, err := voice.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no input devices found")
		return nil
	}
	for _, d := range devices {
		mark := " "
		if d.Default {
			mark = "*"
		}
		fmt.Printf("%s %s (%d ch, %.0f Hz)\n", mark, d.Name, d.Channels, d.SampleRate)
	}
	return nil
}
