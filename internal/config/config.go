package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/tellosup/internal/arbiter"
	"github.com/san-kum/tellosup/internal/control"
	"github.com/san-kum/tellosup/internal/link"
	"github.com/san-kum/tellosup/internal/logging"
	"github.com/san-kum/tellosup/internal/safety"
	"github.com/san-kum/tellosup/internal/sequencer"
	"github.com/san-kum/tellosup/internal/telemetry"
	"github.com/san-kum/tellosup/internal/vehicle"
	"github.com/san-kum/tellosup/internal/voice"
)

const DefaultDataDir = "sessions"

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Link      LinkConfig      `yaml:"link"`
	Safety    SafetyConfig    `yaml:"safety"`
	Yaw       YawConfig       `yaml:"yaw"`
	Altitude  AltitudeConfig  `yaml:"altitude"`
	Sequence  SequenceConfig  `yaml:"sequence"`
	Arbiter   ArbiterConfig   `yaml:"arbiter"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`
	Voice     VoiceConfig     `yaml:"voice"`
	Log       LogConfig       `yaml:"log"`
}

type LinkConfig struct {
	Kind        string        `yaml:"kind"`
	CommandAddr string        `yaml:"command_addr"`
	StateAddr   string        `yaml:"state_addr"`
	Timeout     time.Duration `yaml:"timeout"`
	Sim         SimConfig     `yaml:"sim"`
}

// SimConfig tunes the simulated vehicle.
type SimConfig struct {
	Battery   int     `yaml:"battery"`
	Yaw       float64 `yaml:"yaw"`
	YawGain   float64 `yaml:"yaw_gain"`
	ClimbGain float64 `yaml:"climb_gain"`
	Lag       float64 `yaml:"lag"`
}

type SafetyConfig struct {
	MinBattery int `yaml:"min_battery"`
}

type YawConfig struct {
	Kp            float64       `yaml:"kp"`
	Ki            float64       `yaml:"ki"`
	Kd            float64       `yaml:"kd"`
	Period        time.Duration `yaml:"period"`
	Tolerance     float64       `yaml:"tolerance"`
	OutputLimit   float64       `yaml:"output_limit"`
	IntegralLimit float64       `yaml:"integral_limit"`
	Wrap          bool          `yaml:"wrap"`
	Timeout       time.Duration `yaml:"timeout"`
}

type AltitudeConfig struct {
	Rate      int           `yaml:"rate"`
	Period    time.Duration `yaml:"period"`
	Tolerance float64       `yaml:"tolerance"`
	Timeout   time.Duration `yaml:"timeout"`
}

type SequenceConfig struct {
	Offset      float64       `yaml:"offset"`
	Dwell       time.Duration `yaml:"dwell"`
	HoldForLand bool          `yaml:"hold_for_land"`
	Settle      time.Duration `yaml:"settle"`
}

type ArbiterConfig struct {
	Queue        int           `yaml:"queue"`
	YawStep      float64       `yaml:"yaw_step"`
	AltitudeStep float64       `yaml:"altitude_step"`
	Keepalive    time.Duration `yaml:"keepalive"`
}

type TelemetryConfig struct {
	Period time.Duration `yaml:"period"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type VoiceConfig struct {
	// Grammar is "offline" (single-word takeoff/land) or "online".
	Grammar string `yaml:"grammar"`
	// Recognizer is the command that turns WAV on stdin into text.
	Recognizer []string      `yaml:"recognizer"`
	Device     string        `yaml:"device"`
	SampleRate float64       `yaml:"sample_rate"`
	Listen     time.Duration `yaml:"listen"`
	Threshold  float64       `yaml:"threshold"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func DefaultConfig() *Config {
	yaw := control.DefaultYawConfig()
	alt := control.DefaultAltitudeConfig()
	seq := sequencer.DefaultConfig()
	arb := arbiter.DefaultConfig()

	return &Config{
		Link: LinkConfig{
			Kind:        "tello",
			CommandAddr: link.DefaultCommandAddr,
			StateAddr:   link.DefaultStateAddr,
			Timeout:     link.DefaultTimeout,
			Sim: SimConfig{
				Battery:   100,
				YawGain:   1,
				ClimbGain: 1,
				Lag:       0.3,
			},
		},
		Safety: SafetyConfig{MinBattery: safety.DefaultMinBattery},
		Yaw: YawConfig{
			Kp:            yaw.Gains.Kp,
			Ki:            yaw.Gains.Ki,
			Kd:            yaw.Gains.Kd,
			Period:        yaw.Period,
			Tolerance:     yaw.Tolerance,
			OutputLimit:   yaw.OutputLimit,
			IntegralLimit: yaw.IntegralLimit,
			Wrap:          yaw.Wrap,
			Timeout:       yaw.Timeout,
		},
		Altitude: AltitudeConfig{
			Rate:      alt.Rate,
			Period:    alt.Period,
			Tolerance: alt.Tolerance,
			Timeout:   alt.Timeout,
		},
		Sequence: SequenceConfig{
			Offset: seq.Offset,
			Dwell:  seq.Dwell,
			Settle: seq.Settle,
		},
		Arbiter: ArbiterConfig{
			Queue:        arb.Queue,
			YawStep:      arb.YawStep,
			AltitudeStep: arb.AltitudeStep,
			Keepalive:    arb.Keepalive,
		},
		Telemetry: TelemetryConfig{Period: telemetry.DefaultPeriod},
		Storage: StorageConfig{
			Backend: "csv",
			Path:    DefaultDataDir,
		},
		Voice: VoiceConfig{
			Grammar:    "offline",
			SampleRate: voice.DefaultSampleRate,
			Listen:     voice.DefaultListen,
			Threshold:  voice.DefaultThreshold,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(slices.Contains(link.Kinds(), c.Link.Kind), "link.kind %q", c.Link.Kind)
	check(c.Safety.MinBattery >= 0 && c.Safety.MinBattery <= 100, "safety.min_battery %d", c.Safety.MinBattery)
	check(c.Yaw.Period > 0, "yaw.period %s", c.Yaw.Period)
	check(c.Yaw.Tolerance >= 0, "yaw.tolerance %g", c.Yaw.Tolerance)
	check(c.Altitude.Period > 0, "altitude.period %s", c.Altitude.Period)
	check(c.Altitude.Rate > 0, "altitude.rate %d", c.Altitude.Rate)
	check(c.Arbiter.Queue > 0, "arbiter.queue %d", c.Arbiter.Queue)
	check(c.Telemetry.Period > 0, "telemetry.period %s", c.Telemetry.Period)
	check(c.Storage.Backend == "csv" || c.Storage.Backend == "sqlite", "storage.backend %q", c.Storage.Backend)
	check(c.Voice.Grammar == "offline" || c.Voice.Grammar == "online", "voice.grammar %q", c.Voice.Grammar)

	return errors.Join(errs...)
}

func (c *Config) Gains() control.Gains {
	return control.Gains{Kp: c.Yaw.Kp, Ki: c.Yaw.Ki, Kd: c.Yaw.Kd}
}

func (c *Config) YawRegulator() control.YawConfig {
	return control.YawConfig{
		Gains:         c.Gains(),
		Period:        c.Yaw.Period,
		Tolerance:     c.Yaw.Tolerance,
		OutputLimit:   c.Yaw.OutputLimit,
		IntegralLimit: c.Yaw.IntegralLimit,
		Wrap:          c.Yaw.Wrap,
		Timeout:       c.Yaw.Timeout,
	}
}

func (c *Config) AltitudeRegulator() control.AltitudeConfig {
	return control.AltitudeConfig{
		Rate:      c.Altitude.Rate,
		Period:    c.Altitude.Period,
		Tolerance: c.Altitude.Tolerance,
		Timeout:   c.Altitude.Timeout,
	}
}

func (c *Config) Sequencer() sequencer.Config {
	return sequencer.Config{
		Offset:      c.Sequence.Offset,
		Dwell:       c.Sequence.Dwell,
		HoldForLand: c.Sequence.HoldForLand,
		Settle:      c.Sequence.Settle,
	}
}

func (c *Config) ArbiterConfig() arbiter.Config {
	return arbiter.Config{
		Queue:        c.Arbiter.Queue,
		YawStep:      c.Arbiter.YawStep,
		AltitudeStep: c.Arbiter.AltitudeStep,
		Keepalive:    c.Arbiter.Keepalive,
	}
}

func (c *Config) LinkOptions() link.Options {
	sim := vehicle.DefaultConfig()
	sim.Battery = c.Link.Sim.Battery
	sim.Yaw = c.Link.Sim.Yaw
	sim.YawGain = c.Link.Sim.YawGain
	sim.SpeedGain = c.Link.Sim.ClimbGain
	sim.Lag = c.Link.Sim.Lag

	return link.Options{
		Kind:        c.Link.Kind,
		CommandAddr: c.Link.CommandAddr,
		StateAddr:   c.Link.StateAddr,
		Timeout:     c.Link.Timeout,
		Sim:         sim,
	}
}

func (c *Config) Microphone() voice.MicConfig {
	return voice.MicConfig{
		Device:     c.Voice.Device,
		SampleRate: c.Voice.SampleRate,
		Threshold:  c.Voice.Threshold,
	}
}

func (c *Config) Logging() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}
