package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	DefaultSampleRate = 16000
	DefaultThreshold  = 0.02
	frameSize         = 512
)

// MicConfig describes the capture device and the voice activity detector.
type MicConfig struct {
	// Device is a substring of the input device name; empty picks the
	// system default.
	Device     string
	SampleRate float64
	Threshold  float64
	// Hangover is the silence that ends an utterance.
	Hangover time.Duration
	// MaxLength caps one utterance.
	MaxLength time.Duration
}

// Microphone captures utterances from a portaudio input device.
type Microphone struct {
	cfg    MicConfig
	stream *portaudio.Stream
	buf    []float32
	logger *slog.Logger
}

var _ Listener = (*Microphone)(nil)

// OpenMicrophone initializes portaudio and opens a blocking mono stream.
// Close releases both.
func OpenMicrophone(cfg MicConfig, logger *slog.Logger) (*Microphone, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Hangover <= 0 {
		cfg.Hangover = 700 * time.Millisecond
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("voice: portaudio: %w", err)
	}
	dev, err := inputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	m := &Microphone{cfg: cfg, buf: make([]float32, frameSize), logger: logger}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = frameSize

	m.stream, err = portaudio.OpenStream(params, m.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("voice: open %s: %w", dev.Name, err)
	}
	if err := m.stream.Start(); err != nil {
		m.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("voice: start %s: %w", dev.Name, err)
	}
	logger.Info("microphone open", "device", dev.Name, "rate", cfg.SampleRate)
	return m, nil
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("voice: default input: %w", err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("voice: list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("voice: no input device matching %q", name)
}

func (m *Microphone) frames(d time.Duration) int {
	return max(1, int(d.Seconds()*m.cfg.SampleRate/frameSize))
}

func (m *Microphone) Listen(ctx context.Context, timeout time.Duration) (Utterance, error) {
	det := detector{
		threshold: m.cfg.Threshold,
		hangover:  m.frames(m.cfg.Hangover),
		maxFrames: m.frames(m.cfg.MaxLength),
	}
	wait := m.frames(timeout)

	var samples []float32
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return Utterance{}, err
		}
		if err := m.stream.Read(); err != nil {
			// overflow loses a frame, nothing more
			if err != portaudio.InputOverflowed {
				return Utterance{}, fmt.Errorf("voice: read: %w", err)
			}
		}

		keep, done := det.push(SpeechLevel(m.buf, m.cfg.SampleRate))
		if keep {
			samples = append(samples, m.buf...)
		}
		if done {
			return Utterance{Samples: samples, Rate: m.cfg.SampleRate}, nil
		}
		if !det.speaking && i >= wait {
			return Utterance{}, ErrRecognitionTimeout
		}
	}
}

func (m *Microphone) Close() error {
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// Device is an audio input as reported by portaudio.
type Device struct {
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// Devices lists input devices.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("voice: portaudio: %w", err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, d := range all {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, Device{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}
