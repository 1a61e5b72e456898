package voice

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Speech band edges in Hz.
const (
	bandLow  = 300
	bandHigh = 3400
)

// SpeechLevel is the RMS amplitude of frame within the speech band, after
// a Hann window.
func SpeechLevel(frame []float32, rate float64) float64 {
	n := len(frame)
	if n < 2 || rate <= 0 {
		return 0
	}

	x := make([]float64, n)
	for i, v := range frame {
		window := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		x[i] = float64(v) * window
	}
	spectrum := fft.FFTReal(x)

	var power float64
	for k := 1; k < n/2; k++ {
		f := float64(k) * rate / float64(n)
		if f < bandLow || f > bandHigh {
			continue
		}
		mag := cmplx.Abs(spectrum[k])
		power += mag * mag
	}
	return math.Sqrt(2*power) / float64(n)
}

// detector segments a stream of frames into utterances.
type detector struct {
	threshold float64
	hangover  int // silent frames that end an utterance
	maxFrames int

	speaking bool
	silent   int
	frames   int
}

// push feeds one frame level and reports whether the frame belongs to an
// utterance and whether the utterance just ended.
func (d *detector) push(level float64) (keep, done bool) {
	loud := level >= d.threshold
	if !d.speaking {
		if !loud {
			return false, false
		}
		d.speaking = true
	}

	d.frames++
	if loud {
		d.silent = 0
	} else {
		d.silent++
	}
	done = d.silent >= d.hangover || (d.maxFrames > 0 && d.frames >= d.maxFrames)
	return true, done
}
