package voice

import (
	"encoding/binary"
	"io"
	"math"
)

// writeWAV encodes mono samples as 16-bit PCM.
func writeWAV(w io.Writer, samples []float32, rate int) error {
	const (
		channels = 1
		bits     = 16
	)
	data := uint32(len(samples) * bits / 8)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		36 + data,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(channels),
		uint32(rate),
		uint32(rate * channels * bits / 8),
		uint16(channels * bits / 8),
		uint16(bits),
		[4]byte{'d', 'a', 't', 'a'},
		data,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = int16(math.Round(float64(max(-1, min(1, s))) * math.MaxInt16))
	}
	return binary.Write(w, binary.LittleEndian, pcm)
}
