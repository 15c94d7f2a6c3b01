package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Resampler converts interleaved PCM between sample rates using linear
// interpolation. It keeps the last input frame between calls so consecutive
// chunks join without clicks.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	channels   int
	position   float64 // next output position in input frames, relative to the chunk
	last       []int16
}

// NewResampler creates a resampler for the given rates and channel count.
func NewResampler(inputRate, outputRate uint32, channels int) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"channels":    channels,
	}).Debug("Audio resampler created")

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		last:       make([]int16, channels),
	}, nil
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() uint32 { return r.inputRate }

// OutputRate returns the configured output sample rate.
func (r *Resampler) OutputRate() uint32 { return r.outputRate }

// Resample converts one chunk. Input must hold whole frames.
func (r *Resampler) Resample(input []int16) ([]int16, error) {
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input length %d not aligned to %d channels", len(input), r.channels)
	}
	if len(input) == 0 {
		return nil, nil
	}
	if r.inputRate == r.outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out, nil
	}

	frames := len(input) / r.channels
	step := float64(r.inputRate) / float64(r.outputRate)
	output := make([]int16, 0, int(float64(frames)/step+1)*r.channels)

	sample := func(frame, ch int) float64 {
		if frame < 0 {
			return float64(r.last[ch])
		}
		return float64(input[frame*r.channels+ch])
	}

	pos := r.position
	for pos < float64(frames-1) {
		i := int(math.Floor(pos))
		frac := pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a, b := sample(i, ch), sample(i+1, ch)
			output = append(output, int16(a+(b-a)*frac))
		}
		pos += step
	}

	r.position = pos - float64(frames)
	copy(r.last, input[len(input)-r.channels:])

	return output, nil
}

// Reset forgets the interpolation history.
func (r *Resampler) Reset() {
	r.position = 0
	for i := range r.last {
		r.last[i] = 0
	}
}
