package audio

import "math"

// ConvertChannels converts interleaved PCM between mono and stereo.
// Mono is duplicated into both channels; stereo is averaged down.
func ConvertChannels(pcm []int16, from, to uint8) []int16 {
	if from == to || len(pcm) == 0 {
		return pcm
	}

	switch {
	case from == 1 && to == 2:
		out := make([]int16, len(pcm)*2)
		for i, s := range pcm {
			out[2*i] = s
			out[2*i+1] = s
		}
		return out
	case from == 2 && to == 1:
		out := make([]int16, len(pcm)/2)
		for i := range out {
			out[i] = int16((int32(pcm[2*i]) + int32(pcm[2*i+1])) / 2)
		}
		return out
	default:
		return pcm
	}
}

// ApplyGain scales samples in place, clipping to the int16 range, and
// returns how many samples were clipped.
func ApplyGain(samples []int16, gain float64) int {
	if gain == 1 {
		return 0
	}

	clipped := 0
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			samples[i] = math.MinInt16
			clipped++
		default:
			samples[i] = int16(v)
		}
	}
	return clipped
}
