package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResamplerValidation(t *testing.T) {
	tests := []struct {
		name     string
		in, out  uint32
		channels int
		wantErr  bool
	}{
		{"valid mono", 8000, 48000, 1, false},
		{"valid stereo", 44100, 48000, 2, false},
		{"zero input rate", 0, 48000, 1, true},
		{"zero output rate", 48000, 0, 1, true},
		{"too many channels", 48000, 48000, 3, true},
		{"no channels", 48000, 48000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResampler(tt.in, tt.out, tt.channels)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in, r.InputRate())
			assert.Equal(t, tt.out, r.OutputRate())
		})
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	r, err := NewResampler(48000, 48000, 1)
	require.NoError(t, err)

	in := []int16{1, 2, 3, 4}
	out, err := r.Resample(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out[0] = 99
	assert.Equal(t, int16(1), in[0], "output must not alias input")
}

func TestResampleUpsamplesAcrossChunks(t *testing.T) {
	r, err := NewResampler(8000, 48000, 1)
	require.NoError(t, err)

	total := 0
	for chunk := 0; chunk < 50; chunk++ {
		in := make([]int16, 160) // 20ms at 8kHz
		for i := range in {
			in[i] = int16(i * 10)
		}
		out, err := r.Resample(in)
		require.NoError(t, err)
		total += len(out)
	}

	// 50 chunks of 20ms at 48kHz is 48000 samples; interpolation may lag by
	// at most one output period per chunk boundary.
	assert.InDelta(t, 48000, total, 12)
}

func TestResampleDownsamplesStereo(t *testing.T) {
	r, err := NewResampler(48000, 24000, 2)
	require.NoError(t, err)

	in := make([]int16, 960*2)
	for i := 0; i < 960; i++ {
		in[2*i] = 1000
		in[2*i+1] = -1000
	}

	out, err := r.Resample(in)
	require.NoError(t, err)
	require.Equal(t, 0, len(out)%2)
	assert.InDelta(t, 960, len(out), 2)
	for i := 0; i < len(out); i += 2 {
		assert.Equal(t, int16(1000), out[i])
		assert.Equal(t, int16(-1000), out[i+1])
	}
}

func TestResampleRejectsMisalignedInput(t *testing.T) {
	r, err := NewResampler(48000, 16000, 2)
	require.NoError(t, err)

	_, err = r.Resample([]int16{1, 2, 3})
	assert.Error(t, err)
}

func TestResampleInterpolatesLinearly(t *testing.T) {
	r, err := NewResampler(1000, 2000, 1)
	require.NoError(t, err)

	out, err := r.Resample([]int16{0, 100, 200})
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 50, 100, 150}, out)

	// The pending half-step is produced from the remembered last sample.
	out, err = r.Resample([]int16{300, 400})
	require.NoError(t, err)
	assert.Equal(t, []int16{200, 250, 300, 350}, out)
}
