package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silkPacket is a 20ms mono wideband SILK frame (TOC config 9, code 0).
var silkPacket = []byte{0x48, 0x0b, 0xe4, 0xc1, 0x36, 0xec, 0xc5, 0x80}

func TestOpusDecoderRejectsEmptyPacket(t *testing.T) {
	d := NewOpusDecoder()
	_, _, _, err := d.Decode(nil)
	assert.Error(t, err)
}

func TestOpusDecoderRejectsGarbage(t *testing.T) {
	d := NewOpusDecoder()
	// A CELT code 3 packet claiming 63 frames is longer than Opus allows.
	_, _, _, err := d.Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
	d.Reset()
}

// TestOpusDecoderSizesOutputFromTOC verifies a 20ms packet yields exactly
// 20ms of PCM, however often the decoder is reused.
func TestOpusDecoderSizesOutputFromTOC(t *testing.T) {
	d := NewOpusDecoder()

	for i := 0; i < 3; i++ {
		pcm, rate, channels, err := d.Decode(silkPacket)
		require.NoError(t, err)
		assert.Equal(t, uint32(48000), rate)
		assert.Equal(t, uint8(1), channels)
		assert.Len(t, pcm, 960)
	}
}

func TestPacketDuration(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		want   time.Duration
	}{
		{"silk nb 10ms", []byte{0 << 3}, 10 * time.Millisecond},
		{"silk wb 20ms", []byte{9 << 3}, 20 * time.Millisecond},
		{"silk mb 60ms", []byte{7 << 3}, 60 * time.Millisecond},
		{"hybrid fb 20ms", []byte{15 << 3}, 20 * time.Millisecond},
		{"celt nb 2.5ms", []byte{16 << 3}, 2500 * time.Microsecond},
		{"two frames", []byte{9<<3 | 1}, 40 * time.Millisecond},
		{"two sized frames", []byte{9<<3 | 2}, 40 * time.Millisecond},
		{"code 3 with three frames", []byte{9<<3 | 3, 3}, 60 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := packetDuration(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPacketDurationRejectsMalformed(t *testing.T) {
	for _, packet := range [][]byte{
		nil,
		{9<<3 | 3},       // frame count missing
		{9<<3 | 3, 0},    // zero frames
		{3<<3 | 3, 0x03}, // 3 x 60ms
	} {
		_, err := packetDuration(packet)
		assert.Error(t, err, "packet %x", packet)
	}
}
