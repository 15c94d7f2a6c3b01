package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// maxDecodedSamples covers 40ms at 48kHz.
const maxDecodedSamples = 1920

// silkUpsample is the factor pion/opus applies to SILK output when it
// produces 16-bit PCM.
const silkUpsample = 3

// OpusDecoder turns Opus packets into PCM using the pure Go pion/opus decoder.
type OpusDecoder struct {
	decoder opus.Decoder
	output  []byte
}

// NewOpusDecoder creates a decoder with a reusable output buffer.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		output:  make([]byte, maxDecodedSamples*2),
	}
}

// Decode decodes one packet, returning interleaved PCM, its sample rate and
// channel count. The PCM covers exactly the duration signalled by the
// packet's TOC byte.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, uint32, uint8, error) {
	duration, err := packetDuration(packet)
	if err != nil {
		return nil, 0, 0, err
	}

	bandwidth, isStereo, err := d.decoder.Decode(packet, d.output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "OpusDecoder.Decode",
			"data_size": len(packet),
			"error":     err.Error(),
		}).Debug("Opus decode failed")
		return nil, 0, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	channels := uint8(1)
	if isStereo {
		channels = 2
	}

	rate := uint32(bandwidth.SampleRate()) * silkUpsample
	samples := int(uint64(rate)*uint64(duration)/uint64(time.Second)) * int(channels)
	if samples == 0 || samples > len(d.output)/2 {
		return nil, 0, 0, fmt.Errorf("opus packet of %v at %d Hz does not fit the decode buffer", duration, rate)
	}

	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16(d.output[i*2]) | int16(d.output[i*2+1])<<8
	}

	return pcm, rate, channels, nil
}

// Reset replaces the decoder state, used between calls.
func (d *OpusDecoder) Reset() {
	d.decoder = opus.NewDecoder()
}

// packetDuration returns the audio duration of an Opus packet from its TOC
// byte and, for code 3 packets, the frame count byte (RFC 6716 section 3.1).
func packetDuration(packet []byte) (time.Duration, error) {
	if len(packet) == 0 {
		return 0, errors.New("empty opus packet")
	}

	toc := packet[0]
	config := toc >> 3

	var frame time.Duration
	switch {
	case config < 12: // SILK-only
		frame = [...]time.Duration{10, 20, 40, 60}[config%4] * time.Millisecond
	case config < 16: // Hybrid
		frame = [...]time.Duration{10, 20}[config%2] * time.Millisecond
	default: // CELT-only
		frame = [...]time.Duration{2500, 5000, 10000, 20000}[config%4] * time.Microsecond
	}

	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0, errors.New("opus packet is missing its frame count")
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, errors.New("opus packet has no frames")
		}
	}

	total := frame * time.Duration(frames)
	if total > 120*time.Millisecond {
		return 0, fmt.Errorf("opus packet duration %v exceeds 120ms", total)
	}
	return total, nil
}
