package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when a hardware device cannot be used on
// this platform or build.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// ErrDeviceClosed is returned by reads and writes on a closed device.
var ErrDeviceClosed = errors.New("audio device closed")

// DefaultFormat is 20ms mono frames at 48kHz, the ToxAV default.
var DefaultFormat = Format{
	SampleRate:    48000,
	Channels:      1,
	FrameDuration: 20 * time.Millisecond,
}

// Format describes the PCM layout a device produces or consumes.
type Format struct {
	SampleRate    uint32
	Channels      uint8
	FrameDuration time.Duration
}

// SamplesPerFrame returns the number of samples per channel in one frame.
func (f Format) SamplesPerFrame() int {
	return int(uint64(f.SampleRate) * uint64(f.FrameDuration) / uint64(time.Second))
}

// Validate checks that the format can be used by a device.
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return errors.New("sample rate must be positive")
	}
	if f.Channels < 1 || f.Channels > 2 {
		return errors.New("channels must be 1 or 2")
	}
	if f.FrameDuration <= 0 {
		return errors.New("frame duration must be positive")
	}
	if f.SamplesPerFrame() == 0 {
		return errors.New("frame duration too short for sample rate")
	}
	return nil
}

// Frame is one chunk of audio travelling between the engine and a device.
type Frame struct {
	PeerID      uint32
	PCM         []int16
	SampleCount int
	Channels    uint8
	SampleRate  uint32
}

// Source produces captured audio, one frame per ReadFrame call.
//
// Close may be called while a ReadFrame is blocked and must make it return.
type Source interface {
	Format() Format
	Open() error
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Sink renders PCM in the sink's own Format.
type Sink interface {
	Format() Format
	Open() error
	Write(pcm []int16) error
	Close() error
}
