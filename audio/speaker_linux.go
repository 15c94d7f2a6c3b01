//go:build linux && cgo

package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// maxSpeakerBufferFrames bounds queued playback to half a second of frames.
const maxSpeakerBufferFrames = 25

// Speaker plays PCM on the default output device via malgo.
type Speaker struct {
	format Format

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	buffer  []int16
	maxSize int
}

// NewSpeaker creates a speaker sink. Hardware is opened by Open.
func NewSpeaker(format Format) (*Speaker, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Speaker{
		format:  format,
		maxSize: format.SamplesPerFrame() * int(format.Channels) * maxSpeakerBufferFrames,
	}, nil
}

func (s *Speaker) Format() Format { return s.format }

func (s *Speaker) Open() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(s.format.Channels)
	cfg.SampleRate = s.format.SampleRate
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.fill,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.device = device
	s.buffer = s.buffer[:0]
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Speaker.Open",
		"sample_rate": s.format.SampleRate,
		"channels":    s.format.Channels,
	}).Info("Speaker opened")

	return nil
}

// fill runs on malgo's audio thread.
func (s *Speaker) fill(out, _ []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(out) / 2
	if n > len(s.buffer) {
		n = len(s.buffer)
	}
	for i := 0; i < n; i++ {
		out[2*i] = byte(s.buffer[i])
		out[2*i+1] = byte(uint16(s.buffer[i]) >> 8)
	}
	for i := 2 * n; i < len(out); i++ {
		out[i] = 0
	}
	s.buffer = append(s.buffer[:0], s.buffer[n:]...)
}

func (s *Speaker) Write(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return ErrDeviceClosed
	}
	s.buffer = append(s.buffer, pcm...)
	if over := len(s.buffer) - s.maxSize; over > 0 {
		s.buffer = append(s.buffer[:0], s.buffer[over:]...)
	}
	return nil
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	device, ctx := s.device, s.ctx
	s.device, s.ctx = nil, nil
	s.buffer = s.buffer[:0]
	s.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if ctx != nil {
		err := ctx.Uninit()
		ctx.Free()
		return err
	}
	return nil
}
