//go:build linux && cgo

package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/pion/mediadevices"
	audioio "github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/sirupsen/logrus"

	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

// Microphone captures from the default input device via pion/mediadevices.
type Microphone struct {
	format Format

	mu      sync.Mutex
	tracks  []mediadevices.Track
	reader  audioio.Reader
	pending []int16
}

// NewMicrophone creates a microphone source. The device is only opened by
// Open, so constructing one never touches hardware.
func NewMicrophone(format Format) (*Microphone, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Microphone{format: format}, nil
}

func (m *Microphone) Format() Format { return m.format }

func (m *Microphone) Open() error {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(int(m.format.SampleRate))
			c.ChannelCount = prop.Int(int(m.format.Channels))
		},
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Microphone.Open",
			"error":    err.Error(),
		}).Warn("GetUserMedia failed")
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no audio track", ErrDeviceUnavailable)
	}
	track, ok := tracks[0].(*mediadevices.AudioTrack)
	if !ok {
		for _, t := range tracks {
			t.Close()
		}
		return fmt.Errorf("%w: unexpected track type %T", ErrDeviceUnavailable, tracks[0])
	}

	m.mu.Lock()
	m.tracks = tracks
	m.reader = track.NewReader(false)
	m.pending = m.pending[:0]
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Microphone.Open",
		"track_id":    track.ID(),
		"sample_rate": m.format.SampleRate,
		"channels":    m.format.Channels,
	}).Info("Microphone opened")

	return nil
}

// ReadFrame accumulates device chunks until one frame worth of samples is
// available. The device read itself is not interruptible; Close ends it.
func (m *Microphone) ReadFrame(ctx context.Context) (Frame, error) {
	want := m.format.SamplesPerFrame() * int(m.format.Channels)

	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		m.mu.Lock()
		reader := m.reader
		if len(m.pending) >= want {
			pcm := make([]int16, want)
			copy(pcm, m.pending[:want])
			m.pending = append(m.pending[:0], m.pending[want:]...)
			m.mu.Unlock()
			return Frame{
				PCM:         pcm,
				SampleCount: m.format.SamplesPerFrame(),
				Channels:    m.format.Channels,
				SampleRate:  m.format.SampleRate,
			}, nil
		}
		m.mu.Unlock()

		if reader == nil {
			return Frame{}, ErrDeviceClosed
		}

		chunk, release, err := reader.Read()
		if err != nil {
			return Frame{}, fmt.Errorf("microphone read: %w", err)
		}
		samples, err := chunkSamples(chunk)
		release()
		if err != nil {
			return Frame{}, err
		}

		m.mu.Lock()
		m.pending = append(m.pending, samples...)
		m.mu.Unlock()
	}
}

func chunkSamples(chunk wave.Audio) ([]int16, error) {
	switch c := chunk.(type) {
	case *wave.Int16Interleaved:
		out := make([]int16, len(c.Data))
		copy(out, c.Data)
		return out, nil
	case *wave.Float32Interleaved:
		out := make([]int16, len(c.Data))
		for i, v := range c.Data {
			out[i] = int16(math.Max(-1, math.Min(1, float64(v))) * math.MaxInt16)
		}
		return out, nil
	default:
		return nil, errors.New("unsupported microphone sample format")
	}
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	tracks := m.tracks
	m.tracks = nil
	m.reader = nil
	m.mu.Unlock()

	var errs []error
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
