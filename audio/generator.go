package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

// ToneSource generates a sine tone paced in real time. With zero volume it
// produces silence, which is how headless peers keep a call alive.
type ToneSource struct {
	format    Format
	frequency float64
	volume    float64

	mu     sync.Mutex
	ticker *time.Ticker
	closed chan struct{}
	phase  float64
}

// NewToneSource creates a tone generator. Volume is clamped to [0, 1].
func NewToneSource(format Format, frequency, volume float64) *ToneSource {
	return &ToneSource{
		format:    format,
		frequency: frequency,
		volume:    math.Max(0, math.Min(1, volume)),
	}
}

// NewSilenceSource creates a source producing silent frames.
func NewSilenceSource(format Format) *ToneSource {
	return NewToneSource(format, 0, 0)
}

func (s *ToneSource) Format() Format { return s.format }

func (s *ToneSource) Open() error {
	if err := s.format.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return nil
	}
	s.ticker = time.NewTicker(s.format.FrameDuration)
	s.closed = make(chan struct{})
	s.phase = 0
	return nil
}

// ReadFrame waits for the next frame period and returns a generated frame.
func (s *ToneSource) ReadFrame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	ticker, closed := s.ticker, s.closed
	s.mu.Unlock()
	if ticker == nil {
		return Frame{}, ErrDeviceClosed
	}

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-closed:
		return Frame{}, ErrDeviceClosed
	case <-ticker.C:
	}

	return s.generate(), nil
}

func (s *ToneSource) generate() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.format.SamplesPerFrame()
	ch := int(s.format.Channels)
	pcm := make([]int16, n*ch)
	step := 2 * math.Pi * s.frequency / float64(s.format.SampleRate)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(s.phase) * s.volume * math.MaxInt16)
		for c := 0; c < ch; c++ {
			pcm[i*ch+c] = v
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}

	return Frame{
		PCM:         pcm,
		SampleCount: n,
		Channels:    s.format.Channels,
		SampleRate:  s.format.SampleRate,
	}
}

func (s *ToneSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return nil
	}
	s.ticker.Stop()
	close(s.closed)
	s.ticker = nil
	return nil
}

// DiscardSink accepts PCM and throws it away, counting what it saw.
type DiscardSink struct {
	format Format

	mu      sync.Mutex
	open    bool
	samples uint64
}

// NewDiscardSink creates a sink that drops all audio.
func NewDiscardSink(format Format) *DiscardSink {
	return &DiscardSink{format: format}
}

func (s *DiscardSink) Format() Format { return s.format }

func (s *DiscardSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *DiscardSink) Write(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrDeviceClosed
	}
	s.samples += uint64(len(pcm))
	return nil
}

func (s *DiscardSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Samples returns the number of samples written so far.
func (s *DiscardSink) Samples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}
