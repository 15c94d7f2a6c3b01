package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/opus/pkg/oggreader"
	"github.com/sirupsen/logrus"
)

// FileSource plays an Ogg Opus file in a loop, paced in real time. It lets
// a headless node answer with a recorded announcement instead of a
// microphone.
type FileSource struct {
	format Format
	path   string

	mu        sync.Mutex
	ticker    *time.Ticker
	closed    chan struct{}
	file      *os.File
	ogg       *oggreader.OggReader
	decoder   *OpusDecoder
	resampler *Resampler
	packets   [][]byte
	partial   []byte
	pending   []int16
	decoded   bool
}

// NewFileSource creates a source for the Ogg Opus file at path. The file is
// opened by Open.
func NewFileSource(format Format, path string) *FileSource {
	return &FileSource{format: format, path: path}
}

func (s *FileSource) Format() Format { return s.format }

func (s *FileSource) Open() error {
	if err := s.format.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return nil
	}

	s.decoder = NewOpusDecoder()
	if err := s.rewind(); err != nil {
		s.closeFile()
		return err
	}
	s.ticker = time.NewTicker(s.format.FrameDuration)
	s.closed = make(chan struct{})
	return nil
}

// ReadFrame waits for the next frame period and returns the next frame of
// the file, starting over at the end.
func (s *FileSource) ReadFrame(ctx context.Context) (Frame, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return Frame{}, ErrDeviceClosed
	}

	n := s.format.SamplesPerFrame()
	size := n * int(s.format.Channels)
	for len(s.pending) < size {
		if err := s.decodeNext(); err != nil {
			return Frame{}, err
		}
	}

	pcm := make([]int16, size)
	copy(pcm, s.pending)
	s.pending = append(s.pending[:0], s.pending[size:]...)

	return Frame{
		PCM:         pcm,
		SampleCount: n,
		Channels:    s.format.Channels,
		SampleRate:  s.format.SampleRate,
	}, nil
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return nil
	}
	s.ticker.Stop()
	close(s.closed)
	s.ticker = nil
	s.pending = nil
	return s.closeFile()
}

func (s *FileSource) closeFile() error {
	s.ogg = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// rewind positions the reader at the first audio packet of the file.
func (s *FileSource) rewind() error {
	if s.file == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("open audio file: %w", err)
		}
		s.file = f
	} else if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind audio file: %w", err)
	}

	ogg, header, err := oggreader.NewWith(s.file)
	if err != nil {
		return fmt.Errorf("read ogg header of %s: %w", s.path, err)
	}

	s.ogg = ogg
	s.packets = nil
	s.partial = nil
	s.decoded = false

	logrus.WithFields(logrus.Fields{
		"function":    "FileSource.rewind",
		"path":        s.path,
		"channels":    header.Channels,
		"sample_rate": header.SampleRate,
	}).Debug("Audio file positioned at start")
	return nil
}

// decodeNext decodes one packet into pending, converted to the source
// format. Undecodable packets are skipped; a file without a single
// decodable packet is an error.
func (s *FileSource) decodeNext() error {
	packet, err := s.nextPacket()
	if errors.Is(err, io.EOF) {
		if !s.decoded {
			return fmt.Errorf("%s: no decodable opus audio", s.path)
		}
		s.decoder.Reset()
		return s.rewind()
	}
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}

	pcm, rate, channels, err := s.decoder.Decode(packet)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FileSource.decodeNext",
			"path":     s.path,
			"error":    err.Error(),
		}).Debug("Skipping undecodable packet")
		return nil
	}
	s.decoded = true

	pcm = ConvertChannels(pcm, channels, s.format.Channels)
	if rate != s.format.SampleRate {
		if s.resampler == nil || s.resampler.InputRate() != rate {
			if s.resampler, err = NewResampler(rate, s.format.SampleRate, int(s.format.Channels)); err != nil {
				return err
			}
		}
		if pcm, err = s.resampler.Resample(pcm); err != nil {
			return err
		}
	}

	s.pending = append(s.pending, pcm...)
	return nil
}

// nextPacket reassembles the next audio packet from Ogg lacing values.
func (s *FileSource) nextPacket() ([]byte, error) {
	for {
		for len(s.packets) == 0 {
			segments, _, err := s.ogg.ParseNextPage()
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			if err != nil {
				return nil, err
			}
			for _, seg := range segments {
				s.partial = append(s.partial, seg...)
				// A lacing value below 255 ends the packet.
				if len(seg) < 255 {
					s.packets = append(s.packets, s.partial)
					s.partial = nil
				}
			}
		}

		packet := s.packets[0]
		s.packets = s.packets[1:]
		if !bytes.HasPrefix(packet, []byte("OpusTags")) {
			return packet, nil
		}
	}
}
