//go:build !linux || !cgo

package audio

import (
	"context"
)

// Microphone is unavailable without cgo on Linux.
type Microphone struct{ format Format }

// NewMicrophone always fails on this platform.
func NewMicrophone(format Format) (*Microphone, error) {
	return nil, ErrDeviceUnavailable
}

func (m *Microphone) Format() Format                           { return m.format }
func (m *Microphone) Open() error                              { return ErrDeviceUnavailable }
func (m *Microphone) ReadFrame(context.Context) (Frame, error) { return Frame{}, ErrDeviceUnavailable }
func (m *Microphone) Close() error                             { return nil }

// Speaker is unavailable without cgo on Linux.
type Speaker struct{ format Format }

// NewSpeaker always fails on this platform.
func NewSpeaker(format Format) (*Speaker, error) {
	return nil, ErrDeviceUnavailable
}

func (s *Speaker) Format() Format      { return s.format }
func (s *Speaker) Open() error         { return ErrDeviceUnavailable }
func (s *Speaker) Write([]int16) error { return ErrDeviceUnavailable }
func (s *Speaker) Close() error        { return nil }
