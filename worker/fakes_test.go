package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
)

type fakeBinding struct {
	mu         sync.Mutex
	iterations int
	interval   time.Duration
	sent       []audio.Frame
	sendErr    error
}

func newFakeBinding(interval time.Duration) *fakeBinding {
	return &fakeBinding{interval: interval}
}

func (b *fakeBinding) Call(uint32, uint32, uint32) error               { return nil }
func (b *fakeBinding) Answer(uint32, uint32, uint32) error             { return nil }
func (b *fakeBinding) CallControl(uint32, engine.Control) error        { return nil }
func (b *fakeBinding) CallbackCall(engine.IncomingCallFunc)            {}
func (b *fakeBinding) CallbackCallState(engine.CallStateFunc)          {}
func (b *fakeBinding) CallbackAudioBitRate(engine.BitRateFunc)         {}
func (b *fakeBinding) CallbackAudioReceiveFrame(engine.AudioFrameFunc) {}
func (b *fakeBinding) Kill()                                           {}

func (b *fakeBinding) AudioSendFrame(peerID uint32, pcm []int16, sampleCount int, channels uint8, rate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, audio.Frame{PeerID: peerID, PCM: pcm, SampleCount: sampleCount, Channels: channels, SampleRate: rate})
	return b.sendErr
}

func (b *fakeBinding) Iterate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterations++
}

func (b *fakeBinding) IterationInterval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interval
}

func (b *fakeBinding) Iterations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.iterations
}

func (b *fakeBinding) Sent() []audio.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audio.Frame(nil), b.sent...)
}

// recordingMetrics counts what workers report.
type recordingMetrics struct {
	mu      sync.Mutex
	started map[string]int
	stopped map[string]int
	sent    int
	played  int
	dropped map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		started: map[string]int{},
		stopped: map[string]int{},
		dropped: map[string]int{},
	}
}

func (m *recordingMetrics) WorkerStarted(w string) { m.mu.Lock(); m.started[w]++; m.mu.Unlock() }
func (m *recordingMetrics) WorkerStopped(w string) { m.mu.Lock(); m.stopped[w]++; m.mu.Unlock() }
func (m *recordingMetrics) FrameSent()             { m.mu.Lock(); m.sent++; m.mu.Unlock() }
func (m *recordingMetrics) FramePlayed()           { m.mu.Lock(); m.played++; m.mu.Unlock() }
func (m *recordingMetrics) FrameDropped(r string)  { m.mu.Lock(); m.dropped[r]++; m.mu.Unlock() }

func (m *recordingMetrics) Started(w string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started[w]
}

func (m *recordingMetrics) Stopped(w string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped[w]
}

func (m *recordingMetrics) Dropped(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

// recordingReporter collects reported errors.
type recordingReporter struct {
	mu   sync.Mutex
	ops  []engine.Op
	errs []error
}

func (r *recordingReporter) Report(op engine.Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *recordingReporter) Ops() []engine.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Op(nil), r.ops...)
}

// fakeSink records writes and can be made to block or fail.
type fakeSink struct {
	format audio.Format

	mu      sync.Mutex
	open    bool
	opens   int
	writes  [][]int16
	openErr error
	writing chan struct{}
	release chan struct{}
}

func newFakeSink(format audio.Format) *fakeSink {
	return &fakeSink{format: format}
}

func (s *fakeSink) Format() audio.Format { return s.format }

func (s *fakeSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.open = true
	s.opens++
	return nil
}

func (s *fakeSink) Write(pcm []int16) error {
	s.mu.Lock()
	writing, release := s.writing, s.release
	s.mu.Unlock()
	if writing != nil {
		writing <- struct{}{}
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errors.New("sink closed")
	}
	s.writes = append(s.writes, append([]int16(nil), pcm...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *fakeSink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSink) Writes() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.writes...)
}

// failingSource fails every read after Open.
type failingSource struct {
	format audio.Format
	err    error
}

func (s *failingSource) Format() audio.Format { return s.format }
func (s *failingSource) Open() error          { return nil }
func (s *failingSource) Close() error         { return nil }

func (s *failingSource) ReadFrame(context.Context) (audio.Frame, error) {
	return audio.Frame{}, s.err
}
