package toxcall

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/toxcall/engine"
)

type controlCall struct {
	peerID  uint32
	control engine.Control
}

type fakeBinding struct {
	mu         sync.Mutex
	interval   time.Duration
	callErr    error
	answerErr  error
	controlErr error
	calls      []uint32
	answers    []uint32
	controls   []controlCall
	iterations int
	sentTo     []uint32
	killed     int

	onCall    engine.IncomingCallFunc
	onState   engine.CallStateFunc
	onBitRate engine.BitRateFunc
	onFrame   engine.AudioFrameFunc
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{interval: time.Hour}
}

func (b *fakeBinding) Call(peerID, audioBitRate, videoBitRate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callErr != nil {
		return b.callErr
	}
	b.calls = append(b.calls, peerID)
	return nil
}

func (b *fakeBinding) Answer(peerID, audioBitRate, videoBitRate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.answerErr != nil {
		return b.answerErr
	}
	b.answers = append(b.answers, peerID)
	return nil
}

func (b *fakeBinding) CallControl(peerID uint32, control engine.Control) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controls = append(b.controls, controlCall{peerID, control})
	return b.controlErr
}

func (b *fakeBinding) AudioSendFrame(peerID uint32, _ []int16, _ int, _ uint8, _ uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sentTo = append(b.sentTo, peerID)
	return nil
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

func (b *fakeBinding) CallbackCall(cb engine.IncomingCallFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCall = cb
}

func (b *fakeBinding) CallbackCallState(cb engine.CallStateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = cb
}

func (b *fakeBinding) CallbackAudioBitRate(cb engine.BitRateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBitRate = cb
}

func (b *fakeBinding) CallbackAudioReceiveFrame(cb engine.AudioFrameFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = cb
}

func (b *fakeBinding) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed++
}

// incoming simulates the engine reporting a call from peerID.
func (b *fakeBinding) incoming(peerID uint32, audio, video bool) {
	b.mu.Lock()
	cb := b.onCall
	b.mu.Unlock()
	cb(peerID, audio, video)
}

// state simulates the engine reporting a raw call state.
func (b *fakeBinding) state(peerID, raw uint32) {
	b.mu.Lock()
	cb := b.onState
	b.mu.Unlock()
	cb(peerID, raw)
}

func (b *fakeBinding) bitRate(peerID, rate uint32) {
	b.mu.Lock()
	cb := b.onBitRate
	b.mu.Unlock()
	cb(peerID, rate)
}

func (b *fakeBinding) frame(peerID uint32, pcm []int16) {
	b.mu.Lock()
	cb := b.onFrame
	b.mu.Unlock()
	cb(peerID, pcm, len(pcm), 1, 48000)
}

func (b *fakeBinding) Iterations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.iterations
}

func (b *fakeBinding) Killed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed
}

func (b *fakeBinding) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sentTo)
}

// SentTo counts the frames sent to peerID.
func (b *fakeBinding) SentTo(peerID uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, id := range b.sentTo {
		if id == peerID {
			n++
		}
	}
	return n
}

func (b *fakeBinding) Controls() []controlCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]controlCall(nil), b.controls...)
}

// fakeCore hands out fresh fake bindings.
type fakeCore struct {
	mu       sync.Mutex
	ready    bool
	err      error
	bindings []*fakeBinding
}

func newFakeCore() *fakeCore {
	return &fakeCore{ready: true}
}

func (c *fakeCore) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeCore) NewBinding() (engine.Binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	b := newFakeBinding()
	c.bindings = append(c.bindings, b)
	return b, nil
}

func (c *fakeCore) last() *fakeBinding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindings[len(c.bindings)-1]
}

// eventLog records every event a coordinator emits.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func record(c *Coordinator) *eventLog {
	l := &eventLog{}
	c.OnEvent(func(ev Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, ev)
	})
	return l
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) kinds() []EventKind {
	var kinds []EventKind
	for _, ev := range l.all() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range l.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) count(kind EventKind) int {
	return len(l.ofKind(kind))
}

// workerCounts counts worker starts and stops.
type workerCounts struct {
	mu      sync.Mutex
	started map[string]int
	stopped map[string]int
}

func newWorkerCounts() *workerCounts {
	return &workerCounts{started: map[string]int{}, stopped: map[string]int{}}
}

func (m *workerCounts) WorkerStarted(w string) { m.mu.Lock(); m.started[w]++; m.mu.Unlock() }
func (m *workerCounts) WorkerStopped(w string) { m.mu.Lock(); m.stopped[w]++; m.mu.Unlock() }
func (m *workerCounts) FrameSent()             {}
func (m *workerCounts) FramePlayed()           {}
func (m *workerCounts) FrameDropped(string)    {}

func (m *workerCounts) Started(w string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started[w]
}

func (m *workerCounts) Stopped(w string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped[w]
}

// settle waits until every operation queued on c so far has run.
func settle(c *Coordinator) {
	done := make(chan struct{})
	if c.ops.Post(func() { close(done) }) {
		<-done
	}
}

// onLoop runs fn on the coordination goroutine.
func onLoop(c *Coordinator, fn func()) {
	done := make(chan struct{})
	c.ops.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// recoverViolation runs fn and returns the contract violation it panicked
// with, if any.
func recoverViolation(fn func()) (cv *ContractViolationError) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := r.(error)
			errors.As(err, &cv)
		}
	}()
	fn()
	return nil
}
