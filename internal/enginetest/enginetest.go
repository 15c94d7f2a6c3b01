// Package enginetest provides an in-memory call engine for tests of code
// built on the coordinator.
package enginetest

import (
	"sync"
	"time"

	"github.com/opd-ai/toxcall/engine"
)

// Binding is a scriptable engine.Binding. Errors set on it are returned by
// the matching operations.
type Binding struct {
	mu sync.Mutex

	CallErr    error
	AnswerErr  error
	ControlErr error

	controls []engine.Control
	killed   bool

	onCall    engine.IncomingCallFunc
	onState   engine.CallStateFunc
	onBitRate engine.BitRateFunc
	onFrame   engine.AudioFrameFunc
}

func (b *Binding) Call(uint32, uint32, uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CallErr
}

func (b *Binding) Answer(uint32, uint32, uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.AnswerErr
}

func (b *Binding) CallControl(_ uint32, control engine.Control) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controls = append(b.controls, control)
	return b.ControlErr
}

func (b *Binding) AudioSendFrame(uint32, []int16, int, uint8, uint32) error { return nil }
func (b *Binding) Iterate()                                                 {}
func (b *Binding) IterationInterval() time.Duration                         { return time.Hour }

func (b *Binding) CallbackCall(cb engine.IncomingCallFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCall = cb
}

func (b *Binding) CallbackCallState(cb engine.CallStateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = cb
}

func (b *Binding) CallbackAudioBitRate(cb engine.BitRateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBitRate = cb
}

func (b *Binding) CallbackAudioReceiveFrame(cb engine.AudioFrameFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = cb
}

func (b *Binding) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed = true
}

// Killed reports whether Kill was called.
func (b *Binding) Killed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed
}

// Controls returns the call controls issued so far.
func (b *Binding) Controls() []engine.Control {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.Control(nil), b.controls...)
}

// Ring simulates an incoming call.
func (b *Binding) Ring(peerID uint32, audio, video bool) {
	b.mu.Lock()
	cb := b.onCall
	b.mu.Unlock()
	if cb != nil {
		cb(peerID, audio, video)
	}
}

// SetState simulates the engine reporting a raw call state.
func (b *Binding) SetState(peerID, state uint32) {
	b.mu.Lock()
	cb := b.onState
	b.mu.Unlock()
	if cb != nil {
		cb(peerID, state)
	}
}

// SuggestBitRate simulates a bit rate suggestion.
func (b *Binding) SuggestBitRate(peerID, bitRate uint32) {
	b.mu.Lock()
	cb := b.onBitRate
	b.mu.Unlock()
	if cb != nil {
		cb(peerID, bitRate)
	}
}

// Receive simulates a decoded audio frame arriving from peerID.
func (b *Binding) Receive(peerID uint32, pcm []int16, channels uint8, rate uint32) {
	b.mu.Lock()
	cb := b.onFrame
	b.mu.Unlock()
	if cb != nil {
		cb(peerID, pcm, len(pcm)/int(channels), channels, rate)
	}
}

// Core is an engine.Core that always hands out the same Binding.
type Core struct {
	Binding *Binding
}

// NewCore returns a ready Core with a fresh Binding.
func NewCore() *Core {
	return &Core{Binding: &Binding{}}
}

func (c *Core) Ready() bool                         { return true }
func (c *Core) NewBinding() (engine.Binding, error) { return c.Binding, nil }
