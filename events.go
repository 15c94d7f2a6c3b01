package toxcall

import (
	"sync"
	"time"

	"github.com/opd-ai/toxcall/internal/mailbox"
	"github.com/sirupsen/logrus"
)

// EventKind identifies a coordinator notification.
type EventKind string

const (
	EventIncomingCall           EventKind = "incoming_call"
	EventOutgoingCall           EventKind = "outgoing_call"
	EventCallStateChanged       EventKind = "call_state_changed"
	EventGlobalCallStateChanged EventKind = "global_call_state_changed"
	EventCalledBusy             EventKind = "called_busy"
	EventError                  EventKind = "error"
	EventAudioBitRateChanged    EventKind = "audio_bit_rate_changed"
)

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind `json:"kind"`
	PeerID  uint32    `json:"peer_id"`
	State   CallState `json:"state"`
	Local   bool      `json:"local,omitempty"`
	Audio   bool      `json:"audio,omitempty"`
	Video   bool      `json:"video,omitempty"`
	BitRate uint32    `json:"bit_rate,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// handlers holds the registered callbacks. Registration may happen at any
// time from any goroutine.
type handlers struct {
	mu sync.RWMutex

	incomingCall  func(peerID uint32, audio, video bool)
	outgoingCall  func(peerID uint32)
	callState     func(peerID uint32, state CallState, local bool)
	globalState   func(state CallState)
	calledBusy    func()
	errorOccurred func(message string)
	bitRate       func(peerID, bitRate uint32)
	observers     []func(Event)
}

// OnIncomingCall sets the handler for calls from peers. Video is always
// reported false once it has been suppressed.
func (c *Coordinator) OnIncomingCall(fn func(peerID uint32, audio, video bool)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.incomingCall = fn
}

// OnOutgoingCall sets the handler for calls placed with Call.
func (c *Coordinator) OnOutgoingCall(fn func(peerID uint32)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.outgoingCall = fn
}

// OnCallStateChanged sets the handler for per-peer state changes. Local is
// true when the change was caused by this side.
func (c *Coordinator) OnCallStateChanged(fn func(peerID uint32, state CallState, local bool)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.callState = fn
}

// OnGlobalCallStateChanged sets the handler for global state changes.
func (c *Coordinator) OnGlobalCallStateChanged(fn func(state CallState)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.globalState = fn
}

// OnCalledBusy sets the handler invoked when a peer we called hung up
// without answering.
func (c *Coordinator) OnCalledBusy(fn func()) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.calledBusy = fn
}

// OnError sets the handler for human-readable error messages.
func (c *Coordinator) OnError(fn func(message string)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.errorOccurred = fn
}

// OnAudioBitRateChanged sets the handler for bit rate suggestions from the
// engine.
func (c *Coordinator) OnAudioBitRateChanged(fn func(peerID, bitRate uint32)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.bitRate = fn
}

// OnEvent adds an observer receiving every event after the typed handler
// for it has run.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.observers = append(c.handlers.observers, fn)
}

// emit queues an event for the dispatcher. Only called on the coordination
// goroutine, which keeps events in transition order.
func (c *Coordinator) emit(ev Event) {
	ev.Time = time.Now()
	if !c.events.Post(ev) {
		logrus.WithFields(logrus.Fields{
			"function": "Coordinator.emit",
			"kind":     ev.Kind,
		}).Warn("Event dropped after close")
	}
}

// dispatch delivers queued events until the mailbox is closed and drained.
func dispatch(events *mailbox.Mailbox[Event], h *handlers, done chan<- struct{}) {
	defer close(done)

	for {
		ev, ok := events.Next()
		if !ok {
			return
		}
		h.deliver(ev)
	}
}

func (h *handlers) deliver(ev Event) {
	h.mu.RLock()
	incomingCall := h.incomingCall
	outgoingCall := h.outgoingCall
	callState := h.callState
	globalState := h.globalState
	calledBusy := h.calledBusy
	errorOccurred := h.errorOccurred
	bitRate := h.bitRate
	observers := h.observers
	h.mu.RUnlock()

	switch ev.Kind {
	case EventIncomingCall:
		if incomingCall != nil {
			incomingCall(ev.PeerID, ev.Audio, ev.Video)
		}
	case EventOutgoingCall:
		if outgoingCall != nil {
			outgoingCall(ev.PeerID)
		}
	case EventCallStateChanged:
		if callState != nil {
			callState(ev.PeerID, ev.State, ev.Local)
		}
	case EventGlobalCallStateChanged:
		if globalState != nil {
			globalState(ev.State)
		}
	case EventCalledBusy:
		if calledBusy != nil {
			calledBusy()
		}
	case EventError:
		if errorOccurred != nil {
			errorOccurred(ev.Message)
		}
	case EventAudioBitRateChanged:
		if bitRate != nil {
			bitRate(ev.PeerID, ev.BitRate)
		}
	}

	for _, fn := range observers {
		fn(ev)
	}
}
