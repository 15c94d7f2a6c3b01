package toxcall

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/opd-ai/toxcall/internal/mailbox"
	"github.com/opd-ai/toxcall/worker"
	"github.com/sirupsen/logrus"
)

// DefaultBackgroundInterval is the iteration interval used while the
// application is in the background and no call is ringing or active.
const DefaultBackgroundInterval = 30 * time.Second

// Options configures a Coordinator. The zero value is usable.
type Options struct {
	// Source provides captured audio. Defaults to silence in DefaultFormat.
	Source audio.Source
	// Sink renders received audio. Defaults to a discarding sink.
	Sink audio.Sink
	// BackgroundInterval is the coarse iteration interval applied by
	// SetForegroundActive(false).
	BackgroundInterval time.Duration
	// PlaybackQueueSize bounds the received frames waiting for the sink.
	PlaybackQueueSize int
	// PlaybackGain scales received audio. Zero means unity.
	PlaybackGain float64
	// QuitTimeout bounds how long Close waits for each worker.
	QuitTimeout time.Duration
	// Metrics receives worker counters.
	Metrics worker.Metrics
	// FormatError turns engine errors into user-facing messages.
	FormatError engine.Formatter
}

func (o *Options) setDefaults() {
	if o.Source == nil {
		o.Source = audio.NewSilenceSource(audio.DefaultFormat)
	}
	if o.Sink == nil {
		o.Sink = audio.NewDiscardSink(audio.DefaultFormat)
	}
	if o.BackgroundInterval <= 0 {
		o.BackgroundInterval = DefaultBackgroundInterval
	}
	if o.QuitTimeout <= 0 {
		o.QuitTimeout = worker.DefaultQuitTimeout
	}
	if o.Metrics == nil {
		o.Metrics = worker.NopMetrics{}
	}
	if o.FormatError == nil {
		o.FormatError = engine.FormatError
	}
}

// Coordinator owns the call state of all peers and the workers serving the
// active call.
//
// All state is owned by a single coordination goroutine. Public methods
// queue their work there and wait for it to finish; engine callbacks queue
// work without waiting.
type Coordinator struct {
	opts Options

	ops          *mailbox.Mailbox[func()]
	events       *mailbox.Mailbox[Event]
	loopDone     chan struct{}
	dispatchDone chan struct{}
	handlers     handlers

	iterator *worker.Iterator
	capture  *worker.Capture
	playback *worker.Playback

	// Owned by the coordination goroutine.
	binding      engine.Binding
	peers        peerStates
	global       CallState
	audioPeer    uint32
	lastIncoming bool
	background   bool

	// Published after every operation for the read accessors.
	publishedGlobal   atomic.Int32
	publishedIncoming atomic.Bool
	publishedReady    atomic.Bool

	closeOnce sync.Once
}

// New creates a Coordinator and starts its goroutines. Call Initialize once
// the protocol engine is ready, and Close when done.
func New(opts Options) *Coordinator {
	opts.setDefaults()

	c := &Coordinator{
		opts:         opts,
		ops:          mailbox.New[func()](),
		events:       mailbox.New[Event](),
		loopDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
		peers:        peerStates{},
	}

	c.iterator = worker.NewIterator(opts.Metrics)
	c.capture = worker.NewCapture(opts.Source, opts.Metrics, c.reportWorkerError)
	c.playback = worker.NewPlayback(opts.Sink, worker.PlaybackOptions{
		QueueSize: opts.PlaybackQueueSize,
		Gain:      opts.PlaybackGain,
	}, opts.Metrics, c.reportWorkerError)

	go c.loop()
	go dispatch(c.events, &c.handlers, c.dispatchDone)

	return c
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)

	for {
		fn, ok := c.ops.Next()
		if !ok {
			return
		}
		fn()
		c.publish()
	}
}

func (c *Coordinator) publish() {
	c.publishedGlobal.Store(int32(c.global))
	c.publishedIncoming.Store(c.lastIncoming)
	c.publishedReady.Store(c.binding != nil)
}

// do runs fn on the coordination goroutine and waits for it. A contract
// violation returned by fn is raised as a panic in the caller.
func (c *Coordinator) do(op string, fn func() error) error {
	done := make(chan error, 1)
	if !c.ops.Post(func() {
		err := fn()
		c.publish()
		done <- err
	}) {
		panic(violation(op, "coordinator is closed"))
	}

	err := <-done
	var cv *ContractViolationError
	if errors.As(err, &cv) {
		logrus.WithFields(logrus.Fields{
			"function": "Coordinator." + op,
			"reason":   cv.Reason,
		}).Error("Contract violation")
		panic(cv)
	}
	return err
}

// Initialize creates the engine binding on top of core, registers the
// engine callbacks and starts iteration. It returns after the first
// iteration has run.
//
// Initialize panics if a binding already exists, if core is not ready, or
// if the binding cannot be created.
func (c *Coordinator) Initialize(core engine.Core) {
	c.do("Initialize", func() error {
		if c.binding != nil {
			return violation("Initialize", "called while the call engine is still initialized")
		}
		if core == nil || !core.Ready() {
			return violation("Initialize", "protocol engine not initialized")
		}

		binding, err := core.NewBinding()
		if err != nil {
			return violation("Initialize", "cannot create call engine: "+err.Error())
		}

		c.binding = binding
		c.registerCallbacks(binding)
		c.iterator.Start(binding)
		c.applyInterval()

		logrus.WithFields(logrus.Fields{
			"function": "Coordinator.Initialize",
		}).Info("Call engine initialized")
		return nil
	})
}

// Shutdown stops iteration and any running audio, then destroys the engine
// binding. Peer state is discarded. It is a no-op when there is no binding,
// so it is safe to call more than once and before Close.
func (c *Coordinator) Shutdown() {
	done := make(chan struct{})
	if !c.ops.Post(func() {
		c.shutdown()
		c.publish()
		close(done)
	}) {
		return
	}
	<-done
}

func (c *Coordinator) shutdown() {
	if c.binding == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Coordinator.Shutdown",
		"global_state": c.global,
		"peers":        len(c.peers),
	}).Info("Shutting down call engine")

	c.iterator.Stop()
	if c.global == CallStateActive {
		c.playback.FinalizeCall()
		c.capture.Stop()
		c.playback.Stop()
	}

	c.binding.Kill()
	c.binding = nil

	c.peers = peerStates{}
	c.lastIncoming = false
	if c.global != CallStateNone {
		c.global = CallStateNone
		c.applyInterval()
		c.emit(Event{Kind: EventGlobalCallStateChanged, State: CallStateNone})
	}
}

// Close shuts down the engine binding if needed and ends all goroutines.
// Each worker is given the configured quit timeout. Close is idempotent and
// must not be called from an event handler.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.Shutdown()

		c.iterator.Close(c.opts.QuitTimeout)
		c.capture.Close(c.opts.QuitTimeout)
		c.playback.Close(c.opts.QuitTimeout)

		c.ops.Close()
		<-c.loopDone
		c.events.Close()
		<-c.dispatchDone

		logrus.WithFields(logrus.Fields{
			"function": "Coordinator.Close",
		}).Debug("Coordinator closed")
	})
}

// Call places an outgoing audio call.
//
// Parameters:
//   - peerID: The friend to call
//   - audioBitRate: Audio bit rate in kbit/s
//
// Returns:
//   - error: An *OperationError if the engine rejected the call
func (c *Coordinator) Call(peerID, audioBitRate uint32) error {
	return c.do("Call", func() error {
		if c.binding == nil {
			return violation("Call", "call engine not initialized")
		}
		if err := c.binding.Call(peerID, audioBitRate, 0); err != nil {
			return c.operationFailed(engine.OpCall, peerID, err)
		}

		c.emit(Event{Kind: EventOutgoingCall, PeerID: peerID})
		c.lastIncoming = false
		c.transition(peerID, CallStateRinging, true)
		return nil
	})
}

// Answer accepts a call from peerID.
//
// Parameters:
//   - peerID: The friend who is calling
//   - audioBitRate: Audio bit rate in kbit/s
//
// Returns:
//   - error: An *OperationError if the engine rejected the answer
func (c *Coordinator) Answer(peerID, audioBitRate uint32) error {
	return c.do("Answer", func() error {
		if c.binding == nil {
			return violation("Answer", "call engine not initialized")
		}
		if err := c.binding.Answer(peerID, audioBitRate, 0); err != nil {
			return c.operationFailed(engine.OpAnswer, peerID, err)
		}

		c.transition(peerID, CallStateActive, true)
		return nil
	})
}

// End hangs up or rejects the call with peerID.
func (c *Coordinator) End(peerID uint32) error {
	return c.do("End", func() error {
		if c.binding == nil {
			return violation("End", "call engine not initialized")
		}
		if err := c.binding.CallControl(peerID, engine.ControlCancel); err != nil {
			return c.operationFailed(engine.OpControl, peerID, err)
		}

		c.transition(peerID, CallStateNone, true)
		return nil
	})
}

// SetForegroundActive tells the coordinator whether the application is in
// the foreground. In the background, with no call ringing or active,
// iteration slows to the background interval. Going to the background is
// ignored while a call is ringing or active.
func (c *Coordinator) SetForegroundActive(active bool) {
	c.do("SetForegroundActive", func() error {
		if !active && c.global > CallStateNone {
			logrus.WithFields(logrus.Fields{
				"function":     "Coordinator.SetForegroundActive",
				"global_state": c.global,
			}).Debug("Staying responsive during call")
			return nil
		}

		c.background = !active
		c.applyInterval()
		return nil
	})
}

// GlobalState returns the most urgent call state across all peers.
func (c *Coordinator) GlobalState() CallState {
	return CallState(c.publishedGlobal.Load())
}

// LastCallIncoming reports whether the current or most recent call was
// placed by the peer. It resets when the global state returns to None.
func (c *Coordinator) LastCallIncoming() bool {
	return c.publishedIncoming.Load()
}

// Initialized reports whether an engine binding exists.
func (c *Coordinator) Initialized() bool {
	return c.publishedReady.Load()
}

// applyInterval sets the iteration interval for the current foreground and
// call state. Ringing and active calls always get the engine's own interval.
func (c *Coordinator) applyInterval() {
	if c.background && c.global == CallStateNone {
		c.iterator.SetIntervalOverride(c.opts.BackgroundInterval)
		return
	}
	c.iterator.SetIntervalOverride(0)
}

// transition records the proposed state of a peer and reacts to the
// resulting change of the global state.
func (c *Coordinator) transition(peerID uint32, proposed CallState, local bool) {
	c.peers.set(peerID, proposed)
	next := c.peers.max()

	if next != c.global {
		prev := c.global

		if next == CallStateActive {
			c.startAudio(peerID)
		} else if prev == CallStateActive {
			c.stopAudio()
		}

		if next == CallStateNone {
			if !c.lastIncoming && !local {
				c.emit(Event{Kind: EventCalledBusy, PeerID: peerID})
			}
			c.lastIncoming = false
		}

		c.global = next
		if prev == CallStateNone || next == CallStateNone {
			c.applyInterval()
		}

		logrus.WithFields(logrus.Fields{
			"function": "Coordinator.transition",
			"peer_id":  peerID,
			"from":     prev,
			"to":       next,
			"local":    local,
		}).Debug("Global call state changed")
		c.emit(Event{Kind: EventGlobalCallStateChanged, State: next})
	} else if next == CallStateActive && peerID == c.audioPeer && proposed != CallStateActive {
		c.rebindAudio()
	}

	c.emit(Event{Kind: EventCallStateChanged, PeerID: peerID, State: proposed, Local: local})
}

func (c *Coordinator) startAudio(peerID uint32) {
	c.audioPeer = peerID
	c.playback.PrepareCall()
	c.capture.Start(c.binding, peerID)
	c.playback.Start(peerID)

	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.startAudio",
		"peer_id":  peerID,
	}).Info("Call started")
}

// rebindAudio moves the running audio to another active peer once the peer
// it was started for has left the call.
func (c *Coordinator) rebindAudio() {
	peerID, ok := c.peers.firstActive()
	if !ok {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.rebindAudio",
		"from":     c.audioPeer,
		"to":       peerID,
	}).Info("Audio moved to remaining call")

	c.audioPeer = peerID
	c.capture.Retarget(peerID)
	c.playback.Retarget(peerID)
}

func (c *Coordinator) stopAudio() {
	c.playback.FinalizeCall()
	c.capture.Stop()
	c.playback.Stop()

	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.stopAudio",
	}).Info("Call ended")
}

// operationFailed reports an engine rejection and builds the error returned
// to the caller.
func (c *Coordinator) operationFailed(op engine.Op, peerID uint32, err error) error {
	msg := c.reportError(op, peerID, err)
	return &OperationError{Op: op, PeerID: peerID, Message: msg, Err: err}
}

func (c *Coordinator) reportError(op engine.Op, peerID uint32, err error) string {
	msg := c.opts.FormatError(op, err)
	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.reportError",
		"op":       op,
		"peer_id":  peerID,
		"error":    err.Error(),
	}).Warn("Call operation failed")
	c.emit(Event{Kind: EventError, PeerID: peerID, Message: msg})
	return msg
}

// reportWorkerError is handed to the audio workers. It runs on their
// goroutines and only queues work.
func (c *Coordinator) reportWorkerError(op engine.Op, err error) {
	c.ops.Post(func() { c.reportError(op, 0, err) })
}
