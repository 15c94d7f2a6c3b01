package worker

import (
	"context"
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/sirupsen/logrus"
)

// Capture reads frames from an audio Source and sends them to the peer of
// the active call.
type Capture struct {
	loop
	source  audio.Source
	metrics Metrics
	report  ErrorReporter
	lc      *lifecycle

	binding    engine.Binding
	peerID     uint32
	cancel     context.CancelFunc
	frames     chan audio.Frame
	readerDone chan struct{}
	sendFailed bool
	sent       uint64
}

// NewCapture starts the capture goroutine in the stopped state.
func NewCapture(source audio.Source, metrics Metrics, report ErrorReporter) *Capture {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if report == nil {
		report = func(engine.Op, error) {}
	}
	c := &Capture{
		loop:    newLoop("capture"),
		source:  source,
		metrics: metrics,
		report:  report,
		lc:      newLifecycle("capture"),
	}
	go c.run()
	return c
}

// Start begins capturing for peerID. It does not wait.
func (c *Capture) Start(binding engine.Binding, peerID uint32) {
	c.send(command{kind: cmdStart, binding: binding, peerID: peerID})
}

// Retarget sends the running capture to peerID instead. It does not wait
// and is ignored while stopped.
func (c *Capture) Retarget(peerID uint32) {
	c.send(command{kind: cmdRetarget, peerID: peerID})
}

// Stop ends capture. The source is closed and no AudioSendFrame call is in
// flight when it returns.
func (c *Capture) Stop() {
	c.call(command{kind: cmdStop})
}

// Close stops the goroutine, waiting at most timeout.
func (c *Capture) Close(timeout time.Duration) bool {
	return c.close(timeout)
}

func (c *Capture) run() {
	defer close(c.exited)

	for {
		select {
		case <-c.quit:
			c.stop()
			return
		case cmd := <-c.cmds:
			c.handle(cmd)
		case f, ok := <-c.frames:
			if !ok {
				c.frames = nil
				continue
			}
			// Commands queued before the frame was read apply first. A
			// frame from a call they ended is not sent.
			current := c.frames
			c.handlePending()
			if c.frames != current {
				c.metrics.FrameDropped("stopped")
				continue
			}
			c.sendFrame(f)
		}
	}
}

func (c *Capture) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		c.start(cmd.binding, cmd.peerID)
	case cmdStop:
		c.stop()
	case cmdRetarget:
		c.retarget(cmd.peerID)
	}
	cmd.ack()
}

func (c *Capture) handlePending() {
	for {
		select {
		case cmd := <-c.cmds:
			c.handle(cmd)
		default:
			return
		}
	}
}

func (c *Capture) start(binding engine.Binding, peerID uint32) {
	if !c.lc.fire(eventStart) {
		return
	}
	if err := c.source.Open(); err != nil {
		c.lc.fire(eventStop)
		c.report(OpCapture, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.binding = binding
	c.peerID = peerID
	c.cancel = cancel
	c.frames = make(chan audio.Frame, 4)
	c.readerDone = make(chan struct{})
	c.sendFailed = false
	c.sent = 0
	c.metrics.WorkerStarted(c.name)

	go c.read(ctx, c.frames, c.readerDone)

	logrus.WithFields(logrus.Fields{
		"function": "Capture.Start",
		"peer_id":  peerID,
		"format":   c.source.Format(),
	}).Debug("Audio capture started")
}

func (c *Capture) retarget(peerID uint32) {
	if !c.lc.running() || peerID == c.peerID {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Capture.Retarget",
		"from":     c.peerID,
		"to":       peerID,
	}).Debug("Audio capture retargeted")
	c.peerID = peerID
	c.sendFailed = false
}

// read pulls frames from the source until ctx is cancelled or the source
// fails.
func (c *Capture) read(ctx context.Context, frames chan<- audio.Frame, done chan<- struct{}) {
	defer close(done)
	defer close(frames)

	for {
		f, err := c.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.report(OpCapture, err)
			}
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Capture) sendFrame(f audio.Frame) {
	if !c.lc.running() {
		c.metrics.FrameDropped("stopped")
		return
	}

	channels := f.Channels
	if channels == 0 {
		channels = 1
	}
	sampleCount := f.SampleCount
	if sampleCount == 0 {
		sampleCount = len(f.PCM) / int(channels)
	}

	if err := c.binding.AudioSendFrame(c.peerID, f.PCM, sampleCount, channels, f.SampleRate); err != nil {
		c.metrics.FrameDropped("send_failed")
		if !c.sendFailed {
			c.sendFailed = true
			c.report(engine.OpSendFrame, err)
		}
		return
	}
	c.sent++
	c.metrics.FrameSent()
}

func (c *Capture) stop() {
	if !c.lc.fire(eventStop) {
		return
	}

	c.cancel()
	if err := c.source.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Capture.Stop",
			"error":    err.Error(),
		}).Warn("Failed to close audio source")
	}
	<-c.readerDone
	if c.frames != nil {
		for range c.frames {
			c.metrics.FrameDropped("stopped")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Capture.Stop",
		"peer_id":  c.peerID,
		"sent":     c.sent,
	}).Debug("Audio capture stopped")

	c.frames = nil
	c.readerDone = nil
	c.cancel = nil
	c.binding = nil
	c.metrics.WorkerStopped(c.name)
}
