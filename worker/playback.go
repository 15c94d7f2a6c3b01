package worker

import (
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/sirupsen/logrus"
)

// DefaultPlaybackQueue is the number of received frames buffered ahead of
// the sink before new frames are dropped.
const DefaultPlaybackQueue = 32

// PlaybackOptions tunes the playback worker.
type PlaybackOptions struct {
	// QueueSize bounds the frames waiting to be played.
	QueueSize int
	// Gain is applied to every played sample. Zero means unity.
	Gain float64
}

// Playback renders frames received from the peer to an audio Sink.
type Playback struct {
	loop
	sink    audio.Sink
	frames  chan audio.Frame
	gain    float64
	metrics Metrics
	report  ErrorReporter
	lc      *lifecycle

	peerID      uint32
	resampler   *audio.Resampler
	failed      bool
	played      uint64
	dropped     uint64
	clipped     uint64
	callStarted time.Time
}

// NewPlayback starts the playback goroutine in the stopped state.
func NewPlayback(sink audio.Sink, opts PlaybackOptions, metrics Metrics, report ErrorReporter) *Playback {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultPlaybackQueue
	}
	if opts.Gain <= 0 {
		opts.Gain = 1
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if report == nil {
		report = func(engine.Op, error) {}
	}
	p := &Playback{
		loop:    newLoop("playback"),
		sink:    sink,
		frames:  make(chan audio.Frame, opts.QueueSize),
		gain:    opts.Gain,
		metrics: metrics,
		report:  report,
		lc:      newLifecycle("playback"),
	}
	go p.run()
	return p
}

// PrepareCall resets per-call playback state. It does not wait.
func (p *Playback) PrepareCall() {
	p.send(command{kind: cmdPrepare})
}

// FinalizeCall discards queued frames and logs the call's playback totals.
// It does not wait.
func (p *Playback) FinalizeCall() {
	p.send(command{kind: cmdFinalize})
}

// Start opens the sink and begins playing frames from peerID. It does not
// wait.
func (p *Playback) Start(peerID uint32) {
	p.send(command{kind: cmdStart, peerID: peerID})
}

// Retarget switches the running playback to frames from peerID. It does
// not wait and is ignored while stopped.
func (p *Playback) Retarget(peerID uint32) {
	p.send(command{kind: cmdRetarget, peerID: peerID})
}

// Stop halts playback and closes the sink. No Write is in flight when it
// returns.
func (p *Playback) Stop() {
	p.call(command{kind: cmdStop})
}

// Deliver queues a received frame without blocking. It reports false when
// the frame was dropped because the queue is full.
func (p *Playback) Deliver(f audio.Frame) bool {
	select {
	case p.frames <- f:
		return true
	default:
		p.metrics.FrameDropped("queue_full")
		return false
	}
}

// Close stops the goroutine, waiting at most timeout.
func (p *Playback) Close(timeout time.Duration) bool {
	return p.close(timeout)
}

func (p *Playback) run() {
	defer close(p.exited)

	for {
		select {
		case <-p.quit:
			p.stop()
			return
		case cmd := <-p.cmds:
			p.handle(cmd)
		case f := <-p.frames:
			// A Start issued before the frame arrived must apply first.
			p.handlePending()
			p.play(f)
		}
	}
}

func (p *Playback) handle(cmd command) {
	switch cmd.kind {
	case cmdPrepare:
		p.prepare()
	case cmdFinalize:
		p.finalize()
	case cmdStart:
		p.start(cmd.peerID)
	case cmdStop:
		p.stop()
	case cmdRetarget:
		p.retarget(cmd.peerID)
	}
	cmd.ack()
}

func (p *Playback) handlePending() {
	for {
		select {
		case cmd := <-p.cmds:
			p.handle(cmd)
		default:
			return
		}
	}
}

func (p *Playback) prepare() {
	p.resampler = nil
	p.failed = false
	p.played = 0
	p.dropped = 0
	p.clipped = 0
	p.callStarted = time.Now()
}

func (p *Playback) finalize() {
	p.drain()
	logrus.WithFields(logrus.Fields{
		"function": "Playback.FinalizeCall",
		"peer_id":  p.peerID,
		"played":   p.played,
		"dropped":  p.dropped,
		"clipped":  p.clipped,
		"duration": time.Since(p.callStarted).Round(time.Millisecond),
	}).Info("Playback finished")
}

func (p *Playback) start(peerID uint32) {
	if !p.lc.fire(eventStart) {
		return
	}
	if err := p.sink.Open(); err != nil {
		p.lc.fire(eventStop)
		p.report(OpPlayback, err)
		return
	}
	p.peerID = peerID
	p.metrics.WorkerStarted(p.name)

	logrus.WithFields(logrus.Fields{
		"function": "Playback.Start",
		"peer_id":  peerID,
		"format":   p.sink.Format(),
	}).Debug("Audio playback started")
}

func (p *Playback) retarget(peerID uint32) {
	if !p.lc.running() || peerID == p.peerID {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Playback.Retarget",
		"from":     p.peerID,
		"to":       peerID,
	}).Debug("Audio playback retargeted")
	p.peerID = peerID
	p.resampler = nil
}

func (p *Playback) stop() {
	if !p.lc.fire(eventStop) {
		return
	}
	p.drain()
	if err := p.sink.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Playback.Stop",
			"error":    err.Error(),
		}).Warn("Failed to close audio sink")
	}
	p.metrics.WorkerStopped(p.name)
}

// drain discards every frame currently queued.
func (p *Playback) drain() {
	for {
		select {
		case <-p.frames:
			p.drop("stopped")
		default:
			return
		}
	}
}

func (p *Playback) drop(reason string) {
	p.dropped++
	p.metrics.FrameDropped(reason)
}

func (p *Playback) play(f audio.Frame) {
	if !p.lc.running() || f.PeerID != p.peerID {
		p.drop("stopped")
		return
	}

	pcm, rate, channels := f.PCM, f.SampleRate, f.Channels
	if channels == 0 {
		channels = 1
	}

	format := p.sink.Format()
	pcm = audio.ConvertChannels(pcm, channels, format.Channels)

	if rate != 0 && rate != format.SampleRate {
		if p.resampler == nil || p.resampler.InputRate() != rate {
			r, err := audio.NewResampler(rate, format.SampleRate, int(format.Channels))
			if err != nil {
				p.fail(err)
				p.drop("resample_failed")
				return
			}
			p.resampler = r
		}
		var err error
		if pcm, err = p.resampler.Resample(pcm); err != nil {
			p.fail(err)
			p.drop("resample_failed")
			return
		}
	}

	p.clipped += uint64(audio.ApplyGain(pcm, p.gain))

	if err := p.sink.Write(pcm); err != nil {
		p.fail(err)
		p.drop("write_failed")
		return
	}
	p.played++
	p.metrics.FramePlayed()
}

// fail reports the first playback failure of a call.
func (p *Playback) fail(err error) {
	if p.failed {
		return
	}
	p.failed = true
	p.report(OpPlayback, err)
}
