package worker

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/opd-ai/toxcall/engine"
	"github.com/sirupsen/logrus"
)

// Ops used when workers report their own failures.
const (
	OpCapture  engine.Op = "capture audio"
	OpPlayback engine.Op = "play audio"
)

// DefaultQuitTimeout bounds how long Close waits for a worker goroutine.
const DefaultQuitTimeout = 2 * time.Second

// ErrorReporter receives failures a worker hits on its own goroutine.
// It must not block.
type ErrorReporter func(op engine.Op, err error)

// Metrics receives worker activity counters.
type Metrics interface {
	WorkerStarted(worker string)
	WorkerStopped(worker string)
	FrameSent()
	FramePlayed()
	FrameDropped(reason string)
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) WorkerStarted(string) {}
func (NopMetrics) WorkerStopped(string) {}
func (NopMetrics) FrameSent()           {}
func (NopMetrics) FramePlayed()         {}
func (NopMetrics) FrameDropped(string)  {}

const (
	stateStopped = "stopped"
	stateRunning = "running"

	eventStart = "start"
	eventStop  = "stop"
)

// lifecycle tracks whether a worker is running. It is only touched from the
// worker's own goroutine.
type lifecycle struct {
	fsm *fsm.FSM
}

func newLifecycle(name string) *lifecycle {
	return &lifecycle{
		fsm: fsm.NewFSM(
			stateStopped,
			fsm.Events{
				{Name: eventStart, Src: []string{stateStopped}, Dst: stateRunning},
				{Name: eventStop, Src: []string{stateRunning}, Dst: stateStopped},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					logrus.WithFields(logrus.Fields{
						"function": "lifecycle.enter_state",
						"worker":   name,
						"from":     e.Src,
						"to":       e.Dst,
					}).Debug("Worker state changed")
				},
			},
		),
	}
}

// fire applies event and reports whether the state actually changed.
// Starting a running worker or stopping a stopped one is a no-op.
func (l *lifecycle) fire(event string) bool {
	return l.fsm.Event(context.Background(), event) == nil
}

func (l *lifecycle) running() bool {
	return l.fsm.Is(stateRunning)
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdInterval
	cmdPrepare
	cmdFinalize
	cmdRetarget
)

type command struct {
	kind     commandKind
	binding  engine.Binding
	peerID   uint32
	interval time.Duration
	done     chan struct{}
}

func (c command) ack() {
	if c.done != nil {
		close(c.done)
	}
}

// loop is the command plumbing shared by all workers.
type loop struct {
	name      string
	cmds      chan command
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

func newLoop(name string) loop {
	return loop{
		name:   name,
		cmds:   make(chan command, 16),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// send queues a command without waiting for it to run. It returns false if
// the worker goroutine has already exited.
func (l *loop) send(c command) bool {
	select {
	case l.cmds <- c:
		return true
	case <-l.exited:
		return false
	}
}

// call queues a command and waits until the worker has handled it.
func (l *loop) call(c command) {
	c.done = make(chan struct{})
	if !l.send(c) {
		return
	}
	select {
	case <-c.done:
	case <-l.exited:
	}
}

// close ends the worker goroutine and waits up to timeout for it.
func (l *loop) close(timeout time.Duration) bool {
	l.closeOnce.Do(func() { close(l.quit) })

	select {
	case <-l.exited:
		return true
	case <-time.After(timeout):
		logrus.WithFields(logrus.Fields{
			"function": "loop.close",
			"worker":   l.name,
			"timeout":  timeout,
		}).Warn("Worker misbehaving on quit")
		return false
	}
}
