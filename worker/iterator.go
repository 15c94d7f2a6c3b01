package worker

import (
	"time"

	"github.com/opd-ai/toxcall/engine"
	"github.com/sirupsen/logrus"
)

const fallbackInterval = 20 * time.Millisecond

// Iterator drives Binding.Iterate on its own goroutine. While running it
// iterates at the binding's suggested interval, or at the override when one
// is set.
type Iterator struct {
	loop
	metrics Metrics
	lc      *lifecycle

	binding  engine.Binding
	override time.Duration
	timer    *time.Timer
}

// NewIterator starts the iterator goroutine in the stopped state.
func NewIterator(metrics Metrics) *Iterator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	it := &Iterator{
		loop:    newLoop("iterator"),
		metrics: metrics,
		lc:      newLifecycle("iterator"),
	}
	go it.run()
	return it
}

// Start begins iterating binding. It returns once the first iteration has
// completed.
func (it *Iterator) Start(binding engine.Binding) {
	it.call(command{kind: cmdStart, binding: binding})
}

// Stop halts iteration. No Iterate call is in flight when it returns.
func (it *Iterator) Stop() {
	it.call(command{kind: cmdStop})
}

// SetIntervalOverride replaces the binding's suggested interval with d.
// A non-positive d restores the suggested interval. Takes effect
// immediately, also while stopped.
func (it *Iterator) SetIntervalOverride(d time.Duration) {
	if d < 0 {
		d = 0
	}
	it.send(command{kind: cmdInterval, interval: d})
}

// Close stops the goroutine, waiting at most timeout.
func (it *Iterator) Close(timeout time.Duration) bool {
	return it.close(timeout)
}

func (it *Iterator) run() {
	defer close(it.exited)

	it.timer = time.NewTimer(time.Hour)
	it.timer.Stop()
	defer it.timer.Stop()

	for {
		var tick <-chan time.Time
		if it.lc.running() {
			tick = it.timer.C
		}

		select {
		case <-it.quit:
			it.stop()
			return
		case cmd := <-it.cmds:
			it.handle(cmd)
			cmd.ack()
		case <-tick:
			it.binding.Iterate()
			it.timer.Reset(it.interval())
		}
	}
}

func (it *Iterator) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		if !it.lc.fire(eventStart) {
			return
		}
		it.binding = cmd.binding
		it.metrics.WorkerStarted(it.name)
		it.binding.Iterate()
		it.timer.Reset(it.interval())
		logrus.WithFields(logrus.Fields{
			"function": "Iterator.Start",
			"interval": it.interval(),
		}).Debug("Iteration started")
	case cmdStop:
		it.stop()
	case cmdInterval:
		it.override = cmd.interval
		if it.lc.running() {
			it.timer.Reset(it.interval())
		}
		logrus.WithFields(logrus.Fields{
			"function": "Iterator.SetIntervalOverride",
			"override": cmd.interval,
		}).Debug("Iteration interval changed")
	}
}

func (it *Iterator) stop() {
	if !it.lc.fire(eventStop) {
		return
	}
	it.timer.Stop()
	it.binding = nil
	it.metrics.WorkerStopped(it.name)
}

func (it *Iterator) interval() time.Duration {
	if it.override > 0 {
		return it.override
	}
	if it.binding != nil {
		if d := it.binding.IterationInterval(); d > 0 {
			return d
		}
	}
	return fallbackInterval
}
