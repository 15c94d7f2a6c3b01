// Package worker implements the three goroutines a call session runs on:
// the engine iterator, audio capture and audio playback.
//
// Each worker owns exactly one goroutine, started by its constructor and
// ended by Close. Commands reach the goroutine through a channel and are
// handled strictly in arrival order, so a Stop queued behind a Start always
// runs after that Start has completed. Stop is a synchronous barrier: when it
// returns the worker has ceased all engine and device activity. Start is
// fire-and-forget, except Iterator.Start which waits for the first iteration.
//
// Worker lifecycles are modelled with looplab/fsm (stopped <-> running).
package worker
