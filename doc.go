// Package toxcall coordinates audio calls on top of a toxcore-go call engine.
//
// A [Coordinator] tracks the call state of every peer and aggregates it into
// one global state: the most urgent of None, Ringing and Active across all
// peers. It owns three workers, each on its own goroutine:
//
//   - an iterator that drives the engine's periodic processing,
//   - a capture worker that reads the microphone and sends frames to the peer,
//   - a playback worker that renders frames received from the peer.
//
// Capture and playback start when the global state becomes Active and stop,
// synchronously, when it leaves Active. The iterator runs from Initialize to
// Shutdown and only varies its polling interval.
//
// # Getting Started
//
//	tox, err := toxcore.New(toxcore.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tox.Kill()
//
//	calls := toxcall.New(toxcall.Options{})
//	defer calls.Close()
//
//	calls.OnIncomingCall(func(peerID uint32, audio, video bool) {
//	    if err := calls.Answer(peerID, 48); err != nil {
//	        log.Println(err)
//	    }
//	})
//	calls.OnCalledBusy(func() {
//	    fmt.Println("peer did not answer")
//	})
//
//	calls.Initialize(engine.NewToxCore(tox))
//
// # Events
//
// Notifications are delivered in the order the underlying transitions
// happened, on a dedicated goroutine, so handlers may call back into the
// Coordinator. Handlers must not call Close.
//
// # Errors
//
// Misuse such as calling before Initialize or initializing twice panics with
// a [*ContractViolationError]. Failures reported by the engine are returned as
// [*OperationError] and also emitted as an error event.
package toxcall
