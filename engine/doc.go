// Package engine defines the call engine binding driven by the call-session
// coordinator and adapts toxcore-go's ToxAV to it.
//
// The binding is the only place where call-control operations reach the
// network. Everything above it deals in peer ids, call states and PCM frames.
//
// # Adapting toxcore
//
//	tox, err := toxcore.New(toxcore.NewOptions())
//	if err != nil {
//	    return err
//	}
//	core := engine.NewToxCore(tox)
//	coordinator.Initialize(core)
//
// Errors returned by a Binding are turned into human-readable messages by
// [FormatError], which understands the sentinel errors of toxcore's av package.
package engine
