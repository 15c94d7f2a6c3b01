package engine

import (
	"errors"
	"fmt"

	avpkg "github.com/opd-ai/toxcore/av"
)

// Op names the binding operation an error came from.
type Op string

const (
	OpCall      Op = "call"
	OpAnswer    Op = "answer"
	OpControl   Op = "call control"
	OpSendFrame Op = "send audio frame"
)

// ErrBindingDestroyed is returned by bindings used after Kill.
var ErrBindingDestroyed = errors.New("call engine has been destroyed")

var sentinelMessages = []struct {
	err error
	msg string
}{
	{avpkg.ErrFriendNotFound, "friend not found"},
	{avpkg.ErrFriendNotConnected, "friend is not connected"},
	{avpkg.ErrCallAlreadyActive, "already in a call with this friend"},
	{avpkg.ErrInvalidBitRate, "invalid bit rate"},
	{avpkg.ErrNoIncomingCall, "friend is not calling"},
	{avpkg.ErrCodecInitialization, "codec initialization failed"},
	{avpkg.ErrNoActiveCall, "no call with this friend"},
	{avpkg.ErrCallNotPaused, "call is not paused"},
	{avpkg.ErrCallAlreadyPaused, "call is already paused"},
	{avpkg.ErrInvalidTransition, "invalid call state transition"},
	{avpkg.ErrPayloadTypeDisabled, "audio is disabled for this call"},
	{avpkg.ErrRTPFailed, "media transmission failed"},
	{avpkg.ErrManagerNotRunning, "call engine is not running"},
	{ErrBindingDestroyed, "call engine has been destroyed"},
}

// FormatError translates a binding error into the message shown to the
// user. It returns "" for a nil error.
func FormatError(op Op, err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return fmt.Sprintf("%s failed: %s", op, s.msg)
		}
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

// Formatter is the signature of FormatError, allowing callers to substitute
// their own wording.
type Formatter func(op Op, err error) string
