package engine

import "time"

// Control is a call control command understood by the engine.
// The values follow the ToxAV call control enumeration.
type Control uint32

const (
	// ControlResume resumes a paused call.
	ControlResume Control = iota
	// ControlPause pauses an active call.
	ControlPause
	// ControlCancel rejects an incoming call or ends an active one.
	ControlCancel
	// ControlMuteAudio stops sending audio.
	ControlMuteAudio
	// ControlUnmuteAudio resumes sending audio.
	ControlUnmuteAudio
	// ControlHideVideo stops receiving video from the peer.
	ControlHideVideo
	// ControlShowVideo resumes receiving video from the peer.
	ControlShowVideo
)

// String returns the control name used in logs and error messages.
func (c Control) String() string {
	switch c {
	case ControlResume:
		return "resume"
	case ControlPause:
		return "pause"
	case ControlCancel:
		return "cancel"
	case ControlMuteAudio:
		return "mute_audio"
	case ControlUnmuteAudio:
		return "unmute_audio"
	case ControlHideVideo:
		return "hide_video"
	case ControlShowVideo:
		return "show_video"
	default:
		return "unknown"
	}
}

// Raw engine call states as reported to CallStateFunc. They match the ToxAV
// friend call state values; anything above StateFinished means media flows.
const (
	StateNone     uint32 = 0
	StateError    uint32 = 1
	StateFinished uint32 = 2
)

// IncomingCallFunc is invoked when a peer calls us.
type IncomingCallFunc func(peerID uint32, audioEnabled, videoEnabled bool)

// CallStateFunc is invoked when the engine reports a new raw call state.
type CallStateFunc func(peerID uint32, state uint32)

// BitRateFunc is invoked when the engine suggests a new audio bit rate.
type BitRateFunc func(peerID uint32, bitRate uint32)

// AudioFrameFunc is invoked with decoded PCM received from a peer. It runs
// on whichever goroutine calls Iterate.
type AudioFrameFunc func(peerID uint32, pcm []int16, sampleCount int, channels uint8, samplingRate uint32)

// Binding is the native call engine driven by the coordinator.
//
// Call-control methods are only invoked from the coordination goroutine.
// Iterate is only invoked from the iteration worker and AudioSendFrame only
// from the capture worker.
type Binding interface {
	Call(peerID, audioBitRate, videoBitRate uint32) error
	Answer(peerID, audioBitRate, videoBitRate uint32) error
	CallControl(peerID uint32, control Control) error
	AudioSendFrame(peerID uint32, pcm []int16, sampleCount int, channels uint8, samplingRate uint32) error

	Iterate()
	IterationInterval() time.Duration

	CallbackCall(cb IncomingCallFunc)
	CallbackCallState(cb CallStateFunc)
	CallbackAudioBitRate(cb BitRateFunc)
	CallbackAudioReceiveFrame(cb AudioFrameFunc)

	// Kill releases the binding. It is called exactly once.
	Kill()
}

// Core is the protocol engine a Binding is created from.
type Core interface {
	// Ready reports whether the protocol engine is up and able to host calls.
	Ready() bool
	// NewBinding creates the call engine binding on top of the protocol engine.
	NewBinding() (Binding, error)
}
