package toxcall

import (
	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/sirupsen/logrus"
)

// registerCallbacks wires the engine callbacks of b. Control callbacks are
// queued onto the coordination goroutine and dropped there if b has been
// shut down in the meantime. Received audio goes straight to the playback
// queue.
func (c *Coordinator) registerCallbacks(b engine.Binding) {
	b.CallbackCall(func(peerID uint32, audioEnabled, videoEnabled bool) {
		c.ops.Post(func() {
			if c.binding == b {
				c.handleIncomingCall(peerID, audioEnabled, videoEnabled)
			}
		})
	})

	b.CallbackCallState(func(peerID uint32, state uint32) {
		c.ops.Post(func() {
			if c.binding == b {
				c.handleCallState(peerID, state)
			}
		})
	})

	b.CallbackAudioBitRate(func(peerID uint32, bitRate uint32) {
		c.ops.Post(func() {
			if c.binding == b {
				c.emit(Event{Kind: EventAudioBitRateChanged, PeerID: peerID, BitRate: bitRate})
			}
		})
	})

	b.CallbackAudioReceiveFrame(func(peerID uint32, pcm []int16, sampleCount int, channels uint8, samplingRate uint32) {
		c.playback.Deliver(audio.Frame{
			PeerID:      peerID,
			PCM:         append([]int16(nil), pcm...),
			SampleCount: sampleCount,
			Channels:    channels,
			SampleRate:  samplingRate,
		})
	})
}

func (c *Coordinator) handleIncomingCall(peerID uint32, audioEnabled, videoEnabled bool) {
	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.handleIncomingCall",
		"peer_id":  peerID,
		"audio":    audioEnabled,
		"video":    videoEnabled,
	}).Info("Incoming call")

	c.lastIncoming = true

	// Video is not supported; ask the peer to stop sending it.
	if videoEnabled {
		if err := c.binding.CallControl(peerID, engine.ControlHideVideo); err != nil {
			c.reportError(engine.OpControl, peerID, err)
		} else {
			videoEnabled = false
		}
	}

	c.transition(peerID, CallStateRinging, false)
	c.emit(Event{Kind: EventIncomingCall, PeerID: peerID, Audio: audioEnabled, Video: videoEnabled})
}

func (c *Coordinator) handleCallState(peerID uint32, raw uint32) {
	logrus.WithFields(logrus.Fields{
		"function":  "Coordinator.handleCallState",
		"peer_id":   peerID,
		"raw_state": raw,
	}).Debug("Engine call state changed")

	c.transition(peerID, stateFromEngine(raw), false)
}
