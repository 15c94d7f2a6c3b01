package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/toxcore"
	avpkg "github.com/opd-ai/toxcore/av"
	"github.com/sirupsen/logrus"
)

// ToxCore adapts a running toxcore-go instance to Core.
type ToxCore struct {
	tox *toxcore.Tox
}

// NewToxCore wraps a Tox instance. The caller keeps ownership of tox and must
// kill it only after the coordinator has shut the binding down.
func NewToxCore(tox *toxcore.Tox) *ToxCore {
	return &ToxCore{tox: tox}
}

// Ready reports whether the Tox instance exists and is still running.
func (c *ToxCore) Ready() bool {
	return c != nil && c.tox != nil && c.tox.IsRunning()
}

// NewBinding creates a ToxAV instance on top of the Tox instance.
func (c *ToxCore) NewBinding() (Binding, error) {
	if !c.Ready() {
		return nil, errors.New("tox instance is not running")
	}

	av, err := toxcore.NewToxAV(c.tox)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ToxCore.NewBinding",
			"error":    err.Error(),
		}).Error("Failed to create ToxAV instance")
		return nil, fmt.Errorf("create toxav: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":           "ToxCore.NewBinding",
		"iteration_interval": av.IterationInterval(),
	}).Info("ToxAV binding created")

	return &toxAVBinding{av: av}, nil
}

// toxAVBinding forwards Binding calls to a *toxcore.ToxAV.
type toxAVBinding struct {
	av *toxcore.ToxAV
}

func (b *toxAVBinding) Call(peerID, audioBitRate, videoBitRate uint32) error {
	return b.av.Call(peerID, audioBitRate, videoBitRate)
}

func (b *toxAVBinding) Answer(peerID, audioBitRate, videoBitRate uint32) error {
	return b.av.Answer(peerID, audioBitRate, videoBitRate)
}

func (b *toxAVBinding) CallControl(peerID uint32, control Control) error {
	return b.av.CallControl(peerID, avpkg.CallControl(control))
}

func (b *toxAVBinding) AudioSendFrame(peerID uint32, pcm []int16, sampleCount int, channels uint8, samplingRate uint32) error {
	return b.av.AudioSendFrame(peerID, pcm, sampleCount, channels, samplingRate)
}

func (b *toxAVBinding) Iterate() {
	b.av.Iterate()
}

func (b *toxAVBinding) IterationInterval() time.Duration {
	return b.av.IterationInterval()
}

func (b *toxAVBinding) CallbackCall(cb IncomingCallFunc) {
	b.av.CallbackCall(cb)
}

func (b *toxAVBinding) CallbackCallState(cb CallStateFunc) {
	if cb == nil {
		b.av.CallbackCallState(nil)
		return
	}
	b.av.CallbackCallState(func(friendNumber uint32, state avpkg.CallState) {
		cb(friendNumber, uint32(state))
	})
}

func (b *toxAVBinding) CallbackAudioBitRate(cb BitRateFunc) {
	b.av.CallbackAudioBitRate(cb)
}

func (b *toxAVBinding) CallbackAudioReceiveFrame(cb AudioFrameFunc) {
	b.av.CallbackAudioReceiveFrame(cb)
}

func (b *toxAVBinding) Kill() {
	b.av.Kill()
}
