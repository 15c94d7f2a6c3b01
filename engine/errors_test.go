package engine

import (
	"errors"
	"fmt"
	"testing"

	avpkg "github.com/opd-ai/toxcore/av"
	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		err  error
		want string
	}{
		{"nil error", OpCall, nil, ""},
		{"friend not connected", OpCall, avpkg.ErrFriendNotConnected, "call failed: friend is not connected"},
		{"wrapped sentinel", OpAnswer, fmt.Errorf("answer: %w", avpkg.ErrNoIncomingCall), "answer failed: friend is not calling"},
		{"destroyed binding", OpControl, ErrBindingDestroyed, "call control failed: call engine has been destroyed"},
		{"unknown error", OpSendFrame, errors.New("boom"), "send audio frame failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.op, tt.err))
		})
	}
}

func TestControlValuesMatchToxAV(t *testing.T) {
	assert.Equal(t, uint32(avpkg.CallControlCancel), uint32(ControlCancel))
	assert.Equal(t, uint32(avpkg.CallControlHideVideo), uint32(ControlHideVideo))
	assert.Equal(t, uint32(avpkg.CallControlShowVideo), uint32(ControlShowVideo))
	assert.Equal(t, uint32(avpkg.CallControlMuteAudio), uint32(ControlMuteAudio))
}

func TestRawStatesMatchToxAV(t *testing.T) {
	assert.Equal(t, uint32(avpkg.CallStateNone), StateNone)
	assert.Equal(t, uint32(avpkg.CallStateError), StateError)
	assert.Equal(t, uint32(avpkg.CallStateFinished), StateFinished)
}

func TestControlString(t *testing.T) {
	assert.Equal(t, "cancel", ControlCancel.String())
	assert.Equal(t, "hide_video", ControlHideVideo.String())
	assert.Equal(t, "unknown", Control(99).String())
}

func TestToxCoreNotReady(t *testing.T) {
	var nilCore *ToxCore
	assert.False(t, nilCore.Ready())

	core := NewToxCore(nil)
	assert.False(t, core.Ready())

	b, err := core.NewBinding()
	assert.Error(t, err)
	assert.Nil(t, b)
}
