package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captureFormat = audio.Format{SampleRate: 8000, Channels: 1, FrameDuration: 2 * time.Millisecond}

func TestCaptureSendsFramesToPeer(t *testing.T) {
	m := newRecordingMetrics()
	c := NewCapture(audio.NewToneSource(captureFormat, 440, 0.5), m, nil)
	defer c.Close(time.Second)

	b := newFakeBinding(time.Hour)
	c.Start(b, 42)
	require.Eventually(t, func() bool { return len(b.Sent()) >= 3 }, time.Second, time.Millisecond)
	c.Stop()

	for _, f := range b.Sent() {
		assert.Equal(t, uint32(42), f.PeerID)
		assert.Equal(t, 16, f.SampleCount)
		assert.Equal(t, uint8(1), f.Channels)
		assert.Equal(t, uint32(8000), f.SampleRate)
	}
	assert.Equal(t, 1, m.Started("capture"))
	assert.Equal(t, 1, m.Stopped("capture"))
}

// TestCaptureStopIsBarrier verifies nothing is sent once Stop returns and
// the source has been closed.
func TestCaptureStopIsBarrier(t *testing.T) {
	src := audio.NewToneSource(captureFormat, 440, 0.5)
	c := NewCapture(src, nil, nil)
	defer c.Close(time.Second)

	b := newFakeBinding(time.Hour)
	c.Start(b, 1)
	require.Eventually(t, func() bool { return len(b.Sent()) >= 2 }, time.Second, time.Millisecond)

	c.Stop()
	sent := len(b.Sent())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sent, len(b.Sent()))

	_, err := src.ReadFrame(t.Context())
	assert.ErrorIs(t, err, audio.ErrDeviceClosed)
}

func TestCaptureRestartsForNextCall(t *testing.T) {
	c := NewCapture(audio.NewSilenceSource(captureFormat), nil, nil)
	defer c.Close(time.Second)

	first := newFakeBinding(time.Hour)
	c.Start(first, 1)
	require.Eventually(t, func() bool { return len(first.Sent()) > 0 }, time.Second, time.Millisecond)
	c.Stop()

	second := newFakeBinding(time.Hour)
	c.Start(second, 2)
	require.Eventually(t, func() bool { return len(second.Sent()) > 0 }, time.Second, time.Millisecond)
	c.Stop()

	assert.Equal(t, uint32(2), second.Sent()[0].PeerID)
}

// TestCaptureReportsSendFailureOnce verifies a failing engine produces a
// single report per call rather than one per frame.
func TestCaptureReportsSendFailureOnce(t *testing.T) {
	r := &recordingReporter{}
	m := newRecordingMetrics()
	c := NewCapture(audio.NewSilenceSource(captureFormat), m, r.Report)
	defer c.Close(time.Second)

	b := newFakeBinding(time.Hour)
	b.sendErr = errors.New("friend not in call")
	c.Start(b, 3)
	require.Eventually(t, func() bool { return len(b.Sent()) >= 5 }, time.Second, time.Millisecond)
	c.Stop()

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []engine.Op{engine.OpSendFrame}, r.Ops())
	assert.GreaterOrEqual(t, m.Dropped("send_failed"), 5)
}

func TestCaptureReportsSourceFailure(t *testing.T) {
	r := &recordingReporter{}
	src := &failingSource{format: captureFormat, err: audio.ErrDeviceUnavailable}
	c := NewCapture(src, nil, r.Report)
	defer c.Close(time.Second)

	c.Start(newFakeBinding(time.Hour), 1)
	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []engine.Op{OpCapture}, r.Ops())

	// Stop still completes after the reader has gone away.
	c.Stop()
}

func TestCaptureStopWithoutStart(t *testing.T) {
	m := newRecordingMetrics()
	c := NewCapture(audio.NewSilenceSource(captureFormat), m, nil)
	c.Stop()
	require.True(t, c.Close(time.Second))
	assert.Equal(t, 0, m.Stopped("capture"))
}

func TestCaptureCloseStopsRunningWorker(t *testing.T) {
	src := audio.NewToneSource(captureFormat, 440, 0.5)
	c := NewCapture(src, nil, nil)

	b := newFakeBinding(time.Hour)
	c.Start(b, 1)
	require.Eventually(t, func() bool { return len(b.Sent()) > 0 }, time.Second, time.Millisecond)
	require.True(t, c.Close(time.Second))

	_, err := src.ReadFrame(t.Context())
	assert.ErrorIs(t, err, audio.ErrDeviceClosed)
}

func TestCaptureRetarget(t *testing.T) {
	m := newRecordingMetrics()
	c := NewCapture(audio.NewSilenceSource(captureFormat), m, nil)
	defer c.Close(time.Second)

	b := newFakeBinding(time.Hour)
	c.Start(b, 1)
	require.Eventually(t, func() bool { return len(b.Sent()) > 0 }, time.Second, time.Millisecond)

	c.Retarget(2)
	require.Eventually(t, func() bool {
		sent := b.Sent()
		return sent[len(sent)-1].PeerID == 2
	}, time.Second, time.Millisecond)
	c.Stop()

	// Once frames go to the new peer, none go back to the old one.
	retargeted := false
	for _, f := range b.Sent() {
		if f.PeerID == 2 {
			retargeted = true
		} else {
			assert.False(t, retargeted, "frame sent to peer %d after retarget", f.PeerID)
		}
	}
	assert.Equal(t, 1, m.Started("capture"), "retargeting keeps the source open")
}

func TestCaptureRetargetIgnoredWhileStopped(t *testing.T) {
	m := newRecordingMetrics()
	c := NewCapture(audio.NewSilenceSource(captureFormat), m, nil)
	defer c.Close(time.Second)

	c.Retarget(2)
	c.Stop()
	assert.Zero(t, m.Started("capture"))
}
