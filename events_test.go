package toxcall

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/internal/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSON(t *testing.T) {
	ev := Event{
		Kind:   EventCallStateChanged,
		PeerID: 7,
		State:  CallStateRinging,
		Local:  true,
		Time:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "call_state_changed",
		"peer_id": 7,
		"state": "ringing",
		"local": true,
		"time": "2024-01-02T03:04:05Z"
	}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev.State, back.State)
	assert.True(t, back.Time.Equal(ev.Time))
}

// TestDeliverTypedHandlerBeforeObservers verifies the typed handler for an
// event runs before the generic observers, in registration order.
func TestDeliverTypedHandlerBeforeObservers(t *testing.T) {
	var order []string
	h := &handlers{
		calledBusy: func() { order = append(order, "typed") },
		observers: []func(Event){
			func(Event) { order = append(order, "first") },
			func(Event) { order = append(order, "second") },
		},
	}

	h.deliver(Event{Kind: EventCalledBusy})

	assert.Equal(t, []string{"typed", "first", "second"}, order)
}

func TestDeliverWithoutHandlers(t *testing.T) {
	h := &handlers{}
	assert.NotPanics(t, func() {
		h.deliver(Event{Kind: EventIncomingCall})
		h.deliver(Event{Kind: EventError, Message: "boom"})
	})
}

func TestDispatchDrainsQueueInOrder(t *testing.T) {
	events := mailbox.New[Event]()
	var got []uint32
	h := &handlers{
		outgoingCall: func(peerID uint32) { got = append(got, peerID) },
	}

	for id := uint32(1); id <= 5; id++ {
		events.Post(Event{Kind: EventOutgoingCall, PeerID: id})
	}
	events.Close()

	done := make(chan struct{})
	dispatch(events, h, done)

	select {
	case <-done:
	default:
		t.Fatal("dispatch returned without closing done")
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, got)
}
