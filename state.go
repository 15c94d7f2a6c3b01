package toxcall

import (
	"fmt"

	"github.com/opd-ai/toxcall/engine"
)

// CallState is the call state of one peer, or of the whole session.
// States are ordered None < Ringing < Active.
type CallState int32

const (
	CallStateNone CallState = iota
	CallStateRinging
	CallStateActive
)

// String returns the lower-case state name.
func (s CallState) String() string {
	switch s {
	case CallStateNone:
		return "none"
	case CallStateRinging:
		return "ringing"
	case CallStateActive:
		return "active"
	default:
		return fmt.Sprintf("CallState(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *CallState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*s = CallStateNone
	case "ringing":
		*s = CallStateRinging
	case "active":
		*s = CallStateActive
	default:
		return fmt.Errorf("unknown call state %q", text)
	}
	return nil
}

// stateFromEngine maps a raw engine call state. Anything past Finished means
// media is flowing.
func stateFromEngine(raw uint32) CallState {
	if raw > engine.StateFinished {
		return CallStateActive
	}
	return CallStateNone
}

// peerStates holds the state of every peer that is not None.
type peerStates map[uint32]CallState

func (p peerStates) set(peerID uint32, state CallState) {
	if state == CallStateNone {
		delete(p, peerID)
		return
	}
	p[peerID] = state
}

// max returns the most urgent state across all peers.
func (p peerStates) max() CallState {
	highest := CallStateNone
	for _, s := range p {
		if s > highest {
			highest = s
			if highest == CallStateActive {
				break
			}
		}
	}
	return highest
}

// firstActive returns the lowest peer ID whose state is Active.
func (p peerStates) firstActive() (uint32, bool) {
	var (
		first uint32
		found bool
	)
	for id, s := range p {
		if s == CallStateActive && (!found || id < first) {
			first, found = id, true
		}
	}
	return first, found
}
