// Package signaling defines the abstract message channel a Session
// negotiates over, and a reference in-memory implementation for tests and
// the example binary. The concrete transport (WebSocket, HTTP, ...) is
// deliberately left to the application.
package signaling

import (
	"encoding/json"
	"fmt"
)

// SdpType mirrors the four JSEP session-description types a peer may send.
type SdpType string

const (
	SdpOffer    SdpType = "offer"
	SdpAnswer   SdpType = "answer"
	SdpPranswer SdpType = "pranswer"
	SdpRollback SdpType = "rollback"
)

// Sdp carries a session description of the given type.
type Sdp struct {
	Type SdpType `json:"type"`
	SDP  string  `json:"sdp"`
}

// IceCandidate mirrors the fields of RTCIceCandidateInit needed to add a
// candidate to a remote peer connection.
type IceCandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Kind identifies which variant a Message holds.
type Kind string

const (
	KindSdp          Kind = "sdp"
	KindIceCandidate Kind = "ice_candidate"
	KindBye          Kind = "bye"
)

// Message is the tagged envelope exchanged over a Signaler: exactly one of
// Sdp/IceCandidate is populated when Kind indicates it, and neither is for
// KindBye.
type Message struct {
	Kind         Kind          `json:"type"`
	Sdp          *Sdp          `json:"sdp,omitempty"`
	IceCandidate *IceCandidate `json:"ice_candidate,omitempty"`
}

// NewSdp builds an Sdp message.
func NewSdp(typ SdpType, sdp string) Message {
	return Message{Kind: KindSdp, Sdp: &Sdp{Type: typ, SDP: sdp}}
}

// NewIceCandidate builds an IceCandidate message.
func NewIceCandidate(c IceCandidate) Message {
	return Message{Kind: KindIceCandidate, IceCandidate: &c}
}

// Bye builds the session-termination message.
func Bye() Message {
	return Message{Kind: KindBye}
}

// wireEnvelope is the reference JSON encoding every Message round-trips
// through: {"type": "...", "data": ...}.
type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON implements the reference {"type","data"} envelope encoding.
func (m Message) MarshalJSON() ([]byte, error) {
	env := wireEnvelope{Type: string(m.Kind)}
	var (
		data any
		err  error
	)
	switch m.Kind {
	case KindSdp:
		data = m.Sdp
	case KindIceCandidate:
		data = m.IceCandidate
	case KindBye:
		data = nil
	default:
		return nil, fmt.Errorf("signaling: marshal: unknown message kind %q", m.Kind)
	}
	if data != nil {
		env.Data, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("signaling: marshal data: %w", err)
		}
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements the reference {"type","data"} envelope decoding.
func (m *Message) UnmarshalJSON(b []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("signaling: unmarshal envelope: %w", err)
	}
	m.Kind = Kind(env.Type)
	switch m.Kind {
	case KindSdp:
		var sdp Sdp
		if err := json.Unmarshal(env.Data, &sdp); err != nil {
			return fmt.Errorf("signaling: unmarshal sdp: %w", err)
		}
		m.Sdp = &sdp
	case KindIceCandidate:
		var c IceCandidate
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return fmt.Errorf("signaling: unmarshal ice candidate: %w", err)
		}
		m.IceCandidate = &c
	case KindBye:
		// no payload
	default:
		return fmt.Errorf("signaling: unmarshal: unknown message kind %q", env.Type)
	}
	return nil
}

// Signaler is the abstract bi-directional message channel a Session
// negotiates over.
type Signaler interface {
	Send(Message) error
	Recv() (Message, error)
}
