package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates parsed inbound messages.
type Kind int

const (
	// KindEvent is a tracked occurrence.
	KindEvent Kind = iota + 1
	// KindIdentify attaches a known user id to the connection.
	KindIdentify
	// KindPing requests a pong reply.
	KindPing
)

// ErrBadMessage wraps every parse failure.
var ErrBadMessage = errors.New("protocol: bad message")

// Message is one parsed inbound client message. Fields beyond Kind are
// populated per kind: Event/Props/Ts for events, UserID/Traits for identify.
type Message struct {
	Kind   Kind
	Event  string
	Props  string
	Ts     int64
	UserID string
	Traits string
}

// inbound is the decoding frame. Type is any so a non-string discriminator
// is detected instead of failing the whole decode; optional string fields use
// pointers so absence can take the documented defaults.
type inbound struct {
	Type   interface{} `json:"type"`
	Event  *string     `json:"event"`
	Props  *string     `json:"props"`
	Ts     *int64      `json:"ts"`
	UserID *string     `json:"userId"`
	Traits *string     `json:"traits"`
}

// Parse decodes one inbound message. Failures: syntactically invalid JSON, a
// non-object top level, a missing or non-string type, an unrecognized type,
// or identify without userId. Everything else defaults per the protocol.
func Parse(raw []byte) (Message, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	typ, ok := in.Type.(string)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing or non-string type", ErrBadMessage)
	}
	switch typ {
	case "event":
		m := Message{Kind: KindEvent, Props: "{}"}
		if in.Event != nil {
			m.Event = *in.Event
		}
		if in.Props != nil {
			m.Props = *in.Props
		}
		if in.Ts != nil {
			m.Ts = *in.Ts
		}
		return m, nil
	case "identify":
		if in.UserID == nil {
			return Message{}, fmt.Errorf("%w: identify requires userId", ErrBadMessage)
		}
		m := Message{Kind: KindIdentify, UserID: *in.UserID, Traits: "{}"}
		if in.Traits != nil {
			m.Traits = *in.Traits
		}
		return m, nil
	case "ping":
		return Message{Kind: KindPing}, nil
	}
	return Message{}, fmt.Errorf("%w: unrecognized type %q", ErrBadMessage, typ)
}

// Pong returns the encoded reply to a ping.
func Pong() []byte { return []byte(`{"type":"pong"}`) }

// EncodeFlags returns the flag-push payload carrying the full current flag
// set for a tenant. Keys are emitted in sorted order (json.Marshal sorts map
// keys), so the payload is deterministic.
func EncodeFlags(flags map[string]bool) []byte {
	if flags == nil {
		flags = map[string]bool{}
	}
	b, _ := json.Marshal(struct {
		Type  string          `json:"type"`
		Flags map[string]bool `json:"flags"`
	}{Type: "flags", Flags: flags})
	return b
}
