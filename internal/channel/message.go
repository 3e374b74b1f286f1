// Package channel defines the transport abstraction between panel message
// buses: the Message value that travels on the wire, the Channel contract,
// and the in-process and NATS-backed implementations.
package channel

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Broadcast is the wildcard target: a message carrying it (or an empty
// target) is delivered to every live subscription.
const Broadcast = "*"

// Message is one unit of panel-to-panel communication. It is immutable once
// constructed; the channel never looks inside Payload.
type Message struct {
	id      string
	source  string            // sender address, "process.panel"
	target  string            // recipient address, "*" or "" for broadcast
	msgType string            // semantic kind, e.g. "data.update"
	payload []byte            // opaque serialized bytes
	headers map[string]string // transport metadata, uninterpreted by the core
}

// NewMessage creates a Message with a fresh unique ID.
// Use the builder for optional headers.
func NewMessage(source, target, msgType string, payload []byte) Message {
	return Message{
		id:      uuid.NewString(),
		source:  source,
		target:  target,
		msgType: msgType,
		payload: payload,
	}
}

func (m Message) ID() string                 { return m.id }
func (m Message) Source() string             { return m.source }
func (m Message) Target() string             { return m.target }
func (m Message) Type() string               { return m.msgType }
func (m Message) Payload() []byte            { return m.payload }
func (m Message) Headers() map[string]string { return m.headers }

// Header returns one header value, or "" when absent.
func (m Message) Header(key string) string {
	return m.headers[key]
}

// UnmarshalPayload decodes the JSON payload into v. An empty payload leaves
// v untouched.
func (m Message) UnmarshalPayload(v any) error {
	if len(m.payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.payload, v)
}

// IsBroadcast reports whether the message addresses every subscriber.
func (m Message) IsBroadcast() bool {
	return m.target == "" || m.target == Broadcast
}

type MessageBuilder struct {
	source  string
	target  string
	msgType string
	payload []byte
	headers map[string]string
}

func NewMessageBuilder(source, target, msgType string) *MessageBuilder {
	return &MessageBuilder{
		source:  source,
		target:  target,
		msgType: msgType,
	}
}

func (b *MessageBuilder) Payload(p []byte) *MessageBuilder {
	b.payload = p
	return b
}

func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	b.headers[key] = value
	return b
}

func (b *MessageBuilder) Build() Message {
	return Message{
		id:      uuid.NewString(),
		source:  b.source,
		target:  b.target,
		msgType: b.msgType,
		payload: b.payload,
		headers: b.headers,
	}
}

// wireMessage is the JSON shape a Message takes when crossing a transport
// such as the NATS channel. The in-process channel never serializes.
type wireMessage struct {
	ID      string            `json:"id"`
	Source  string            `json:"source"`
	Target  string            `json:"target,omitempty"`
	Type    string            `json:"type"`
	Payload []byte            `json:"payload,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:      m.id,
		Source:  m.source,
		Target:  m.target,
		Type:    m.msgType,
		Payload: m.payload,
		Headers: m.headers,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.id = w.ID
	m.source = w.Source
	m.target = w.Target
	m.msgType = w.Type
	m.payload = w.Payload
	m.headers = w.Headers
	return nil
}
