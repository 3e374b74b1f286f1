// Package bridge connects hosted panel content to the native bus: inbound
// script calls become bus sends, and bus deliveries are posted one-way back
// into the hosted content. The post direction is fire-and-forget by
// construction; round trips go through bus request/reply instead.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"panelbus/internal/bus"
	"panelbus/internal/channel"
)

// Poster delivers one envelope to hosted content. Implementations must not
// assume the content acknowledges anything.
type Poster interface {
	Post(ctx context.Context, env Envelope) error
}

// Envelope is the wire shape posted into hosted content. Payload is embedded
// as raw JSON so scripts consume it without a second decode.
type Envelope struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Forwarder pipes every message delivered to a bus into a Poster. It holds a
// single wildcard registration; Close removes it.
type Forwarder struct {
	off    func()
	logger *slog.Logger
}

// Forward attaches a wildcard handler on b that posts each delivery to p.
func Forward(b *bus.Bus, p Poster, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Forwarder{logger: logger}
	f.off = b.OnMessage(bus.WildcardType, func(ctx context.Context, msg channel.Message) {
		env := Envelope{
			ID:     msg.ID(),
			Source: msg.Source(),
			Type:   msg.Type(),
		}
		if payload := msg.Payload(); json.Valid(payload) {
			env.Payload = payload
		} else if len(payload) > 0 {
			logger.Warn("bridge: dropping non-JSON payload",
				"type", msg.Type(), "msg_id", msg.ID())
		}
		if err := p.Post(ctx, env); err != nil {
			logger.Warn("bridge: post failed",
				"type", msg.Type(), "msg_id", msg.ID(), "err", err)
		}
	})
	return f
}

// Close detaches the forwarder from its bus. Idempotent.
func (f *Forwarder) Close() {
	f.off()
}
