package messages

import (
	"context"
	"fmt"
	"time"

	"panelbus/internal/bus"
)

// NewPanelOpenedEvent stamps the event with the current time.
func NewPanelOpenedEvent(address string) PanelOpenedEvent {
	return PanelOpenedEvent{Address: address, OpenedAt: time.Now()}
}

// NewPanelClosedEvent stamps the event with the current time.
func NewPanelClosedEvent(address string) PanelClosedEvent {
	return PanelClosedEvent{Address: address, ClosedAt: time.Now()}
}

// NewThemeChangedEvent stamps the event with the current time.
func NewThemeChangedEvent(theme string) ThemeChangedEvent {
	return ThemeChangedEvent{Theme: theme, ChangedAt: time.Now()}
}

// NewStatePatchCommand wraps a raw RFC 7386 merge patch.
func NewStatePatchCommand(patch []byte) StatePatchCommand {
	return StatePatchCommand{Patch: patch}
}

// Publisher sends validated, typed messages over one bus.
type Publisher struct {
	bus *bus.Bus
}

func NewPublisher(b *bus.Bus) *Publisher {
	return &Publisher{bus: b}
}

// Send validates m and delivers it to target under its type tag. An empty
// target follows the bus's default target policy.
func (p *Publisher) Send(ctx context.Context, m Message, target string) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validate %q: %w", m.MessageType(), err)
	}
	return p.bus.Send(ctx, m.MessageType(), m, target)
}

// Broadcast validates m and delivers it to every live bus.
func (p *Publisher) Broadcast(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validate %q: %w", m.MessageType(), err)
	}
	return p.bus.Broadcast(ctx, m.MessageType(), m)
}
