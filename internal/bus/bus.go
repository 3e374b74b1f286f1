// Package bus gives each panel a typed, address-aware façade over a raw
// channel.Channel: send and broadcast with JSON payloads, subscribe by
// message type, request/reply correlation.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"panelbus/internal/channel"
	"panelbus/util"

	"github.com/rs/xid"
)

// WildcardType registers a catch-all handler invoked for every incoming
// message type.
const WildcardType = "*"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("bus closed")

// Bus is the per-panel endpoint on a channel. It owns the stable address
// "<process>.<panel>", holds one channel subscription under that address, and
// fans incoming messages out to its own type-keyed handler table. A Bus lives
// exactly as long as its panel; Close drops the subscription so late messages
// are never delivered to a gone surface.
type Bus struct {
	ch      channel.Channel
	address string

	defaultTarget string // target used by Send("" ) — "*" unless configured
	selfDelivery  bool
	logger        *slog.Logger
	errHook       func(channel.ErrorEvent)

	mu       sync.RWMutex
	handlers map[string][]*registration // message type -> handlers, in order
	sub      channel.Subscription
	closed   bool
}

type registration struct {
	id      string
	msgType string
	invoke  func(ctx context.Context, msg channel.Message) error
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithDefaultTarget routes Send calls with an empty target to a fixed
// address (e.g. the shell root) instead of broadcasting.
func WithDefaultTarget(target string) Option {
	return func(b *Bus) { b.defaultTarget = target }
}

// WithoutSelfDelivery drops this bus's own broadcasts on receipt. By default
// a broadcasting bus hears itself.
func WithoutSelfDelivery() Option {
	return func(b *Bus) { b.selfDelivery = false }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithErrorHook reports handler and decode failures on this bus.
func WithErrorHook(fn func(channel.ErrorEvent)) Option {
	return func(b *Bus) { b.errHook = fn }
}

// New creates a bus addressed "<process>.<panel>" and subscribes it to ch.
// Callers must ensure no other live bus shares the address; the panel shell
// registry enforces that for hosted panels.
func New(ch channel.Channel, process, panel string, opts ...Option) (*Bus, error) {
	if process == "" || panel == "" {
		return nil, fmt.Errorf("bus: process and panel identifiers are required")
	}
	b := &Bus{
		ch:            ch,
		address:       util.JoinAddress(process, panel),
		defaultTarget: channel.Broadcast,
		selfDelivery:  true,
		logger:        slog.Default(),
		handlers:      make(map[string][]*registration),
	}
	for _, opt := range opts {
		opt(b)
	}

	sub, err := ch.Subscribe(b.address, b.receive)
	if err != nil {
		return nil, fmt.Errorf("bus %s: subscribe: %w", b.address, err)
	}
	b.sub = sub
	return b, nil
}

// Address returns the bus's stable "<process>.<panel>" identity.
func (b *Bus) Address() string { return b.address }

// Send serializes data to JSON (nil data sends an empty payload) and
// delivers it under msgType. An empty target falls back to the bus's default
// target policy, broadcast unless configured otherwise.
func (b *Bus) Send(ctx context.Context, msgType string, data any, target string) error {
	return b.send(ctx, msgType, data, target, nil)
}

// Broadcast sends to every live bus on the channel.
func (b *Bus) Broadcast(ctx context.Context, msgType string, data any) error {
	return b.send(ctx, msgType, data, channel.Broadcast, nil)
}

func (b *Bus) send(ctx context.Context, msgType string, data any, target string, headers map[string]string) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if target == "" {
		target = b.defaultTarget
	}

	var payload []byte
	if data != nil {
		var err error
		if payload, err = json.Marshal(data); err != nil {
			return fmt.Errorf("bus %s: encode %q payload: %w", b.address, msgType, err)
		}
	}

	mb := channel.NewMessageBuilder(b.address, target, msgType).Payload(payload)
	for k, v := range headers {
		mb.Header(k, v)
	}
	msg := mb.Build()

	if err := b.ch.Send(ctx, msg); err != nil {
		return fmt.Errorf("bus %s: send %q: %w", b.address, msgType, err)
	}
	return nil
}

// On registers fn for messages of msgType arriving at b, decoding the
// payload into T first. WildcardType catches every type. Registering the
// same fn twice invokes it twice. The returned func removes exactly this
// registration and is idempotent.
//
// A package-level generic because Go methods cannot carry type parameters.
func On[T any](b *Bus, msgType string, fn func(ctx context.Context, v T)) func() {
	return b.onRaw(msgType, func(ctx context.Context, msg channel.Message) error {
		var v T
		if len(msg.Payload()) > 0 {
			if err := json.Unmarshal(msg.Payload(), &v); err != nil {
				return fmt.Errorf("decode %q payload: %w", msg.Type(), err)
			}
		}
		fn(ctx, v)
		return nil
	})
}

// OnMessage registers fn for the raw, undecoded message. Bridges use this to
// forward payload bytes to hosted content without imposing a shape.
func (b *Bus) OnMessage(msgType string, fn func(ctx context.Context, msg channel.Message)) func() {
	return b.onRaw(msgType, func(ctx context.Context, msg channel.Message) error {
		fn(ctx, msg)
		return nil
	})
}

func (b *Bus) onRaw(msgType string, invoke func(context.Context, channel.Message) error) func() {
	reg := &registration{
		id:      xid.New().String(),
		msgType: msgType,
		invoke:  invoke,
	}

	b.mu.Lock()
	b.handlers[msgType] = append(b.handlers[msgType], reg)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(reg) })
	}
}

func (b *Bus) remove(reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[reg.msgType]
	for i, r := range list {
		if r == reg {
			b.handlers[reg.msgType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[reg.msgType]) == 0 {
		delete(b.handlers, reg.msgType)
	}
}

// Off removes every handler registered for msgType on this bus.
func (b *Bus) Off(msgType string) {
	b.mu.Lock()
	delete(b.handlers, msgType)
	b.mu.Unlock()
}

// receive is the bus's single channel handler. It filters by target, then
// invokes each matching type handler and each wildcard handler with the
// message. Decode failures and handler panics are confined to the failing
// registration.
func (b *Bus) receive(ctx context.Context, msg channel.Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	if !b.accepts(msg) {
		b.mu.RUnlock()
		return nil
	}
	// Snapshot so handlers may (un)register during dispatch.
	regs := make([]*registration, 0,
		len(b.handlers[msg.Type()])+len(b.handlers[WildcardType]))
	regs = append(regs, b.handlers[msg.Type()]...)
	if msg.Type() != WildcardType {
		regs = append(regs, b.handlers[WildcardType]...)
	}
	b.mu.RUnlock()

	for _, reg := range regs {
		b.invokeOne(ctx, reg, msg)
	}
	return nil
}

func (b *Bus) invokeOne(ctx context.Context, reg *registration, msg channel.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.report(msg, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := reg.invoke(ctx, msg); err != nil {
		b.report(msg, err)
	}
}

func (b *Bus) report(msg channel.Message, err error) {
	b.logger.Error("bus handler failed",
		"address", b.address, "type", msg.Type(), "msg_id", msg.ID(), "err", err)
	if b.errHook != nil {
		b.errHook(channel.ErrorEvent{Msg: msg, Address: b.address, Err: err})
	}
}

// accepts reports whether msg indeed addresses this bus: broadcast, exact
// match, a dotted sub-address of this bus, or a wildcard target pattern the
// address matches.
func (b *Bus) accepts(msg channel.Message) bool {
	if msg.IsBroadcast() {
		return b.selfDelivery || msg.Source() != b.address
	}
	target := msg.Target()
	if target == b.address || util.IsSubAddress(b.address, target) {
		return true
	}
	return util.AddressMatches(target, b.address)
}

// Close unsubscribes from the channel and clears the handler table. Safe to
// call more than once; messages arriving afterwards are dropped by the
// channel, which no longer holds a registration for this address.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sub := b.sub
	b.handlers = make(map[string][]*registration)
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
