package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/xid"
)

// DefaultSubjectPrefix namespaces panel traffic on a shared NATS connection.
const DefaultSubjectPrefix = "panelbus"

// NATS is the cross-process Channel implementation. Messages travel as JSON
// over two subject families: <prefix>.msg.<address> for targeted sends and
// <prefix>.broadcast for wildcard sends; every Subscribe binds both (plus the
// address's dotted sub-tree), so a broadcast reaches each registration
// exactly once. Wildcard target patterns such as "proc.*" are not routable
// over NATS, which rejects wildcards in publish subjects; use the in-process
// channel where pattern targeting matters.
//
// Unlike InProc, Send is fire-and-forget: it returns once the message is
// handed to the NATS client, not after remote handlers ran. Remote handler
// failures surface on the subscriber's side of the connection.
type NATS struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
	hooks  Hooks

	mu     sync.Mutex
	closed bool
}

// NATSOption configures a NATS channel.
type NATSOption func(*NATS)

// WithSubjectPrefix overrides the default subject namespace.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(c *NATS) { c.prefix = prefix }
}

// WithNATSHooks installs observability hooks.
func WithNATSHooks(h Hooks) NATSOption {
	return func(c *NATS) { c.hooks = h }
}

// WithNATSLogger overrides the default slog logger.
func WithNATSLogger(l *slog.Logger) NATSOption {
	return func(c *NATS) { c.logger = l }
}

// NewNATS wraps an established connection. The caller owns the connection's
// lifetime; Close only drains this channel's interest, so several channels
// can share one conn.
func NewNATS(nc *nats.Conn, opts ...NATSOption) *NATS {
	c := &NATS{
		nc:     nc,
		prefix: DefaultSubjectPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NATS) targetSubject(address string) string {
	return c.prefix + ".msg." + address
}

func (c *NATS) broadcastSubject() string {
	return c.prefix + ".broadcast"
}

type natsSub struct {
	id   string
	subs []*nats.Subscription
	once sync.Once
}

func (s *natsSub) ID() string { return s.id }

func (s *natsSub) Unsubscribe() {
	s.once.Do(func() {
		for _, sub := range s.subs {
			_ = sub.Unsubscribe()
		}
	})
}

// Subscribe binds handler to the address's targeted subject and to the
// shared broadcast subject.
func (c *NATS) Subscribe(address string, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %q: nil handler", address)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	cb := func(nm *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(nm.Data, &msg); err != nil {
			c.report(address, Message{}, fmt.Errorf("decode wire message: %w", err))
			return
		}
		c.dispatch(address, handler, msg)
	}

	handle := &natsSub{id: xid.New().String()}
	subjects := []string{
		c.targetSubject(address),
		c.targetSubject(address) + ".>", // dotted sub-addresses of this panel
		c.broadcastSubject(),
	}
	for _, subject := range subjects {
		sub, err := c.nc.Subscribe(subject, cb)
		if err != nil {
			handle.Unsubscribe()
			return nil, fmt.Errorf("subscribe %q: %w", subject, err)
		}
		handle.subs = append(handle.subs, sub)
	}
	return handle, nil
}

func (c *NATS) dispatch(address string, handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.report(address, msg, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := handler(context.Background(), msg); err != nil {
		c.report(address, msg, err)
		return
	}
	if c.hooks.MessageReceived != nil {
		c.hooks.MessageReceived(msg)
	}
}

func (c *NATS) report(address string, msg Message, err error) {
	c.logger.Error("handler failed",
		"address", address, "type", msg.Type(), "msg_id", msg.ID(), "err", err)
	if c.hooks.ErrorOccurred != nil {
		c.hooks.ErrorOccurred(ErrorEvent{Msg: msg, Address: address, Err: err})
	}
}

// Send publishes msg to its target subject. Delivery to remote handlers is
// asynchronous; a send with no subscribers anywhere is a silent no-op.
func (c *NATS) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode wire message: %w", err)
	}
	subject := c.broadcastSubject()
	if !msg.IsBroadcast() {
		subject = c.targetSubject(msg.Target())
	}
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %q: %w", subject, err)
	}
	return nil
}

// Close flushes pending publishes. The underlying connection stays open for
// its owner to close.
func (c *NATS) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.nc.Flush()
}
