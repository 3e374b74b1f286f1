package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"panelbus/util"

	"github.com/rs/xid"
)

// InProc is the same-process Channel implementation: an address→handlers
// table guarded by a RWMutex. Dispatch fans out one goroutine per matching
// handler and Send waits for all of them, so a completed Send means every
// matching handler has been attempted.
type InProc struct {
	mu     sync.RWMutex
	subs   map[string][]*inprocSub // registration order preserved per key
	closed bool

	hooks  Hooks
	logger *slog.Logger
}

type inprocSub struct {
	id      string
	address string
	handler Handler
	once    sync.Once
	ch      *InProc
}

func (s *inprocSub) ID() string { return s.id }

func (s *inprocSub) Unsubscribe() {
	s.once.Do(func() {
		s.ch.remove(s)
	})
}

// InProcOption configures an InProc channel.
type InProcOption func(*InProc)

// WithHooks installs observability hooks.
func WithHooks(h Hooks) InProcOption {
	return func(c *InProc) { c.hooks = h }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) InProcOption {
	return func(c *InProc) { c.logger = l }
}

// NewInProc creates an empty in-process channel.
func NewInProc(opts ...InProcOption) *InProc {
	c := &InProc{
		subs:   make(map[string][]*inprocSub),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers handler under address. Registering the same handler
// twice under one key is two registrations; each gets its own Subscription.
func (c *InProc) Subscribe(address string, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %q: nil handler", address)
	}
	sub := &inprocSub{
		id:      xid.New().String(),
		address: address,
		handler: handler,
		ch:      c,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.subs[address] = append(c.subs[address], sub)
	return sub, nil
}

func (c *InProc) remove(sub *inprocSub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[sub.address]
	for i, s := range list {
		if s == sub {
			c.subs[sub.address] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.address]) == 0 {
		delete(c.subs, sub.address)
	}
}

// Send routes msg to every matching registration. Handlers run concurrently;
// a handler error or panic is reported through the error hook and never
// escapes to the caller. Matching no one is a silent no-op.
func (c *InProc) Send(ctx context.Context, msg Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	// Snapshot under the read lock: handlers registered or removed from here
	// on do not affect this dispatch.
	var targets []*inprocSub
	if msg.IsBroadcast() {
		for _, list := range c.subs {
			targets = append(targets, list...)
		}
	} else if list, ok := c.subs[msg.Target()]; ok {
		targets = append(targets, list...)
	} else {
		// No exact key: fall back to dotted sub-address and pattern
		// matching so "proc.panel.widget" reaches the bus at "proc.panel"
		// and "proc.*" reaches every panel of that process.
		for key, list := range c.subs {
			if util.IsSubAddress(key, msg.Target()) || util.AddressMatches(msg.Target(), key) {
				targets = append(targets, list...)
			}
		}
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *inprocSub) {
			defer wg.Done()
			c.invoke(ctx, sub, msg)
		}(sub)
	}
	wg.Wait()

	if c.hooks.MessageReceived != nil && len(targets) > 0 {
		c.hooks.MessageReceived(msg)
	}
	return nil
}

func (c *InProc) invoke(ctx context.Context, sub *inprocSub, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.report(sub.address, msg, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := sub.handler(ctx, msg); err != nil {
		c.report(sub.address, msg, err)
	}
}

func (c *InProc) report(address string, msg Message, err error) {
	c.logger.Error("handler failed",
		"address", address, "type", msg.Type(), "msg_id", msg.ID(), "err", err)
	if c.hooks.ErrorOccurred != nil {
		c.hooks.ErrorOccurred(ErrorEvent{Msg: msg, Address: address, Err: err})
	}
}

// SubscriberCount reports live registrations for an address key.
func (c *InProc) SubscriberCount(address string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[address])
}

// Close drops every registration. Subsequent Sends and Subscribes return
// ErrClosed; in-flight dispatches finish against their snapshots.
func (c *InProc) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[string][]*inprocSub)
	return nil
}
