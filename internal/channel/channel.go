package channel

import (
	"context"
	"errors"
)

// Common channel errors.
var (
	// ErrClosed is returned by Send and Subscribe after Close.
	ErrClosed = errors.New("channel closed")
)

// Handler is a subscriber callback. A non-nil error (or a panic) is isolated
// at the dispatch site: it is reported through the channel's error hook and
// never reaches the sender or other handlers.
type Handler func(ctx context.Context, msg Message) error

// Subscription is the handle for one handler registration. Unsubscribe
// removes exactly that registration; it is idempotent and safe to call from
// any goroutine, including inside a handler while dispatch is in flight.
type Subscription interface {
	// ID identifies the registration, for logging.
	ID() string
	Unsubscribe()
}

// Channel routes messages between subscribers. Implementations must treat
// each handler invocation in isolation and must snapshot the subscriber set
// per Send so concurrent (un)subscribes never disturb an in-flight dispatch.
//
// The in-process implementation is InProc; NATS provides the same contract
// across process boundaries. Call sites depend only on this interface so the
// transport can be swapped without touching them.
type Channel interface {
	// Send delivers msg to every subscription matching its target and
	// returns once all matching handlers have been attempted. A send that
	// matches no subscription is a no-op, not an error.
	Send(ctx context.Context, msg Message) error

	// Subscribe registers handler under an address key. The same handler may
	// be registered more than once and will then be invoked once per
	// registration.
	Subscribe(address string, handler Handler) (Subscription, error)

	// Close tears down the channel and drops every registration.
	Close() error
}

// ErrorEvent describes one failed handler invocation.
type ErrorEvent struct {
	Msg     Message
	Address string // subscription key the failing handler was registered under
	Err     error
}

// Hooks surface channel activity to the embedding layer. Both fields are
// optional. ErrorOccurred fires once per failing handler and must not block;
// MessageReceived fires once per routed message, after dispatch completes.
type Hooks struct {
	MessageReceived func(msg Message)
	ErrorOccurred   func(ev ErrorEvent)
}
