package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"panelbus/internal/channel"

	"github.com/google/uuid"
)

// HeaderCorrelationID carries the request/reply correlation token.
const HeaderCorrelationID = "correlation-id"

// ErrRequestTimeout is returned by Request when the context expires before a
// correlated reply arrives.
var ErrRequestTimeout = errors.New("request timed out")

// replyType derives the reply message type for a request type.
func replyType(msgType string) string { return msgType + ".reply" }

// Request sends msgType to target and waits for a "<msgType>.reply" message
// carrying the same correlation id, decoding its payload into T. The one-shot
// reply handler is removed on completion either way, so a straggling reply
// after timeout is dropped like any other unmatched message.
//
// Built entirely on Send and handler registration; the channel contract is
// untouched. Bound the wait with a context deadline.
func Request[T any](ctx context.Context, b *Bus, msgType string, data any, target string) (T, error) {
	var zero T

	corrID := uuid.NewString()
	replies := make(chan channel.Message, 1)
	remove := b.onRaw(replyType(msgType), func(_ context.Context, msg channel.Message) error {
		if msg.Header(HeaderCorrelationID) != corrID {
			return nil
		}
		select {
		case replies <- msg:
		default: // already resolved
		}
		return nil
	})
	defer remove()

	headers := map[string]string{HeaderCorrelationID: corrID}
	if err := b.send(ctx, msgType, data, target, headers); err != nil {
		return zero, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("request %q to %q: %w", msgType, target, ErrRequestTimeout)
		}
		return zero, ctx.Err()
	case msg := <-replies:
		var v T
		if len(msg.Payload()) > 0 {
			if err := json.Unmarshal(msg.Payload(), &v); err != nil {
				return zero, fmt.Errorf("request %q: decode reply: %w", msgType, err)
			}
		}
		return v, nil
	}
}

// Reply answers a request message received by one of b's handlers, sending
// data back to the requester under the derived reply type with the request's
// correlation id.
func (b *Bus) Reply(ctx context.Context, req channel.Message, data any) error {
	corrID := req.Header(HeaderCorrelationID)
	if corrID == "" {
		return fmt.Errorf("bus %s: reply to %q: no correlation id", b.address, req.Type())
	}
	headers := map[string]string{HeaderCorrelationID: corrID}
	return b.send(ctx, replyType(req.Type()), data, req.Source(), headers)
}
