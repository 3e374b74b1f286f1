package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler(n *atomic.Int64) Handler {
	return func(ctx context.Context, msg Message) error {
		n.Add(1)
		return nil
	}
}

func TestInProcSendNoSubscribersIsNoOp(t *testing.T) {
	c := NewInProc()
	msg := NewMessage("main.a", "main.b", "ping", nil)
	require.NoError(t, c.Send(context.Background(), msg))
}

func TestInProcExactAddressDelivery(t *testing.T) {
	c := NewInProc()
	var a, b atomic.Int64
	_, err := c.Subscribe("main.a", countingHandler(&a))
	require.NoError(t, err)
	_, err = c.Subscribe("main.b", countingHandler(&b))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))

	assert.Equal(t, int64(1), a.Load())
	assert.Equal(t, int64(0), b.Load())
}

func TestInProcBroadcastDelivery(t *testing.T) {
	c := NewInProc()
	counters := make([]atomic.Int64, 3)
	for i, addr := range []string{"main.a", "main.b", "main.c"} {
		_, err := c.Subscribe(addr, countingHandler(&counters[i]))
		require.NoError(t, err)
	}

	for _, target := range []string{Broadcast, ""} {
		msg := NewMessage("main.a", target, "theme.changed", []byte(`{"theme":"dark"}`))
		require.NoError(t, c.Send(context.Background(), msg))
	}

	for i := range counters {
		assert.Equal(t, int64(2), counters[i].Load(), "subscriber %d", i)
	}
}

func TestInProcHandlerIsolation(t *testing.T) {
	var errCount atomic.Int64
	c := NewInProc(WithHooks(Hooks{
		ErrorOccurred: func(ev ErrorEvent) { errCount.Add(1) },
	}))

	var ok atomic.Int64
	_, err := c.Subscribe("main.a", func(ctx context.Context, msg Message) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = c.Subscribe("main.a", countingHandler(&ok))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(1), errCount.Load())
}

func TestInProcPanicIsolation(t *testing.T) {
	var errCount atomic.Int64
	c := NewInProc(WithHooks(Hooks{
		ErrorOccurred: func(ev ErrorEvent) { errCount.Add(1) },
	}))

	var ok atomic.Int64
	_, err := c.Subscribe("main.a", func(ctx context.Context, msg Message) error {
		panic("unreachable widget")
	})
	require.NoError(t, err)
	_, err = c.Subscribe("main.a", countingHandler(&ok))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(1), errCount.Load())
}

func TestInProcUnsubscribeStopsDelivery(t *testing.T) {
	c := NewInProc()
	var gone, kept atomic.Int64
	sub, err := c.Subscribe("main.a", countingHandler(&gone))
	require.NoError(t, err)
	_, err = c.Subscribe("main.a", countingHandler(&kept))
	require.NoError(t, err)

	sub.Unsubscribe()
	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))

	assert.Equal(t, int64(0), gone.Load())
	assert.Equal(t, int64(1), kept.Load())
	assert.Equal(t, 1, c.SubscriberCount("main.a"))
}

func TestInProcDoubleUnsubscribeIsSafe(t *testing.T) {
	c := NewInProc()
	var n atomic.Int64
	sub, err := c.Subscribe("main.a", countingHandler(&n))
	require.NoError(t, err)
	// A second registration must survive both Unsubscribe calls.
	_, err = c.Subscribe("main.a", countingHandler(&n))
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 1, c.SubscriberCount("main.a"))
}

func TestInProcDuplicateRegistrationInvokedTwice(t *testing.T) {
	c := NewInProc()
	var n atomic.Int64
	h := countingHandler(&n)
	_, err := c.Subscribe("main.a", h)
	require.NoError(t, err)
	_, err = c.Subscribe("main.a", h)
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	assert.Equal(t, int64(2), n.Load())
}

func TestInProcSubscribeDuringDispatchDoesNotAffectInFlight(t *testing.T) {
	c := NewInProc()
	var late atomic.Int64

	_, err := c.Subscribe("main.a", func(ctx context.Context, msg Message) error {
		_, subErr := c.Subscribe("main.a", countingHandler(&late))
		return subErr
	})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	assert.Equal(t, int64(0), late.Load(), "handler added mid-dispatch must not see the in-flight message")

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	assert.Equal(t, int64(1), late.Load())
}

func TestInProcUnsubscribeDuringDispatch(t *testing.T) {
	c := NewInProc()
	var n atomic.Int64
	var sub Subscription
	var err error
	sub, err = c.Subscribe("main.a", func(ctx context.Context, msg Message) error {
		n.Add(1)
		sub.Unsubscribe()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	assert.Equal(t, int64(1), n.Load())
}

func TestInProcSubAddressAndPatternTargets(t *testing.T) {
	c := NewInProc()
	var toolbar, settings atomic.Int64
	_, err := c.Subscribe("main.toolbar", countingHandler(&toolbar))
	require.NoError(t, err)
	_, err = c.Subscribe("main.settings", countingHandler(&settings))
	require.NoError(t, err)

	// Deeper dotted target reaches the owning panel.
	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.toolbar.search", "focus", nil)))
	assert.Equal(t, int64(1), toolbar.Load())
	assert.Equal(t, int64(0), settings.Load())

	// Pattern target reaches every matching panel.
	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.*", "refresh", nil)))
	assert.Equal(t, int64(2), toolbar.Load())
	assert.Equal(t, int64(1), settings.Load())
}

func TestInProcMessageReceivedHookFiresPerRoutedMessage(t *testing.T) {
	var routed atomic.Int64
	c := NewInProc(WithHooks(Hooks{
		MessageReceived: func(msg Message) { routed.Add(1) },
	}))

	var n atomic.Int64
	_, err := c.Subscribe("main.a", countingHandler(&n))
	require.NoError(t, err)

	// Routed once, no hook for the no-match send.
	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil)))
	require.NoError(t, c.Send(context.Background(), NewMessage("main.x", "main.zzz", "ping", nil)))
	assert.Equal(t, int64(1), routed.Load())
}

func TestInProcClose(t *testing.T) {
	c := NewInProc()
	var n atomic.Int64
	_, err := c.Subscribe("main.a", countingHandler(&n))
	require.NoError(t, err)

	require.NoError(t, c.Close())

	err = c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Subscribe("main.b", countingHandler(&n))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int64(0), n.Load())
}

func TestInProcConcurrentSendAndSubscribe(t *testing.T) {
	c := NewInProc()
	var n atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := c.Subscribe("main.a", countingHandler(&n))
			assert.NoError(t, err)
			sub.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Send(context.Background(),
				NewMessage("main.x", "main.a", "ping", nil)))
		}()
	}
	wg.Wait()
}
