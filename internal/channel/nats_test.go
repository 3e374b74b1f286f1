package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startNATS runs an embedded server that never touches the network.
func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		ServerName: "channel_test",
		DontListen: true,
	})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL(), nats.InProcessServer(ns))
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSTargetedDelivery(t *testing.T) {
	nc := startNATS(t)
	c := NewNATS(nc)

	var a, b atomic.Int64
	_, err := c.Subscribe("main.a", countingHandler(&a))
	require.NoError(t, err)
	_, err = c.Subscribe("main.b", countingHandler(&b))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.a", "ping", []byte(`{"n":1}`))))

	require.Eventually(t, func() bool { return a.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), b.Load())
}

func TestNATSBroadcastDelivery(t *testing.T) {
	nc := startNATS(t)
	c := NewNATS(nc)

	counters := make([]atomic.Int64, 3)
	for i, addr := range []string{"main.a", "main.b", "main.c"} {
		_, err := c.Subscribe(addr, countingHandler(&counters[i]))
		require.NoError(t, err)
	}

	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.a", Broadcast, "theme.changed", []byte(`{"theme":"dark"}`))))

	require.Eventually(t, func() bool {
		for i := range counters {
			if counters[i].Load() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNATSSubAddressDelivery(t *testing.T) {
	nc := startNATS(t)
	c := NewNATS(nc)

	var n atomic.Int64
	_, err := c.Subscribe("main.toolbar", countingHandler(&n))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.toolbar.search", "focus", nil)))

	require.Eventually(t, func() bool { return n.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestNATSUnsubscribeStopsDelivery(t *testing.T) {
	nc := startNATS(t)
	c := NewNATS(nc)

	var gone, kept atomic.Int64
	sub, err := c.Subscribe("main.a", countingHandler(&gone))
	require.NoError(t, err)
	_, err = c.Subscribe("main.a", countingHandler(&kept))
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.a", "ping", nil)))

	require.Eventually(t, func() bool { return kept.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), gone.Load())
}

func TestNATSErrorIsolation(t *testing.T) {
	nc := startNATS(t)
	var errCount atomic.Int64
	c := NewNATS(nc, WithNATSHooks(Hooks{
		ErrorOccurred: func(ev ErrorEvent) { errCount.Add(1) },
	}))

	_, err := c.Subscribe("main.a", func(ctx context.Context, msg Message) error {
		panic("bad handler")
	})
	require.NoError(t, err)
	var ok atomic.Int64
	_, err = c.Subscribe("main.a", countingHandler(&ok))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(),
		NewMessage("main.x", "main.a", "ping", nil)))

	require.Eventually(t, func() bool {
		return ok.Load() == 1 && errCount.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNATSClosedChannelRejectsSend(t *testing.T) {
	nc := startNATS(t)
	c := NewNATS(nc)
	require.NoError(t, c.Close())
	err := c.Send(context.Background(), NewMessage("main.x", "main.a", "ping", nil))
	assert.ErrorIs(t, err, ErrClosed)
}
