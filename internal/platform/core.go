package platform

import (
	"context"
	"fmt"
	"log/slog"

	"panelbus/internal/channel"
	"panelbus/internal/panel"

	"github.com/nats-io/nats.go"
)

// BuildChannel constructs the channel named by cfg.Transport. The NATS
// variant needs an established connection; inproc ignores it.
func BuildChannel(cfg *AppConfig, nc *nats.Conn) (channel.Channel, error) {
	switch cfg.Transport {
	case TransportInProc:
		return channel.NewInProc(channel.WithHooks(MetricsHooks())), nil
	case TransportNATS:
		if nc == nil {
			return nil, fmt.Errorf("transport %q: no NATS connection", cfg.Transport)
		}
		return channel.NewNATS(nc, channel.WithNATSHooks(MetricsHooks())), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Run wires the shell onto ch and blocks until ctx is done.
func Run(ctx context.Context, cfg *AppConfig, ch channel.Channel) error {
	shell, err := panel.NewShell(cfg.Process, ch)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer shell.Close()

	var httpErrCh <-chan error
	if !cfg.Headless {
		httpErrCh = RunHTTPServer(ctx, shell, cfg.HTTPSrvCfg)
	} else {
		httpErrCh = make(chan error) // never sends
	}

	slog.Info("shell up",
		"process", cfg.Process, "transport", cfg.Transport,
		"root", shell.Root().Address())

	select {
	case <-ctx.Done():
		slog.Info("run: shutdown requested")
		return nil
	case err := <-httpErrCh:
		if err != nil && err != ctx.Err() {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
