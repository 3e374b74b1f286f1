package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"panelbus/internal/platform"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

func main() {
	_ = godotenv.Load()
	platform.InitMetrics()
	platform.InitLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := platform.LoadAppConfig()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	// The NATS transport runs against an embedded server; leaf node options
	// join it to an external deployment.
	if cfg.Transport == platform.TransportNATS {
		nc, ns, natErrCh, err := platform.RunEmbeddedServer(ctx, cfg.NatsCfg)
		if err != nil {
			slog.Error("Failed to start embedded server", "err", err)
			os.Exit(1)
		}
		defer nc.Close()
		defer ns.Shutdown()

		go func() {
			if err := <-natErrCh; err != nil && err != ctx.Err() {
				slog.Error("Embedded server error", "err", err)
				cancel()
			}
		}()

		run(ctx, cfg, nc)
		return
	}

	run(ctx, cfg, nil)
}

func run(ctx context.Context, cfg *platform.AppConfig, nc *nats.Conn) {
	ch, err := platform.BuildChannel(cfg, nc)
	if err != nil {
		slog.Error("Failed to build channel", "err", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Close() }()

	if err := platform.Run(ctx, cfg, ch); err != nil {
		slog.Error("Shell exited", "err", err)
		os.Exit(1)
	}
}
