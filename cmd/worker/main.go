package main

import (
	"context"
	"log/slog"

	"marketdao/internal/app/bootstrap"
	"marketdao/internal/app/cli"
	"marketdao/internal/platform/config"
)

// Worker process entrypoint: outbox relays, the auto-vote consumer and the
// finalize and distribution sweeps.
func main() {
	cli.Main(cli.NewCommand("marketdao-worker", "DAO voting and order settlement background worker",
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) (cli.App, error) {
			return bootstrap.BuildWorker(ctx, cfg, logger)
		},
	))
}
