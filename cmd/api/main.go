package main

import (
	"context"
	"log/slog"

	"marketdao/internal/app/bootstrap"
	"marketdao/internal/app/cli"
	"marketdao/internal/platform/config"
)

// API process entrypoint: load config, wire modules, serve HTTP.
func main() {
	cli.Main(cli.NewCommand("marketdao-api", "DAO voting and order settlement HTTP API",
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) (cli.App, error) {
			return bootstrap.BuildAPI(ctx, cfg, logger)
		},
	))
}
