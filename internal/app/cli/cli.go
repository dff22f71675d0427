// Package cli holds the cobra wiring shared by the api and worker binaries.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"marketdao/internal/platform/config"
)

// App is a built process that runs until its context is cancelled.
type App interface {
	Run(ctx context.Context) error
	Close() error
}

// Builder wires an App from loaded configuration.
type Builder func(ctx context.Context, cfg config.Config, logger *slog.Logger) (App, error)

type flags struct {
	debug      bool
	configFile string
}

// NewCommand returns a root command that loads configuration, configures
// logging and runs the app built by build until SIGINT or SIGTERM.
func NewCommand(use string, short string, build Builder) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(use, f.debug)
			cfg, err := config.Load(f.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := build(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap %s: %w", use, err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("shutdown close failed",
						"event", "cli_close_failed",
						"module", "internal/app/cli",
						"layer", "platform",
						"error", err.Error(),
					)
				}
			}()
			return app.Run(ctx)
		},
	}
	cmd.PersistentFlags().BoolVarP(&f.debug, "debug", "D", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&f.configFile, "config", "", "path to YAML config file")
	return cmd
}

// Main executes cmd and exits non-zero on failure.
func Main(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error(err.Error(), "component", cmd.Use)
		os.Exit(1)
	}
}

func newLogger(component string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	}))
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", component)
	})); err != nil {
		logger.Warn("set GOMAXPROCS failed", "component", component, "error", err.Error())
	}
	return logger
}
