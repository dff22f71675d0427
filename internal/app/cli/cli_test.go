package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marketdao/internal/platform/config"
)

type fakeApp struct {
	ran    bool
	closed bool
	runErr error
}

func (a *fakeApp) Run(context.Context) error {
	a.ran = true
	return a.runErr
}

func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func TestCommandLoadsConfigAndRunsApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketdao.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serviceName: cli-test\n"), 0o600))

	app := &fakeApp{}
	var seen config.Config
	cmd := NewCommand("marketdao-test", "test", func(_ context.Context, cfg config.Config, _ *slog.Logger) (App, error) {
		seen = cfg
		return app, nil
	})
	cmd.SetArgs([]string{"--config", path, "--debug"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.Equal(t, "cli-test", seen.ServiceName)
	require.True(t, app.ran)
	require.True(t, app.closed)
}

func TestCommandPropagatesFailures(t *testing.T) {
	cmd := NewCommand("marketdao-test", "test", func(context.Context, config.Config, *slog.Logger) (App, error) {
		return nil, errors.New("no database")
	})
	cmd.SetArgs([]string{})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "no database")

	app := &fakeApp{runErr: errors.New("listen failed")}
	cmd = NewCommand("marketdao-test", "test", func(context.Context, config.Config, *slog.Logger) (App, error) {
		return app, nil
	})
	cmd.SetArgs([]string{})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "listen failed")
	require.True(t, app.closed)

	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "load config")
}
