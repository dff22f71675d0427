package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, root string, rel string, imports ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("package x\n\nimport (\n")
	for _, imp := range imports {
		b.WriteString("\t_ \"" + imp + "\"\n")
	}
	b.WriteString(")\n")
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func rulesByFile(violations []violation) map[string][]string {
	out := make(map[string][]string)
	for _, v := range violations {
		out[v.File] = append(out[v.File], v.Rule)
	}
	return out
}

func TestCleanTreePasses(t *testing.T) {
	root := t.TempDir()
	svc := "marketdao/contexts/commerce/order-settlement"
	writeSource(t, root, "commerce/order-settlement/domain/entities/order.go",
		"time", "github.com/shopspring/decimal", svc+"/domain/commission")
	writeSource(t, root, "commerce/order-settlement/ports/ports.go",
		"context", svc+"/domain/entities", "marketdao/contracts/gen/events/v1")
	writeSource(t, root, "commerce/order-settlement/application/service.go",
		svc+"/ports", svc+"/domain/entities", "github.com/cenkalti/backoff/v4", "golang.org/x/sync/errgroup")
	writeSource(t, root, "commerce/order-settlement/adapters/postgres/repository.go",
		"gorm.io/gorm", "marketdao/internal/platform/db", svc+"/ports")
	writeSource(t, root, "commerce/order-settlement/module.go",
		svc+"/adapters/memory", svc+"/application")
	writeSource(t, root, "commerce/order-settlement/domain/entities/order_test.go",
		"marketdao/contexts/governance/dao-voting/domain/entities")

	violations, err := collectViolations(root)
	require.NoError(t, err)
	require.Empty(t, violations)

	var out bytes.Buffer
	require.Equal(t, 0, run(root, &out))
	require.Contains(t, out.String(), "boundary checks passed")
}

func TestLayerRulesAreEnforced(t *testing.T) {
	root := t.TempDir()
	svc := "marketdao/contexts/governance/dao-voting"
	writeSource(t, root, "governance/dao-voting/domain/policy/decide.go",
		svc+"/ports", "gorm.io/gorm", "marketdao/internal/platform/config")
	writeSource(t, root, "governance/dao-voting/ports/ports.go",
		svc+"/application")
	writeSource(t, root, "governance/dao-voting/application/commands/votes.go",
		svc+"/adapters/memory", "github.com/segmentio/kafka-go")
	writeSource(t, root, "governance/dao-voting/transport/http/handler.go",
		"marketdao/contexts/commerce/order-settlement/domain/entities", "github.com/go-chi/chi/v5")

	violations, err := collectViolations(root)
	require.NoError(t, err)

	got := rulesByFile(violations)
	require.Equal(t, []string{
		"domain must not import ports",
		"domain import is outside explicit allowlist",
		"domain must not import runtime infrastructure",
	}, got["contexts/governance/dao-voting/domain/policy/decide.go"])
	require.Equal(t, []string{"ports must not import application"},
		got["contexts/governance/dao-voting/ports/ports.go"])
	require.Equal(t, []string{
		"application must not import adapters",
		"application import is outside explicit allowlist",
	}, got["contexts/governance/dao-voting/application/commands/votes.go"])
	require.Equal(t, []string{"cross-module imports are forbidden"},
		got["contexts/governance/dao-voting/transport/http/handler.go"])

	var out bytes.Buffer
	require.Equal(t, 1, run(root, &out))
	require.Contains(t, out.String(), `contexts/governance/dao-voting/ports/ports.go:4 imports "`+svc+`/application"`)
}

func TestUnparsableFileIsReported(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "commerce", "order-settlement", "domain", "broken.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("package"), 0o644))

	violations, err := collectViolations(root)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, "file must parse", violations[0].Rule)
}

func TestMissingRootFails(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 2, run(filepath.Join(t.TempDir(), "absent"), &out))
	require.Contains(t, out.String(), "boundary check failed")
}

func TestRepositoryTreeRespectsBoundaries(t *testing.T) {
	violations, err := collectViolations(filepath.Join("..", "contexts"))
	require.NoError(t, err)
	require.Empty(t, violations)
}
