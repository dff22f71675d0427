package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "marketdao"

// layerPolicy lists what one layer of a bounded context may import. Layers
// without a policy (adapters, transport, module wiring) only get the
// cross-context check.
type layerPolicy struct {
	// layers of the same service the layer may import.
	layers []string
	// shared module packages outside contexts/.
	shared []string
	// third-party libraries carrying no runtime infrastructure.
	libraries []string
}

var policies = map[string]layerPolicy{
	"domain": {
		layers:    []string{"domain"},
		libraries: []string{"github.com/shopspring/decimal"},
	},
	"ports": {
		layers:    []string{"domain", "ports"},
		shared:    []string{modulePath + "/contracts"},
		libraries: []string{"github.com/shopspring/decimal"},
	},
	"application": {
		layers: []string{"domain", "ports", "application"},
		shared: []string{modulePath + "/contracts"},
		libraries: []string{
			"github.com/shopspring/decimal",
			"github.com/cenkalti/backoff/v4",
			"golang.org/x/sync/errgroup",
		},
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func (v violation) String() string {
	if v.Import == "" {
		return fmt.Sprintf("%s:%d (%s)", v.File, v.Line, v.Rule)
	}
	return fmt.Sprintf("%s:%d imports %q (%s)", v.File, v.Line, v.Import, v.Rule)
}

func main() {
	os.Exit(run("contexts", os.Stdout))
}

func run(root string, out io.Writer) int {
	violations, err := collectViolations(root)
	if err != nil {
		fmt.Fprintf(out, "boundary check failed: %v\n", err)
		return 2
	}
	if len(violations) == 0 {
		fmt.Fprintln(out, "boundary checks passed")
		return 0
	}
	fmt.Fprintln(out, "boundary violations found:")
	for _, v := range violations {
		fmt.Fprintf(out, "- %s\n", v)
	}
	return 1
}

// collectViolations walks root, which must be the contexts/ directory, and
// returns violations sorted by file, line and import.
func collectViolations(root string) ([]violation, error) {
	var violations []violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		service := modulePath + "/contexts/" + parts[0] + "/" + parts[1]
		violations = append(violations, checkFile(path, "contexts/"+filepath.ToSlash(rel), parts[2], service)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})
	return violations, nil
}

func checkFile(path string, display string, layer string, service string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: display, Line: 1, Rule: "file must parse"}}
	}

	policy, scoped := policies[layer]
	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		rule := ""
		switch {
		case hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, service):
			rule = "cross-module imports are forbidden"
		case !scoped:
		case hasPrefix(importPath, service):
			target, _, _ := strings.Cut(strings.TrimPrefix(importPath, service+"/"), "/")
			if !contains(policy.layers, target) {
				rule = fmt.Sprintf("%s must not import %s", layer, target)
			}
		case hasPrefix(importPath, modulePath):
			if !matchesAny(importPath, policy.shared) {
				rule = layer + " must not import runtime infrastructure"
			}
		case !isStdlib(importPath) && !matchesAny(importPath, policy.libraries):
			rule = layer + " import is outside explicit allowlist"
		}
		if rule != "" {
			violations = append(violations, violation{
				File:   display,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   rule,
			})
		}
	}
	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func matchesAny(importPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func contains(items []string, item string) bool {
	for _, candidate := range items {
		if candidate == item {
			return true
		}
	}
	return false
}

// isStdlib reports whether the first path element has no dot, which is how
// the go tool tells standard packages apart.
func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
