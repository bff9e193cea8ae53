package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// importsOf returns the imports of every non-test Go file in dir, keyed by
// file name.
func importsOf(t *testing.T, dir string) map[string][]string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}

	fset := token.NewFileSet()
	out := make(map[string][]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}

		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", name, err)
			continue
		}
		for _, imp := range f.Imports {
			out[name] = append(out[name], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return out
}

// TestCoreImportsOnly verifies pkg/core only imports stdlib, the YAML
// decoder and the ordered map snapshot objects decode into. The Golden
// Rule: records carry no behavior beyond decoding.
func TestCoreImportsOnly(t *testing.T) {
	allowedExternal := map[string]bool{
		"gopkg.in/yaml.v3":                 true,
		"github.com/wk8/go-ordered-map/v2": true,
	}

	for file, imports := range importsOf(t, ".") {
		for _, importPath := range imports {
			// stdlib paths have no dot in the first element
			if !strings.Contains(importPath, ".") {
				continue
			}
			if !allowedExternal[importPath] {
				t.Errorf("%s imports forbidden package: %s", file, importPath)
			}
		}
	}
}

// TestCoreDoesNotImportModule verifies pkg/core doesn't import any other
// package of this module, internal or public.
func TestCoreDoesNotImportModule(t *testing.T) {
	for file, imports := range importsOf(t, ".") {
		for _, importPath := range imports {
			if strings.Contains(importPath, "leapstack-labs/defsdb") {
				t.Errorf("%s imports %s (core must stay a leaf package)", file, importPath)
			}
		}
	}
}
