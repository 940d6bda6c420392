package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleFile = `
functions:
  - oid: 16384
    name: double_it
    args:
      - {name: n, type: int4}
    returns: int4
    source: |
      return n * 2;
  - oid: 16385
    name: greet
    args:
      - {name: who, type: text}
      - {name: loud, type: boolean}
    returns: text
    source: |
      import java.util.ArrayList;
      print who;
  - oid: 16386
    name: log_only
    source: print 1;
`

func TestParseFile(t *testing.T) {
	funcs, err := ParseFile([]byte(sampleFile))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(funcs) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(funcs))
	}

	greet := funcs[1]
	if greet.Args[0].Type != Text || greet.Args[1].Type != Bool {
		t.Errorf("unexpected argument types %+v", greet.Args)
	}
	if !strings.HasPrefix(greet.Source, "import java.util.ArrayList;") {
		t.Errorf("unexpected source %q", greet.Source)
	}
	if funcs[2].Returns != Void {
		t.Errorf("missing return type should default to void, got %v", funcs[2].Returns)
	}
}

func TestParseFileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing oid", "functions:\n  - name: f\n", "oid is required"},
		{"missing name", "functions:\n  - oid: 1\n", "name is required"},
		{"duplicate oid", "functions:\n  - {oid: 1, name: a}\n  - {oid: 1, name: b}\n", "used by both"},
		{"unknown type", "functions:\n  - {oid: 1, name: a, returns: money}\n", "unknown type"},
		{"not yaml", "functions: [", "parse catalog file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleFile), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	fn, err := m.Lookup(context.Background(), 16384)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if strings.TrimSpace(fn.Source) != "return n * 2;" {
		t.Errorf("unexpected source %q", fn.Source)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
