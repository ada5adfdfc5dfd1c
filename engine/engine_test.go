package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/jsvm/cache"
	"github.com/chazu/jsvm/manifest"
	"github.com/chazu/jsvm/vm"
)

func TestRun(t *testing.T) {
	e := New(nil)
	res, err := e.Run(context.Background(), `var a = 2, b = "x"; a * 21;`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Completion.Num() != 42 {
		t.Errorf("Completion = %v, want 42", res.Completion)
	}
	if got := res.Globals["b"]; got.Text() != "x" {
		t.Errorf("b = %v, want x", got)
	}
	if v, ok := e.Lookup("a"); !ok || v.Num() != 2 {
		t.Errorf("Lookup(a) = %v, %v", v, ok)
	}
}

func TestRunDropsBindingsUnlessPersistent(t *testing.T) {
	ctx := context.Background()

	e := New(nil)
	if _, err := e.Run(ctx, "var kept = 1;"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(ctx, "1;"); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Lookup("kept"); ok {
		t.Error("binding survived a non-persistent run")
	}

	p := New(nil, WithPersistent())
	if _, err := p.Run(ctx, "var kept = 1;"); err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(ctx, "kept + 1;")
	if err != nil {
		t.Fatal(err)
	}
	if res.Completion.Num() != 2 {
		t.Errorf("Completion = %v, want 2", res.Completion)
	}
}

func TestRunReleasesRuntimeStrings(t *testing.T) {
	e := New(nil, WithPersistent())
	src := `var s = ""; for (var i = 0; i < 2000; i++) { s = "a" + "b"; }`
	if _, err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	pool := e.Pool()
	if got := pool.Refs("ab"); got != 1 {
		t.Errorf("Refs(ab) = %d, want 1", got)
	}
	for _, text := range []string{"a", "b", ""} {
		if pool.Contains(text) {
			t.Errorf("pool still holds %q after the run", text)
		}
	}

	// overwriting the only binding frees the old text
	if _, err := e.Run(context.Background(), `s = "c" + "d";`); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pool.Contains("ab") || pool.Refs("cd") != 1 {
		t.Errorf("Refs(ab) = %d, Refs(cd) = %d, want 0 and 1", pool.Refs("ab"), pool.Refs("cd"))
	}

	e.Reset()
	if pool.Len() != 0 {
		t.Errorf("pool holds %d entries after Reset, want 0", pool.Len())
	}
}

func TestResultOutlivesNextRun(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	first, err := e.Run(ctx, `var s = "a" + "b"; s;`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := e.Run(ctx, "var x = 1;"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := first.Globals["s"].Text(); got != "ab" {
		t.Errorf("first.Globals[s] = %q after a second run, want \"ab\"", got)
	}
	if got := first.Completion.Text(); got != "ab" {
		t.Errorf("first.Completion = %q after a second run, want \"ab\"", got)
	}
}

func TestParseError(t *testing.T) {
	e := New(nil)
	_, err := e.RunNamed(context.Background(), "bad.js", "var a = ;\nx = (1;")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if len(perr.Diagnostics) == 0 {
		t.Fatal("no diagnostics")
	}
	if !strings.HasPrefix(err.Error(), "bad.js:1:9: ") {
		t.Errorf("Error() = %q, want bad.js:1:9 prefix", err.Error())
	}
	if e.Pool().Len() != 0 {
		t.Errorf("pool has %d entries after a failed parse", e.Pool().Len())
	}
}

func TestCheckSyntax(t *testing.T) {
	e := New(nil)
	if diags := e.CheckSyntax("let ok = 1;"); len(diags) != 0 {
		t.Errorf("CheckSyntax(valid) = %v", diags)
	}
	diags := e.CheckSyntax("\n  if (")
	if len(diags) == 0 {
		t.Fatal("CheckSyntax(invalid) = none")
	}
	if diags[0].Pos.Line != 2 {
		t.Errorf("line = %d, want 2", diags[0].Pos.Line)
	}
}

func TestRuntimeError(t *testing.T) {
	cfg := manifest.Default()
	cfg.Engine.MaxScopes = 2
	e := New(cfg)
	_, err := e.Run(context.Background(), "{ { { var deep = 1; } } }")
	if !errors.Is(err, vm.ErrCapacityExceeded) {
		t.Errorf("error = %v, want ErrCapacityExceeded", err)
	}
}

func TestMaxParseDepth(t *testing.T) {
	cfg := manifest.Default()
	cfg.Engine.MaxParseDepth = 8
	e := New(cfg)
	_, err := e.Run(context.Background(), strings.Repeat("(", 20)+"1"+strings.Repeat(")", 20))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestCancel(t *testing.T) {
	e := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Run(ctx, "for (;;) {}")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestAnalyzeWarnings(t *testing.T) {
	cfg := manifest.Default()
	cfg.Engine.Analyze = true
	e := New(cfg, WithPersistent())
	ctx := context.Background()

	res, err := e.Run(ctx, "var known = 1; missing;")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "'missing'") {
		t.Errorf("Warnings = %v, want one about missing", res.Warnings)
	}

	// bindings from earlier runs count as declared
	res, err = e.Run(ctx, "known;")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
}

func TestCompileWarningsWithoutAnalysis(t *testing.T) {
	e := New(nil)
	res, err := e.Run(context.Background(), "var r = f(1);")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one codegen warning", res.Warnings)
	}
}

func TestDisassembleAndDump(t *testing.T) {
	e := New(nil)
	listing, err := e.Disassemble("var a = 1;")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(listing, "initialize") {
		t.Errorf("listing missing initialize:\n%s", listing)
	}
	dump, err := e.DumpAST("var a = 1;")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dump, "VariableDeclaration") {
		t.Errorf("dump missing VariableDeclaration:\n%s", dump)
	}
}

func TestCache(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	e := New(nil, WithCache(store))
	ctx := context.Background()

	first, err := e.Run(ctx, "var n = 6 * 7;")
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first run reported a cache hit")
	}
	second, err := e.Run(ctx, "var n=6*7 // same tree")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second run missed the cache")
	}
	if v, _ := e.Lookup("n"); v.Num() != 42 {
		t.Errorf("n = %v, want 42", v)
	}

	entries, hits, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if entries != 1 || hits != 1 {
		t.Errorf("Stats = %d entries, %d hits, want 1, 1", entries, hits)
	}
}

func TestRunPrelude(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "consts.js"), []byte("var answer = 42;"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := manifest.Default()
	cfg.Dir = dir
	cfg.Project.Prelude = []string{"consts.js"}

	e := New(cfg, WithPersistent())
	if err := e.RunPrelude(context.Background()); err != nil {
		t.Fatalf("RunPrelude: %v", err)
	}
	res, err := e.Run(context.Background(), "answer / 2;")
	if err != nil {
		t.Fatal(err)
	}
	if res.Completion.Num() != 21 {
		t.Errorf("Completion = %v, want 21", res.Completion)
	}

	cfg.Project.Prelude = []string{"missing.js"}
	if err := New(cfg).RunPrelude(context.Background()); err == nil {
		t.Error("RunPrelude with a missing file succeeded")
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.js")
	if err := os.WriteFile(path, []byte("var s = 'a' + 'b';"), 0644); err != nil {
		t.Fatal(err)
	}
	e := New(nil)
	if _, err := e.RunFile(context.Background(), path); err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if v, _ := e.Lookup("s"); v.Text() != "ab" {
		t.Errorf("s = %v, want ab", v)
	}
}
