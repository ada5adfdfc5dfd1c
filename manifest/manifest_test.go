package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[project]
name = "calc"
entry = "main.js"
prelude = ["lib/consts.js", "/abs/extra.js"]

[engine]
stack-size = 48
locals-per-scope = 16
max-scopes = 8
max-parse-depth = 32
analyze = true

[server]
addr = "127.0.0.1:9000"

[cache]
enabled = true
path = "build/cache.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Project.Name != "calc" {
		t.Errorf("project name = %q, want calc", c.Project.Name)
	}
	if c.Engine.StackSize != 48 {
		t.Errorf("stack-size = %d, want 48", c.Engine.StackSize)
	}
	if c.Engine.LocalsPerScope != 16 {
		t.Errorf("locals-per-scope = %d, want 16", c.Engine.LocalsPerScope)
	}
	if c.Engine.MaxScopes != 8 {
		t.Errorf("max-scopes = %d, want 8", c.Engine.MaxScopes)
	}
	if c.Engine.MaxParseDepth != 32 {
		t.Errorf("max-parse-depth = %d, want 32", c.Engine.MaxParseDepth)
	}
	if !c.Engine.Analyze {
		t.Error("analyze = false, want true")
	}
	if c.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("server addr = %q, want 127.0.0.1:9000", c.Server.Addr)
	}
	if !c.Cache.Enabled {
		t.Error("cache enabled = false, want true")
	}

	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
	if got, want := c.EntryPath(), filepath.Join(abs, "main.js"); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
	if got, want := c.CachePath(), filepath.Join(abs, "build", "cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
	paths := c.PreludePaths()
	if len(paths) != 2 {
		t.Fatalf("prelude count = %d, want 2", len(paths))
	}
	if paths[0] != filepath.Join(abs, "lib", "consts.js") {
		t.Errorf("prelude[0] = %q", paths[0])
	}
	if paths[1] != "/abs/extra.js" {
		t.Errorf("prelude[1] = %q, want /abs/extra.js", paths[1])
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[project]
name = "minimal"

[engine]
stack-size = 0
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Engine.StackSize != DefaultStackSize {
		t.Errorf("stack-size = %d, want %d", c.Engine.StackSize, DefaultStackSize)
	}
	if c.Engine.LocalsPerScope != DefaultLocalsPerScope {
		t.Errorf("locals-per-scope = %d, want %d", c.Engine.LocalsPerScope, DefaultLocalsPerScope)
	}
	if c.Engine.MaxScopes != DefaultMaxScopes {
		t.Errorf("max-scopes = %d, want %d", c.Engine.MaxScopes, DefaultMaxScopes)
	}
	if c.Engine.MaxParseDepth != DefaultMaxParseDepth {
		t.Errorf("max-parse-depth = %d, want %d", c.Engine.MaxParseDepth, DefaultMaxParseDepth)
	}
	if c.Server.Addr != DefaultAddr {
		t.Errorf("server addr = %q, want %q", c.Server.Addr, DefaultAddr)
	}
	if c.Cache.Enabled {
		t.Error("cache enabled by default")
	}
	if c.EntryPath() != "" {
		t.Errorf("EntryPath = %q, want empty", c.EntryPath())
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Engine.StackSize != DefaultStackSize || c.Cache.Path != DefaultCachePath {
		t.Errorf("Default() = %+v", c)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[engine\nstack-size = 1", "parse error"},
		{"type", "[engine]\nstack-size = \"big\"", "parse error"},
		{"unknown key", "[engine]\nstack = 1", "unknown key engine.stack"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, tt.content)
		_, err := Load(dir)
		if err == nil {
			t.Errorf("%s: Load succeeded, want error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.want)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[project]\nname = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.Project.Name != "found" {
		t.Fatalf("FindAndLoad = %+v, want project found", c)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("FindAndLoad = %+v, want nil", c)
	}
}
