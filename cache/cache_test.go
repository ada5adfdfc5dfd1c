package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/compiler/hash"
	"github.com/chazu/jsvm/vm"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func compileKeyed(t *testing.T, source string) (string, *vm.Bytecode) {
	t.Helper()
	pool := vm.NewStringPool()
	prog, err := compiler.Parse(source, pool)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer prog.Release()
	bc, err := compiler.NewCodegen().Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return hash.Key(prog), bc
}

func TestStorePutGet(t *testing.T) {
	s := openTemp(t)
	key, bc := compileKeyed(t, `var x = "hi" + "!"; x;`)

	if err := s.Put(key, bc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if vm.Disassemble(got) != vm.Disassemble(bc) {
		t.Errorf("cached listing differs:\n%s\nwant\n%s", vm.Disassemble(got), vm.Disassemble(bc))
	}

	entries, hits, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if entries != 1 || hits != 1 {
		t.Errorf("Stats = %d entries, %d hits, want 1, 1", entries, hits)
	}
}

func TestStoreMiss(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestStoreKeyIgnoresLayout(t *testing.T) {
	s := openTemp(t)
	key, bc := compileKeyed(t, "var a = 1;\nvar b = a + 2;")
	if err := s.Put(key, bc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	other, _ := compileKeyed(t, "var a=1 /* one */; var b=a+2")
	if other != key {
		t.Fatalf("keys differ: %s vs %s", other, key)
	}
	if _, err := s.Get(other); err != nil {
		t.Errorf("Get(reformatted) = %v, want hit", err)
	}
}

func TestStoreReplaceAndClear(t *testing.T) {
	s := openTemp(t)
	_, first := compileKeyed(t, "1;")
	_, second := compileKeyed(t, "2;")

	if err := s.Put("k", first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("k", second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if vm.Disassemble(got) != vm.Disassemble(second) {
		t.Error("Put did not replace the entry")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if entries, _, _ := s.Stats(); entries != 0 {
		t.Errorf("entries after Clear = %d, want 0", entries)
	}
}

func TestStoreDropsCorruptEntries(t *testing.T) {
	s := openTemp(t)
	if _, err := s.db.Exec("INSERT INTO bytecode (key, version, data) VALUES ('bad', 1, x'ff00')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Get("bad"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(bad) error = %v, want ErrNotFound", err)
	}
	if entries, _, _ := s.Stats(); entries != 0 {
		t.Errorf("corrupt entry was kept")
	}
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	key, bc := compileKeyed(t, "let z = 3;")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(key, bc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(key); err != nil {
		t.Errorf("Get after reopen = %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Path() != ":memory:" {
		t.Errorf("Path = %q", s.Path())
	}
}
