package wire

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/vm"
)

func compile(t *testing.T, pool *vm.StringPool, source string) *vm.Bytecode {
	t.Helper()
	bc, _, err := compiler.Compile(source, pool)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return bc
}

func TestBytecode_CBORRoundTrip(t *testing.T) {
	pool := vm.NewStringPool()
	bc := compile(t, pool, `var s = "ab" + 'cd', n = 2.5 * 4, k = -3, big = 4000000000;`)

	data, err := Marshal(bc, "abc123")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(got.Instructions) != len(bc.Instructions) {
		t.Fatalf("Instructions: got %d, want %d", len(got.Instructions), len(bc.Instructions))
	}
	for i := range bc.Instructions {
		if got.Instructions[i] != bc.Instructions[i] {
			t.Errorf("Instructions[%d] = %s, want %s", i, got.Instructions[i], bc.Instructions[i])
		}
	}
	if len(got.Numbers) != len(bc.Numbers) {
		t.Errorf("Numbers: got %d, want %d", len(got.Numbers), len(bc.Numbers))
	}
	if len(got.Strings) != len(bc.Strings) {
		t.Errorf("Strings: got %d, want %d", len(got.Strings), len(bc.Strings))
	}
	if !bytes.Equal(got.StringBuffer, bc.StringBuffer) {
		t.Errorf("StringBuffer: got %q, want %q", got.StringBuffer, bc.StringBuffer)
	}
	if vm.Disassemble(got) != vm.Disassemble(bc) {
		t.Errorf("listing differs:\n%s\nwant\n%s", vm.Disassemble(got), vm.Disassemble(bc))
	}

	f, err := UnmarshalFile(data)
	if err != nil {
		t.Fatalf("UnmarshalFile: %v", err)
	}
	if f.SourceKey != "abc123" {
		t.Errorf("SourceKey = %q, want abc123", f.SourceKey)
	}
}

func TestBytecode_RunsAfterRoundTrip(t *testing.T) {
	src := `var total = 0; for (let i = 1; i <= 10; i++) total += i; var msg = "sum";`

	pool := vm.NewStringPool()
	data, err := Marshal(compile(t, pool, src), "")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	bc, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m := vm.New(vm.NewStringPool())
	if err := m.Execute(context.Background(), bc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, _ := m.Lookup("total"); v.Num() != 55 {
		t.Errorf("total = %v, want 55", v)
	}
	if v, _ := m.Lookup("msg"); v.Text() != "sum" {
		t.Errorf("msg = %v, want sum", v)
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	pool := vm.NewStringPool()
	bc := compile(t, pool, `let a = 1, b = "x"; if (a) b = "y";`)

	first, err := Marshal(bc, "k")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Marshal(bc, "k")
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	good := &File{Version: Version, Instructions: []uint32{uint32(vm.OpPushNull)}}

	tests := []struct {
		name string
		file *File
		want error
	}{
		{"version", &File{Version: 99}, ErrVersion},
		{"opcode", &File{Version: Version, Instructions: []uint32{0xFF}}, vm.ErrBadOpcode},
		{"string range", &File{
			Version: Version,
			Strings: []String{{Hash: 1, Offset: 2, Length: 10}},
			Buffer:  []byte("abc"),
		}, nil},
	}
	for _, tt := range tests {
		data, err := cborEncMode.Marshal(tt.file)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.name, err)
		}
		_, err = Unmarshal(data)
		if err == nil {
			t.Errorf("%s: Unmarshal succeeded, want error", tt.name)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}

	data, err := cborEncMode.Marshal(good)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(data); err != nil {
		t.Errorf("Unmarshal(valid) = %v", err)
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 0x00, 0x13}); err == nil {
		t.Error("Unmarshal(garbage) succeeded, want error")
	}
}
