package hash

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/chazu/jsvm/compiler"
	"github.com/chazu/jsvm/vm"
)

func parse(t *testing.T, source string) *compiler.Program {
	t.Helper()
	prog, err := compiler.Parse(source, vm.NewStringPool())
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	t.Cleanup(prog.Release)
	return prog
}

func TestSerialize_Deterministic(t *testing.T) {
	prog := parse(t, "var a = 1; for (;;) { a += 2; if (a > 9) break; }")

	data1 := Serialize(prog)
	data2 := Serialize(prog)

	if string(data1) != string(data2) {
		t.Error("serialization is not deterministic")
	}
}

func TestSerialize_VersionPrefix(t *testing.T) {
	data := Serialize(&compiler.EmptyStatement{})

	if len(data) < 1 {
		t.Fatal("empty serialization")
	}
	if data[0] != HashVersion {
		t.Errorf("version prefix: got 0x%02X, want 0x%02X", data[0], HashVersion)
	}
}

func TestSerialize_IntegerLiteral(t *testing.T) {
	data := Serialize(&compiler.Literal{Value: compiler.LitInteger(-12345)})

	// version(1) + tag(1) + int32(4) = 6
	if len(data) != 6 {
		t.Fatalf("length: got %d, want 6", len(data))
	}
	if data[1] != TagIntegerLiteral {
		t.Errorf("tag: got 0x%02X, want 0x%02X", data[1], TagIntegerLiteral)
	}
	v := int32(binary.BigEndian.Uint32(data[2:6]))
	if v != -12345 {
		t.Errorf("value: got %d, want -12345", v)
	}
}

func TestSerialize_FloatLiteral(t *testing.T) {
	data := Serialize(&compiler.Literal{Value: compiler.LitFloat(3.14)})

	// version(1) + tag(1) + float64(8) = 10
	if len(data) != 10 {
		t.Fatalf("length: got %d, want 10", len(data))
	}
	bits := binary.BigEndian.Uint64(data[2:10])
	v := math.Float64frombits(bits)
	if v != 3.14 {
		t.Errorf("value: got %f, want 3.14", v)
	}
}

func TestSerialize_StringLiteral(t *testing.T) {
	prog := parse(t, `"hello"`)
	lit := prog.Body[0].(*compiler.ExpressionStatement).Expression
	data := Serialize(lit)

	// version(1) + tag(1) + len(4) + "hello"(5) = 11
	if len(data) != 11 {
		t.Fatalf("length: got %d, want 11", len(data))
	}
	strLen := binary.BigEndian.Uint32(data[2:6])
	if strLen != 5 {
		t.Errorf("string length: got %d, want 5", strLen)
	}
	if string(data[6:11]) != "hello" {
		t.Errorf("string value: got %q, want %q", string(data[6:11]), "hello")
	}
}

func TestSerialize_BooleanLiteral(t *testing.T) {
	dataTrue := Serialize(&compiler.Literal{Value: compiler.LitBoolean(true)})
	dataFalse := Serialize(&compiler.Literal{Value: compiler.LitBoolean(false)})

	// version(1) + tag(1) + bool(1) = 3
	if len(dataTrue) != 3 || len(dataFalse) != 3 {
		t.Fatalf("lengths: true=%d false=%d, want 3", len(dataTrue), len(dataFalse))
	}
	if dataTrue[2] != 1 {
		t.Errorf("true: got %d, want 1", dataTrue[2])
	}
	if dataFalse[2] != 0 {
		t.Errorf("false: got %d, want 0", dataFalse[2])
	}
}

func TestSerialize_AbsentChildren(t *testing.T) {
	data := Serialize(&compiler.ForLoopStatement{Body: &compiler.EmptyStatement{}})

	want := []byte{HashVersion, TagFor, TagAbsent, TagAbsent, TagAbsent, TagEmpty}
	if string(data) != string(want) {
		t.Errorf("got % X, want % X", data, want)
	}
}

func TestSerialize_DifferentNodesDiffer(t *testing.T) {
	sources := []string{
		"1", "-1", "1.5", "'1'", "true", "null", "undefined",
		"x", "this", "new.target", "[x]", "({x})", "x.y", "x[y]", "x?.y",
		"f(x)", "new F(x)", "(x, y)", "-x", "!x", "x ? y : z",
		"x + y", "x - y", "x = y", "x += y",
		"var x", "let x", "const x = 1", "{ x }", "if (x) y", "if (x) y; else z",
		"while (x) y", "for (;;) x", "return x", "l: x",
		"function f() {}", "function* f() {}", ";",
	}

	seen := make(map[string]string)
	for _, src := range sources {
		data := string(Serialize(parse(t, src)))
		if prev, ok := seen[data]; ok {
			t.Errorf("%q and %q produce identical serializations", prev, src)
		}
		seen[data] = src
	}
}
