package hash

import "testing"

func TestHashProgram_IgnoresLayout(t *testing.T) {
	pairs := [][2]string{
		{"var a=1+2;", "var a = 1 + 2 ; // sum"},
		{"if(x){y=1}", "if (x) {\n\t/* set */ y = 1\n}"},
		{"a = 'b'", `a = "b";`},
		{"x = 0x10", "x = 16"},
	}

	for _, p := range pairs {
		h1 := HashProgram(parse(t, p[0]))
		h2 := HashProgram(parse(t, p[1]))
		if h1 != h2 {
			t.Errorf("%q and %q hash differently", p[0], p[1])
		}
	}
}

func TestHashProgram_DistinguishesPrograms(t *testing.T) {
	pairs := [][2]string{
		{"var a = 1;", "var b = 1;"},
		{"var a = 1;", "let a = 1;"},
		{"a = 1 + 2", "a = 2 + 1"},
		{"a = 1; b = 2", "b = 2; a = 1"},
		{"a = 1", "a = 1.0"},
		{"x = y", "x == y"},
	}

	for _, p := range pairs {
		h1 := HashProgram(parse(t, p[0]))
		h2 := HashProgram(parse(t, p[1]))
		if h1 == h2 {
			t.Errorf("%q and %q hash the same", p[0], p[1])
		}
	}
}

func TestKey(t *testing.T) {
	key := Key(parse(t, "var a = 1;"))
	if len(key) != 64 {
		t.Errorf("key length = %d, want 64 hex digits", len(key))
	}
	if key != Key(parse(t, "var a = 1")) {
		t.Errorf("key is not stable across layout")
	}
}
