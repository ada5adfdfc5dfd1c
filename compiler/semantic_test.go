package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/jsvm/vm"
)

func analyze(t *testing.T, source string, globals ...string) []string {
	t.Helper()
	pool := vm.NewStringPool()
	prog, err := Parse(source, pool)
	if err != nil {
		t.Fatalf("parse errors: %v", err)
	}
	defer prog.Release()
	return Analyze(prog, globals)
}

func hasMessage(msgs []string, parts ...string) bool {
	for _, m := range msgs {
		ok := true
		for _, p := range parts {
			if !strings.Contains(m, p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestSemanticAnalyzer_UndefinedVariable(t *testing.T) {
	warnings := analyze(t, "var a = 1;\nb + a;")
	if !hasMessage(warnings, "warning: 2:1:", "'b'", "may be undefined") {
		t.Errorf("expected warning about b, got: %v", warnings)
	}
	if hasMessage(warnings, "'a'") {
		t.Errorf("unexpected warning about a: %v", warnings)
	}
}

func TestSemanticAnalyzer_DefinedVariable(t *testing.T) {
	tests := []string{
		"let x = 1; x;",
		"x = 1; x;",
		"for (var i = 0; i < 3; i++) { i; }",
		"{ let y = 2; { y; } }",
		"function f(p) { return p; }",
		"x = function g(n) { return g(n); };",
		"o = { set v(a) { a; } };",
		"typeof missing;",
		"undefined; NaN; Infinity;",
		"o = {}; o.missing; o?.other;",
	}
	for _, src := range tests {
		if warnings := analyze(t, src); len(warnings) != 0 {
			t.Errorf("Analyze(%q) = %v, want none", src, warnings)
		}
	}
}

func TestSemanticAnalyzer_KnownGlobals(t *testing.T) {
	if warnings := analyze(t, "host + 1;", "host"); len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if warnings := analyze(t, "host + 1;"); len(warnings) != 1 {
		t.Errorf("warnings = %v, want 1", warnings)
	}
}

func TestSemanticAnalyzer_BlockScope(t *testing.T) {
	warnings := analyze(t, "{ let inner = 1; } inner;")
	if !hasMessage(warnings, "'inner'", "may be undefined") {
		t.Errorf("expected warning about inner outside its block, got: %v", warnings)
	}
}

func TestSemanticAnalyzer_CompoundAssignmentReads(t *testing.T) {
	warnings := analyze(t, "total += 1;")
	if !hasMessage(warnings, "'total'", "may be undefined") {
		t.Errorf("expected warning about total, got: %v", warnings)
	}
}

func TestSemanticAnalyzer_ConstAssignment(t *testing.T) {
	errors := analyze(t, "const k = 1;\nk = 2;")
	if !hasMessage(errors, "2:1:", "cannot assign to constant 'k'") {
		t.Errorf("expected const assignment error, got: %v", errors)
	}
	if hasMessage(errors, "warning:") {
		t.Errorf("const assignment should be an error, got: %v", errors)
	}

	// a shadowing let is assignable
	if errors := analyze(t, "const k = 1; { let k = 2; k = 3; }"); len(errors) != 0 {
		t.Errorf("errors = %v, want none", errors)
	}
}

func TestSemanticAnalyzer_Redeclaration(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"var a; var a;", false},
		{"let a; let a;", true},
		{"var a; const a = 1;", true},
		{"let a, a;", true},
		{"let a; { let a; }", false},
	}
	for _, tt := range tests {
		got := hasMessage(analyze(t, tt.src), "already declared")
		if got != tt.want {
			t.Errorf("Analyze(%q) redeclaration = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestSemanticAnalyzer_UnreachableCode(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"return 1;\nx = 2;", "2:1: unreachable code after return"},
		{"while (true) { break; x = 1; }", "unreachable code after break"},
		{"for (;;) { continue; x = 1; }", "unreachable code after continue"},
		{"function f() { return; 1; }", "unreachable code after return"},
	}
	for _, tt := range tests {
		warnings := analyze(t, tt.src)
		if !hasMessage(warnings, tt.want) {
			t.Errorf("Analyze(%q) = %v, want %q", tt.src, warnings, tt.want)
		}
	}
}

func TestSemanticAnalyzer_UnreachableWarnsOnce(t *testing.T) {
	warnings := analyze(t, "return; a = 1; b = 2;")
	count := 0
	for _, w := range warnings {
		if strings.Contains(w, "unreachable") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("unreachable warnings = %d, want 1: %v", count, warnings)
	}
}

func TestSemanticAnalyzer_ReturnAtEndIsFine(t *testing.T) {
	if warnings := analyze(t, "x = 1; return x; ;"); len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestSemanticAnalyzer_NilProgram(t *testing.T) {
	if got := Analyze(nil, nil); len(got) != 0 {
		t.Errorf("Analyze(nil) = %v, want none", got)
	}
}

func TestSemanticAnalyzer_Findings(t *testing.T) {
	pool := vm.NewStringPool()
	prog, err := Parse("const k = 1;\n  k = q;", pool)
	if err != nil {
		t.Fatalf("parse errors: %v", err)
	}
	defer prog.Release()

	a := NewSemanticAnalyzer()
	a.AnalyzeProgram(prog)
	findings := a.Findings()
	if len(findings) != 2 {
		t.Fatalf("findings = %v, want 2", findings)
	}
	// the right side is checked before the target
	if !findings[0].Warning || findings[0].Pos.Line != 2 || findings[0].Pos.Column != 7 {
		t.Errorf("findings[0] = %+v, want warning at 2:7", findings[0])
	}
	if findings[1].Warning || findings[1].Pos.Column != 3 {
		t.Errorf("findings[1] = %+v, want error at 2:3", findings[1])
	}
}
