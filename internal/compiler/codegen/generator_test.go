package codegen

import (
	"strings"
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/compiler/parser"
)

func compileWith(t *testing.T, target, src string) string {
	t.Helper()
	p, err := parser.New("t.c", src)
	if err != nil {
		t.Fatalf("parser.New() error = %v", err)
	}
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e, ok := Get(target)
	if !ok {
		t.Fatalf("unknown target %q", target)
	}
	gen := New(e, p.Symbols())
	out, err := gen.Generate(prog)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return out
}

func TestRegisteredTargets(t *testing.T) {
	for _, name := range []string{"x64", "arm64"} {
		if _, ok := Get(name); !ok {
			t.Errorf("target %q not registered", name)
		}
	}
	if _, ok := Get("mips"); ok {
		t.Error("unexpected target \"mips\" registered")
	}
}

func TestReturnConstantX64(t *testing.T) {
	out := compileWith(t, "x64", "int main() { return 14; }\n")
	if !strings.Contains(out, "main:") {
		t.Error("missing main label")
	}
	if !strings.Contains(out, "movq $14, %rax") {
		t.Errorf("missing immediate load, got:\n%s", out)
	}
	if !strings.Contains(out, "ret") {
		t.Error("missing ret")
	}
}

func TestReturnConstantARM64(t *testing.T) {
	out := compileWith(t, "arm64", "int main() { return 14; }\n")
	if !strings.Contains(out, "movz x0, #14") {
		t.Errorf("missing movz, got:\n%s", out)
	}
	if !strings.Contains(out, "ret") {
		t.Error("missing ret")
	}
}

func TestArithmeticExpression(t *testing.T) {
	// spec scenario: exit code 14 from arithmetic.
	out := compileWith(t, "x64", "int main() { return 2 + 3 * 4; }\n")
	if !strings.Contains(out, "imulq") || !strings.Contains(out, "addq") {
		t.Errorf("expected multiply and add, got:\n%s", out)
	}
}

func TestRecursiveFunctionCall(t *testing.T) {
	src := `int fib(int n) {
		if (n < 2) return n;
		return fib(n - 1) + fib(n - 2);
	}
	`
	out := compileWith(t, "x64", src)
	if !strings.Contains(out, "call fib") {
		t.Errorf("expected recursive call, got:\n%s", out)
	}
	if strings.Count(out, "call fib") != 2 {
		t.Errorf("expected 2 calls to fib, got %d", strings.Count(out, "call fib"))
	}
}

func TestGlobalArrayInBSS(t *testing.T) {
	out := compileWith(t, "x64", "int nums[10];\nint main() { return nums[3]; }\n")
	if !strings.Contains(out, ".bss") || !strings.Contains(out, ".zero 80") {
		t.Errorf("expected 80-byte bss array, got:\n%s", out)
	}
}

func TestGlobalScalarInitInData(t *testing.T) {
	out := compileWith(t, "x64", "int counter = 10;\nint main() { return counter; }\n")
	if !strings.Contains(out, ".data") || !strings.Contains(out, ".quad 10") {
		t.Errorf("expected initialized data, got:\n%s", out)
	}
}

func TestStringLiteralPooled(t *testing.T) {
	out := compileWith(t, "x64", `int puts(char *s);
	int main() { puts("Hi\n"); return 0; }
	`)
	if !strings.Contains(out, `.ascii "Hi\n\0"`) {
		t.Errorf("expected pooled string literal, got:\n%s", out)
	}
	if !strings.Contains(out, "call puts") {
		t.Error("expected call to puts")
	}
}

func TestWhileLoopHasBackEdge(t *testing.T) {
	src := "int f(int n) { int s; s = 0; while (n) { s = s + n; n = n - 1; } return s; }\n"
	out := compileWith(t, "arm64", src)
	if strings.Count(out, "cbz") < 1 {
		t.Errorf("expected cbz branch, got:\n%s", out)
	}
}

func TestForLoopContinueGoesToPost(t *testing.T) {
	src := "int f() { int i; int s; for (i = 0; i < 5; i = i + 1) { if (i == 2) continue; s = s + i; } return s; }\n"
	out := compileWith(t, "x64", src)
	if !strings.Contains(out, "jmp") {
		t.Errorf("expected jump back to loop head, got:\n%s", out)
	}
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	p, err := parser.New("t.c", "int f() { break; return 0; }\n")
	if err != nil {
		t.Fatalf("parser.New() error = %v", err)
	}
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e, _ := Get("x64")
	gen := New(e, p.Symbols())
	if _, err := gen.Generate(prog); err == nil {
		t.Fatal("expected error for break outside loop")
	}
}

func TestArrayIndexAssignment(t *testing.T) {
	out := compileWith(t, "x64", "int a[5]; int f() { a[1] = 9; return a[1]; }\n")
	if !strings.Contains(out, "imulq $8, %rax, %rax") {
		t.Errorf("expected scaled index, got:\n%s", out)
	}
}

func TestPointerDerefUsesByteWidthForChar(t *testing.T) {
	out := compileWith(t, "x64", "int f(char *p) { return *p; }\n")
	if !strings.Contains(out, "movsbq (%rax), %rax") {
		t.Errorf("expected sign-extended byte load, got:\n%s", out)
	}
}
