package assembler

import "testing"

type fakeResolver struct {
	syms   map[string]int64
	offset int64
}

func (f fakeResolver) lookupSymbol(name string) (int64, bool) {
	v, ok := f.syms[name]
	return v, ok
}
func (f fakeResolver) currentOffset() int64 { return f.offset }

func TestEvalExprConstantArithmetic(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	cases := map[string]int64{
		"1+2*3":        7,
		"(1+2)*3":      9,
		"8/2-1":        3,
		"1<<4":         16,
		"0xFF & 0x0F":  0x0F,
		"5 % 3":        2,
		"~0":           -1,
		"-5+10":        5,
	}
	for expr, want := range cases {
		v, err := evalExpr(expr, r)
		if err != nil {
			t.Fatalf("evalExpr(%q): %v", expr, err)
		}
		if v.Sym != "" || v.Const != want {
			t.Fatalf("evalExpr(%q) = %+v, want const %d", expr, v, want)
		}
	}
}

func TestEvalExprResolvesKnownConstant(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{"FOO": 42}}
	v, err := evalExpr("FOO+1", r)
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if v.Sym != "" || v.Const != 43 {
		t.Fatalf("got %+v, want const 43", v)
	}
}

func TestEvalExprCarriesUnresolvedSymbolWithAddend(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	v, err := evalExpr("msg+4", r)
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if v.Sym != "msg" || v.Const != 4 {
		t.Fatalf("got %+v, want Sym=msg Const=4", v)
	}
}

func TestEvalExprRejectsTwoSymbols(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	if _, err := evalExpr("a+b", r); err == nil {
		t.Fatalf("expected error combining two unresolved symbols")
	}
}

func TestEvalExprRejectsSubtractingSymbol(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	if _, err := evalExpr("4-msg", r); err == nil {
		t.Fatalf("expected error subtracting a symbol")
	}
}

func TestEvalExprRejectsUnaryOnSymbol(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	if _, err := evalExpr("-msg", r); err == nil {
		t.Fatalf("expected error negating a symbol")
	}
}

func TestEvalExprCurrentOffsetToken(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}, offset: 100}
	v, err := evalExpr("$+8", r)
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if v.Const != 108 {
		t.Fatalf("got %+v, want 108", v)
	}
}

func TestEvalExprCharLiteral(t *testing.T) {
	r := fakeResolver{syms: map[string]int64{}}
	v, err := evalExpr("'A'", r)
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if v.Const != 65 {
		t.Fatalf("got %d, want 65", v.Const)
	}
}
