package lexer

import (
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/compiler/token"
)

func allTokens(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New("test.c", src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func TestKeywordsAndIdent(t *testing.T) {
	toks := allTokens(t, "int x while foo")
	want := []token.Kind{token.Int, token.Ident, token.While, token.Ident, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestMultiCharOperatorsPreferLongestMatch(t *testing.T) {
	toks := allTokens(t, "<= >= == != && || << >> ++ -- += -= *= /=")
	want := []token.Kind{
		token.Le, token.Ge, token.Eq, token.Ne, token.AndAnd, token.OrOr,
		token.Shl, token.Shr, token.Inc, token.Dec,
		token.PlusEq, token.MinusEq, token.StarEq, token.SlashEq, token.EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestSingleLessThanIsNotShift(t *testing.T) {
	toks := allTokens(t, "a < b")
	if toks[1].Kind != token.Punct || toks[1].Lit != "<" {
		t.Errorf("expected punct '<', got %+v", toks[1])
	}
}

func TestNumberLiteral(t *testing.T) {
	toks := allTokens(t, "12345")
	if toks[0].Kind != token.Number || toks[0].Num != 12345 {
		t.Errorf("got %+v", toks[0])
	}
}

func TestCharLiteralEscapes(t *testing.T) {
	cases := map[string]int64{
		`'\n'`: '\n', `'\t'`: '\t', `'\r'`: '\r', `'\b'`: '\b',
		`'\\'`: '\\', `'\''`: '\'', `'\0'`: 0, `'a'`: 'a',
	}
	for src, want := range cases {
		toks := allTokens(t, src)
		if toks[0].Kind != token.CharLit || toks[0].Num != want {
			t.Errorf("%s: got %+v, want %d", src, toks[0], want)
		}
	}
}

func TestStringLiteralEscapes(t *testing.T) {
	toks := allTokens(t, `"a\nb\"c"`)
	if toks[0].Kind != token.String {
		t.Fatalf("got %+v", toks[0])
	}
	if toks[0].Lit != "a\nb\"c" {
		t.Errorf("got %q", toks[0].Lit)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := allTokens(t, "int /* comment */ x // trailing\n;")
	want := []token.Kind{token.Int, token.Ident, token.Punct, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens: %+v", len(toks), toks)
	}
}

func TestLineTrackingAcrossComments(t *testing.T) {
	toks := allTokens(t, "int\n/* multi\nline */\nx;")
	// x should be on line 4.
	for _, tok := range toks {
		if tok.Kind == token.Ident {
			if tok.Line != 4 {
				t.Errorf("ident line = %d, want 4", tok.Line)
			}
		}
	}
}

func TestUnterminatedCharLitIsError(t *testing.T) {
	l := New("t.c", "'ab")
	if _, err := l.Next(); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnknownCharacterIsError(t *testing.T) {
	l := New("t.c", "@")
	if _, err := l.Next(); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnrecognizedEscapeStillProducesTheFollowingByte(t *testing.T) {
	toks := allTokens(t, `'\x'`)
	if toks[0].Kind != token.CharLit || toks[0].Num != 'x' {
		t.Errorf("got %+v, want CharLit 'x'", toks[0])
	}
	strToks := allTokens(t, `"a\xb"`)
	if strToks[0].Lit != "axb" {
		t.Errorf("got %q, want %q", strToks[0].Lit, "axb")
	}
}

func TestOverlongIdentifierIsTruncatedToNameSize(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz012345678"
	toks := allTokens(t, long)
	if toks[0].Kind != token.Ident {
		t.Fatalf("got %+v", toks[0])
	}
	if len(toks[0].Lit) != NameSize-1 {
		t.Errorf("got len %d, want %d", len(toks[0].Lit), NameSize-1)
	}
	if toks[0].Lit != long[:NameSize-1] {
		t.Errorf("got %q, want prefix %q", toks[0].Lit, long[:NameSize-1])
	}
}
