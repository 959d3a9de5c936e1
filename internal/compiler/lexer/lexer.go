// Package lexer implements the Small-C hand-written, one-character-lookahead
// lexer, grounded on original_source/scc_enhanced.c's gettoken().
package lexer

import (
	"strings"

	"github.com/secwest/small-c-x64-arm/internal/compiler/token"
	"github.com/secwest/small-c-x64-arm/internal/diag"
)

// Lexer scans a complete source buffer (the preprocessor has already joined
// all input into one in-memory text) into tokens on demand.
type Lexer struct {
	file string
	src  string
	pos  int
	line int
}

// New creates a Lexer over src, attributing diagnostics to file.
func New(file, src string) *Lexer {
	return &Lexer{file: file, src: src, line: 1}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	c := l.peek()
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

func (l *Lexer) errf(format string, args ...any) error {
	return diag.Errorf(l.file, l.line, format, args...)
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		for l.peek() == ' ' || l.peek() == '\t' || l.peek() == '\n' || l.peek() == '\r' {
			l.advance()
		}
		if l.peek() == '/' && l.peekAt(1) == '/' {
			for l.peek() != 0 && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		if l.peek() == '/' && l.peekAt(1) == '*' {
			l.advance()
			l.advance()
			for !(l.peek() == 0) && !(l.peek() == '*' && l.peekAt(1) == '/') {
				l.advance()
			}
			if l.peek() == 0 {
				return l.errf("unterminated block comment")
			}
			l.advance()
			l.advance()
			continue
		}
		return nil
	}
}

// NameSize caps how many bytes of an identifier the rest of the toolchain
// keeps; scc_enhanced.c's gettoken() defines the same NAMESIZE (32) but
// truncates silently by simply stopping the copy loop at NAMESIZE-1. This
// lexer keeps the same cutoff but warns instead of truncating quietly.
const NameSize = 32

var escapes = map[byte]int64{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'b':  '\b',
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
	'0':  0,
}

// Next returns the next token, or an error for malformed literals or
// unrecognized characters. Diagnostics are the caller's responsibility to
// make fatal (per spec.md §7).
func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	line := l.line
	if l.peek() == 0 {
		return token.Token{Kind: token.EOF, Line: line}, nil
	}

	c := l.peek()

	if c == '\'' {
		return l.lexCharLit(line)
	}
	if c == '"' {
		return l.lexString(line)
	}
	if isDigit(c) {
		return l.lexNumber(line), nil
	}
	if isAlpha(c) || c == '_' {
		return l.lexIdent(line), nil
	}
	return l.lexOperator(line)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }

func (l *Lexer) lexCharLit(line int) (token.Token, error) {
	l.advance() // '\''
	var val int64
	if l.peek() == '\\' {
		l.advance()
		e := l.advance()
		if v, ok := escapes[e]; ok {
			val = v
		} else {
			diag.Warnf(l.file, line, "unrecognized escape sequence '\\%c' in character constant", e)
			val = int64(e)
		}
	} else {
		val = int64(l.advance())
	}
	if l.peek() != '\'' {
		return token.Token{}, l.errf("unterminated character constant")
	}
	l.advance()
	return token.Token{Kind: token.CharLit, Num: val, Line: line}, nil
}

func (l *Lexer) lexString(line int) (token.Token, error) {
	l.advance() // '"'
	var sb strings.Builder
	for l.peek() != 0 && l.peek() != '"' {
		c := l.advance()
		if c == '\\' {
			e := l.advance()
			if v, ok := escapes[e]; ok {
				sb.WriteByte(byte(v))
			} else {
				diag.Warnf(l.file, line, "unrecognized escape sequence '\\%c' in string literal", e)
				sb.WriteByte(e)
			}
			continue
		}
		sb.WriteByte(c)
	}
	if l.peek() != '"' {
		return token.Token{}, l.errf("unterminated string literal")
	}
	l.advance()
	return token.Token{Kind: token.String, Lit: sb.String(), Line: line}, nil
}

func (l *Lexer) lexNumber(line int) token.Token {
	var val int64
	for isDigit(l.peek()) {
		val = val*10 + int64(l.advance()-'0')
	}
	return token.Token{Kind: token.Number, Num: val, Line: line}
}

func (l *Lexer) lexIdent(line int) token.Token {
	start := l.pos
	for isAlnum(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	name := l.src[start:l.pos]
	if k, ok := token.Lookup(name); ok {
		return token.Token{Kind: k, Lit: name, Line: line}
	}
	if len(name) > NameSize-1 {
		diag.Warnf(l.file, line, "identifier %q exceeds %d characters, truncated to %q", name, NameSize-1, name[:NameSize-1])
		name = name[:NameSize-1]
	}
	return token.Token{Kind: token.Ident, Lit: name, Line: line}
}

// twoCharOps maps a two-byte sequence to its token kind, checked before
// falling back to single-char punctuators (spec.md §4.B: "multi-char
// first").
var twoCharOps = map[[2]byte]token.Kind{
	{'=', '='}: token.Eq,
	{'!', '='}: token.Ne,
	{'<', '='}: token.Le,
	{'>', '='}: token.Ge,
	{'<', '<'}: token.Shl,
	{'>', '>'}: token.Shr,
	{'&', '&'}: token.AndAnd,
	{'|', '|'}: token.OrOr,
	{'+', '+'}: token.Inc,
	{'-', '-'}: token.Dec,
	{'+', '='}: token.PlusEq,
	{'-', '='}: token.MinusEq,
	{'*', '='}: token.StarEq,
	{'/', '='}: token.SlashEq,
}

const singleCharPuncts = "+-*/%&|^~!<>()[]{}.,;=:"

func (l *Lexer) lexOperator(line int) (token.Token, error) {
	c := l.advance()
	if l.peek() != 0 {
		if k, ok := twoCharOps[[2]byte{c, l.peek()}]; ok {
			l.advance()
			return token.Token{Kind: k, Line: line}, nil
		}
	}
	if strings.IndexByte(singleCharPuncts, c) >= 0 {
		return token.Token{Kind: token.Punct, Lit: string(c), Line: line}, nil
	}
	return token.Token{}, l.errf("unknown character %q", c)
}
