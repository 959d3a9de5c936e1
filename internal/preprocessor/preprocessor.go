// Package preprocessor implements the Small-C text-to-text macro expander:
// object-like and function-like #define, #undef, #include with a bounded
// include stack, #ifdef/#ifndef/#else/#endif conditional compilation, and
// #error. It is line-oriented and grounded on the reference sppe.c
// behavior, except that a macro's name is not re-expanded inside its own
// expansion.
package preprocessor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits from spec.md §4.A / original_source/sppe.c.
const (
	MaxIncludes = 16
	MaxIfStack  = 32
)

// macro is one #define entry. Params == nil means object-like.
type macro struct {
	name   string
	params []string
	body   string
}

func (m *macro) isFunctionLike() bool { return m.params != nil }

// includeFrame tracks one level of the include stack for diagnostics.
type includeFrame struct {
	name string
	line int
}

// Preprocessor holds all mutable state for one run: the macro table, the
// include stack, and the conditional-compilation stack.
type Preprocessor struct {
	macros   map[string]*macro
	order    []string // insertion order, for deterministic #undef/redefine semantics
	includes []includeFrame
	ifStack  []bool // each entry: "was already skipping" state pushed by ifdef/ifndef
	skipping bool
	out      *bufio.Writer

	// expanding tracks macro names currently being expanded, to suppress
	// immediate self-recursion (spec.md §9 "Macro recursion").
	expanding map[string]bool
}

// New creates a Preprocessor with the predefined __SMALLC__ macro set, as
// sppe.c's main() does before processing the first file.
func New(out io.Writer) *Preprocessor {
	p := &Preprocessor{
		macros:    make(map[string]*macro),
		expanding: make(map[string]bool),
		out:       bufio.NewWriter(out),
	}
	p.define(&macro{name: "__SMALLC__", body: "1"})
	return p
}

// Run preprocesses the named top-level file and flushes all output.
func (p *Preprocessor) Run(path string) error {
	if err := p.processFile(path); err != nil {
		return err
	}
	if len(p.ifStack) > 0 {
		return fmt.Errorf("%s: unterminated #ifdef/#ifndef", path)
	}
	return p.out.Flush()
}

func (p *Preprocessor) define(m *macro) {
	if _, exists := p.macros[m.name]; !exists {
		p.order = append(p.order, m.name)
	}
	p.macros[m.name] = m
}

func (p *Preprocessor) undefine(name string) {
	delete(p.macros, name)
}

func (p *Preprocessor) lookup(name string) (*macro, bool) {
	m, ok := p.macros[name]
	return m, ok
}

func (p *Preprocessor) curFile() string {
	if len(p.includes) == 0 {
		return ""
	}
	return p.includes[len(p.includes)-1].name
}

func (p *Preprocessor) curLine() int {
	if len(p.includes) == 0 {
		return 0
	}
	return p.includes[len(p.includes)-1].line
}

func (p *Preprocessor) errf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", p.curFile(), p.curLine(), fmt.Sprintf(format, args...))
}

func (p *Preprocessor) processFile(path string) error {
	if len(p.includes) >= MaxIncludes {
		return p.errf("too many nested includes (max %d)", MaxIncludes)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open include file: %s: %w", path, err)
	}
	defer f.Close()

	p.includes = append(p.includes, includeFrame{name: path, line: 0})
	defer func() { p.includes = p.includes[:len(p.includes)-1] }()

	return p.processReader(f)
}

func (p *Preprocessor) processReader(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var pending strings.Builder
	for sc.Scan() {
		p.includes[len(p.includes)-1].line++
		line := sc.Text()

		// Trailing backslash splices with the next physical line before any
		// directive/macro processing (spec.md §4.A).
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			continue
		}
		pending.WriteString(line)
		full := pending.String()
		pending.Reset()

		if err := p.processLine(full); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if pending.Len() > 0 {
		return p.processLine(pending.String())
	}
	return nil
}

func (p *Preprocessor) processLine(line string) error {
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") {
		return p.processDirective(strings.TrimLeft(trimmed[1:], " \t"))
	}
	if p.skipping {
		return nil
	}
	expanded, err := p.substitute(line)
	if err != nil {
		return err
	}
	p.out.WriteString(expanded)
	p.out.WriteByte('\n')
	return nil
}

func (p *Preprocessor) processDirective(rest string) error {
	word, arg := splitDirective(rest)
	switch {
	case word == "include" && !p.skipping:
		return p.doInclude(arg)
	case word == "define" && !p.skipping:
		return p.doDefine(arg)
	case word == "undef" && !p.skipping:
		name, _ := splitDirective(arg)
		p.undefine(name)
		return nil
	case word == "ifdef":
		return p.doIfdef(arg, true)
	case word == "ifndef":
		return p.doIfdef(arg, false)
	case word == "else":
		return p.doElse()
	case word == "endif":
		return p.doEndif()
	case word == "error" && !p.skipping:
		return p.errf("#error %s", arg)
	default:
		return nil
	}
}

func splitDirective(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	for i < len(s) && !isSpace(s[i]) && s[i] != '(' {
		i++
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' }

func (p *Preprocessor) doInclude(arg string) error {
	arg = strings.TrimLeft(arg, " \t")
	if len(arg) == 0 || arg[0] != '"' {
		return p.errf("expected \"path\" after #include")
	}
	end := strings.IndexByte(arg[1:], '"')
	if end < 0 {
		return p.errf("unterminated #include path")
	}
	name := arg[1 : 1+end]
	dir := filepath.Dir(p.curFile())
	path := name
	if dir != "." && !filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			path = filepath.Join(dir, name)
		}
	}
	return p.processFile(path)
}

func (p *Preprocessor) doDefine(arg string) error {
	name, rest := scanIdent(arg)
	if name == "" {
		return p.errf("expected macro name after #define")
	}
	var params []string
	if strings.HasPrefix(rest, "(") {
		params = []string{}
		rest = rest[1:]
		for {
			rest = strings.TrimLeft(rest, " \t")
			if strings.HasPrefix(rest, ")") {
				rest = rest[1:]
				break
			}
			pname, r2 := scanIdent(rest)
			if pname == "" {
				return p.errf("malformed macro parameter list")
			}
			params = append(params, pname)
			rest = strings.TrimLeft(r2, " \t")
			if strings.HasPrefix(rest, ",") {
				rest = rest[1:]
				continue
			}
			if strings.HasPrefix(rest, ")") {
				rest = rest[1:]
				break
			}
			return p.errf("expected , or ) in macro parameter list")
		}
	}
	body := strings.TrimLeft(rest, " \t")
	p.define(&macro{name: name, params: params, body: body})
	return nil
}

func scanIdent(s string) (ident, rest string) {
	i := 0
	for i < len(s) && (isIdentByte(s[i], i == 0)) {
		i++
	}
	return s[:i], s[i:]
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	if !first && c >= '0' && c <= '9' {
		return true
	}
	return false
}

func (p *Preprocessor) doIfdef(arg string, wantDefined bool) error {
	name, _ := scanIdent(strings.TrimLeft(arg, " \t"))
	if len(p.ifStack) >= MaxIfStack {
		return p.errf("too many nested #ifdef/#ifndef (max %d)", MaxIfStack)
	}
	_, defined := p.lookup(name)
	p.ifStack = append(p.ifStack, p.skipping)
	if (defined != wantDefined) && !p.skipping {
		p.skipping = true
	}
	return nil
}

func (p *Preprocessor) doElse() error {
	if len(p.ifStack) == 0 {
		return p.errf("#else without #ifdef/#ifndef")
	}
	parentSkipping := p.ifStack[len(p.ifStack)-1]
	if !parentSkipping {
		p.skipping = !p.skipping
	}
	return nil
}

func (p *Preprocessor) doEndif() error {
	if len(p.ifStack) == 0 {
		return p.errf("#endif without #ifdef/#ifndef")
	}
	n := len(p.ifStack) - 1
	p.skipping = p.ifStack[n]
	p.ifStack = p.ifStack[:n]
	return nil
}

// substitute performs one left-to-right pass over line, replacing any
// complete identifier that names a macro. Expansion of a function-like
// macro body is itself re-scanned for further substitutions, with the
// macro's own name painted "expanding" to suppress self-recursion.
func (p *Preprocessor) substitute(line string) (string, error) {
	var out strings.Builder
	i := 0
	inString := false
	for i < len(line) {
		c := line[i]
		if inString {
			out.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				out.WriteByte(line[i])
				i++
				continue
			}
			if c == '"' {
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			i++
			continue
		}
		if isIdentByte(c, true) {
			j := i
			for j < len(line) && isIdentByte(line[j], false) {
				j++
			}
			word := line[i:j]
			expansion, consumed, err := p.expandAt(word, line[j:])
			if err != nil {
				return "", err
			}
			if expansion != "" || consumed >= 0 {
				out.WriteString(expansion)
				i = j + consumed
				continue
			}
			out.WriteString(word)
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String(), nil
}

// expandAt attempts to expand word (already identified as a complete
// identifier) given the text immediately following it (rest, starting right
// after word). Returns consumed == -1 when word is not a macro at all, so
// the caller knows to copy it verbatim rather than substitute an empty
// expansion.
func (p *Preprocessor) expandAt(word, rest string) (expansion string, consumed int, err error) {
	m, ok := p.lookup(word)
	if !ok || p.expanding[word] {
		return "", -1, nil
	}
	if !m.isFunctionLike() {
		p.expanding[word] = true
		defer delete(p.expanding, word)
		reexpanded, err := p.substitute(m.body)
		if err != nil {
			return "", 0, err
		}
		return reexpanded, 0, nil
	}
	// Function-like: requires a following '(' (possibly after whitespace).
	k := 0
	for k < len(rest) && isSpace(rest[k]) {
		k++
	}
	if k >= len(rest) || rest[k] != '(' {
		return "", -1, nil
	}
	args, afterParen, err := parseMacroArgs(rest[k+1:])
	if err != nil {
		return "", 0, err
	}
	if len(args) != len(m.params) && !(len(m.params) == 0 && len(args) == 1 && args[0] == "") {
		return "", 0, fmt.Errorf("macro %s expects %d argument(s), got %d", word, len(m.params), len(args))
	}
	// Arguments are macro-expanded before substitution, while word is not
	// yet painted, so a nested call such as ADD(3,ADD(4,5)) expands too.
	for ai := range args {
		if args[ai], err = p.substitute(args[ai]); err != nil {
			return "", 0, err
		}
	}
	body := expandParams(m.body, m.params, args)
	p.expanding[word] = true
	defer delete(p.expanding, word)
	reexpanded, err := p.substitute(body)
	if err != nil {
		return "", 0, err
	}
	return reexpanded, k + 1 + afterParen, nil
}

// parseMacroArgs splits a call-site argument list, honoring nested
// parentheses, starting just after the opening '('. Returns the number of
// bytes of s consumed up to and including the matching ')'.
func parseMacroArgs(s string) (args []string, consumed int, err error) {
	depth := 0
	var cur strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(':
			depth++
			cur.WriteByte(c)
		case c == ')':
			if depth == 0 {
				args = append(args, strings.TrimSpace(cur.String()))
				return args, i + 1, nil
			}
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
		i++
	}
	return nil, 0, fmt.Errorf("unterminated macro argument list")
}

func expandParams(body string, params, args []string) string {
	var out strings.Builder
	i := 0
	for i < len(body) {
		c := body[i]
		if isIdentByte(c, true) {
			j := i
			for j < len(body) && isIdentByte(body[j], false) {
				j++
			}
			word := body[i:j]
			replaced := false
			for pi, pname := range params {
				if pname == word {
					out.WriteString(args[pi])
					replaced = true
					break
				}
			}
			if !replaced {
				out.WriteString(word)
			}
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}
