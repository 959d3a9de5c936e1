// Package assembler implements the two-architecture, two-pass
// assembler: it consumes the AT&T-syntax x86-64 or UAL AArch64 text
// the compiler emits and produces an *objfmt.Object. Grounded on
// original_source/sas_enhanced.c's per-line dispatch
// (process_line/process_directive/process_instruction) and section/
// symbol/relocation bookkeeping (add_section/add_symbol/
// add_relocation), restructured into an explicit two-pass driver per
// spec.md §4.D instead of the original's single emission pass.
package assembler

import "strings"

// rawLine is one physical line split into its label (if any), mnemonic
// or directive name, and the raw operand text.
type rawLine struct {
	Label   string
	Op      string // mnemonic or ".directive", lowercased
	Operand string // unparsed remainder, operand splitting done by caller
	Text    string // original line, for diagnostics
	LineNo  int
}

// splitLines breaks source into rawLines, stripping comments
// (# or ; to end of line, except a # that marks an AArch64 immediate;
// see stripComment) and blank lines, and recognizing a leading
// "label:" the way original_source/sas_enhanced.c's process_line does.
func splitLines(src string) []rawLine {
	var out []rawLine
	for i, text := range strings.Split(src, "\n") {
		line := stripComment(text)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rl := rawLine{Text: text, LineNo: i + 1}
		if colon := strings.IndexByte(line, ':'); colon >= 0 && isLabelCandidate(line[:colon]) {
			rl.Label = strings.TrimSpace(line[:colon])
			line = strings.TrimSpace(line[colon+1:])
			if line == "" {
				out = append(out, rl)
				continue
			}
		}
		op, rest := splitFirstField(line)
		rl.Op = op
		rl.Operand = strings.TrimSpace(rest)
		out = append(out, rl)
	}
	return out
}

func isLabelCandidate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func stripComment(s string) string {
	for i, r := range s {
		if r == ';' {
			return s[:i]
		}
		// A '#' directly followed by a digit or sign is an AArch64
		// immediate ("#16", "#-8"), not a comment.
		if r == '#' && (i+1 >= len(s) || !strings.ContainsRune("0123456789+-", rune(s[i+1]))) {
			return s[:i]
		}
	}
	return s
}

func splitFirstField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if i < 0 {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s[:i]), s[i+1:]
}

// splitOperands splits a comma-separated operand list, treating commas
// inside ( ) or [ ] as part of the enclosing operand — needed for
// AArch64 addressing forms like "[sp, #-16]!" and, symmetrically,
// x86-64 SIB forms like "-8(%rbp,%rax,8)".
func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}
