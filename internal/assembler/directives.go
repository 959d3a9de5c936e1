package assembler

import (
	"strings"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// processDirective implements the directive set spec.md §4.D names:
// .text/.data/.bss/.section, .globl/.global, .extern, data words
// (.byte/.word/.long/.quad and aliases), string data (.ascii/.asciz),
// reservation (.space/.skip), .align, .arch, and constant definitions
// (.equ/.set). Grounded on original_source/sas_enhanced.c's
// process_directive dispatch.
func (a *Assembler) processDirective(name, args string) error {
	switch name {
	case ".text":
		a.selectSection(".text")
	case ".data":
		a.selectSection(".data")
	case ".bss":
		a.selectSection(".bss")
	case ".section":
		return a.dirSection(args)
	case ".globl", ".global":
		name := strings.TrimSpace(args)
		if _, ok := a.obj.Symbol(name); !ok {
			a.obj.ExternSymbol(name)
		}
		if i, ok := a.obj.Symbol(name); ok && a.obj.Symbols[i].Section >= 0 {
			a.obj.Symbols[i].Binding = objfmt.BindGlobal
		}
	case ".extern":
		a.obj.ExternSymbol(strings.TrimSpace(args))
	case ".byte", ".db":
		return a.dirData(args, 1)
	case ".word", ".dw":
		return a.dirData(args, 2)
	case ".long", ".dd", ".int":
		return a.dirData(args, 4)
	case ".quad", ".dq":
		return a.dirData(args, 8)
	case ".ascii":
		return a.dirAscii(args, false)
	case ".asciz", ".string":
		return a.dirAscii(args, true)
	case ".space", ".skip":
		return a.dirSpace(args)
	case ".align":
		return a.dirAlign(args)
	case ".arch":
		// Advisory only; the target architecture is fixed by the CLI's
		// -t/--target selector, not by the assembly text.
	case ".equ", ".set":
		return a.dirEqu(args)
	default:
		return a.errf("unknown directive %q", name)
	}
	return nil
}

func (a *Assembler) dirSection(args string) error {
	parts := splitOperands(args)
	name := strings.TrimSpace(parts[0])
	alloc, exec, write := true, false, false
	if len(parts) > 1 {
		flags := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		alloc = strings.ContainsAny(flags, "a")
		exec = strings.ContainsAny(flags, "x")
		write = strings.ContainsAny(flags, "w")
	}
	kind := objfmt.SectionOther
	a.cur = a.obj.AddSection(name, kind, alloc, exec, write, 8)
	if _, ok := a.offs[a.cur]; !ok {
		a.offs[a.cur] = a.obj.Sections[a.cur].Len()
	}
	return nil
}

func (a *Assembler) dirData(args string, width int) error {
	for _, item := range splitOperands(args) {
		v, err := a.eval(item)
		if err != nil {
			return err
		}
		if v.Sym != "" {
			kind, err := a.absRelocKind(width)
			if err != nil {
				return err
			}
			if a.pass == 2 {
				a.addReloc(kind, v.Sym, v.Const)
				a.emit(make([]byte, width))
			} else {
				a.reserve(int64(width))
			}
			continue
		}
		if a.pass == 2 {
			a.emit(intBytes(v.Const, width))
		} else {
			a.reserve(int64(width))
		}
	}
	return nil
}

func (a *Assembler) absRelocKind(width int) (objfmt.RelocKind, error) {
	if a.arch == objfmt.ArchX64 {
		if width == 8 {
			return objfmt.RelAbs64, nil
		}
		if width == 4 {
			return objfmt.RelAbs32, nil
		}
	} else {
		if width == 8 {
			return objfmt.RelArm64Abs64, nil
		}
		if width == 4 {
			return objfmt.RelArm64Abs32, nil
		}
	}
	return 0, a.errf("symbol reference needs a 4- or 8-byte data word, got %d", width)
}

func intBytes(v int64, width int) []byte {
	b := make([]byte, width)
	u := uint64(v)
	for i := 0; i < width; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}

func (a *Assembler) dirAscii(args string, nulTerminate bool) error {
	s, err := unquote(strings.TrimSpace(args))
	if err != nil {
		return err
	}
	n := len(s)
	if nulTerminate {
		n++
	}
	if a.pass == 1 {
		a.reserve(int64(n))
		return nil
	}
	buf := []byte(s)
	if nulTerminate {
		buf = append(buf, 0)
	}
	a.emit(buf)
	return nil
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", nil
	}
	inner := s[1 : len(s)-1]
	var out strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c == '\\' && i+1 < len(inner) {
			i++
			out.WriteByte(charEscape(inner[i]))
			continue
		}
		out.WriteByte(c)
	}
	return out.String(), nil
}

func (a *Assembler) dirSpace(args string) error {
	parts := splitOperands(args)
	v, err := a.eval(parts[0])
	if err != nil {
		return err
	}
	fill := byte(0)
	if len(parts) > 1 {
		fv, err := a.eval(parts[1])
		if err != nil {
			return err
		}
		fill = byte(fv.Const)
	}
	if a.pass == 1 {
		a.reserve(v.Const)
		return nil
	}
	if a.obj.Sections[a.cur].Kind == objfmt.SectionBSS {
		a.obj.Sections[a.cur].Size += v.Const
		a.offs[a.cur] += v.Const
		return nil
	}
	buf := make([]byte, v.Const)
	for i := range buf {
		buf[i] = fill
	}
	a.emit(buf)
	return nil
}

func (a *Assembler) dirAlign(args string) error {
	v, err := a.eval(strings.TrimSpace(args))
	if err != nil {
		return err
	}
	align := v.Const
	if align <= 1 {
		return nil
	}
	cur := a.offs[a.cur]
	pad := (align - cur%align) % align
	if pad == 0 {
		return nil
	}
	if a.pass == 1 {
		a.reserve(pad)
		return nil
	}
	if a.obj.Sections[a.cur].Kind == objfmt.SectionBSS {
		a.obj.Sections[a.cur].Size += pad
		a.offs[a.cur] += pad
		return nil
	}
	a.emit(make([]byte, pad))
	return nil
}

func (a *Assembler) dirEqu(args string) error {
	parts := splitOperands(args)
	if len(parts) != 2 {
		return a.errf(".equ/.set requires name,value")
	}
	name := strings.TrimSpace(parts[0])
	v, err := a.eval(parts[1])
	if err != nil {
		return err
	}
	if v.Sym != "" {
		return a.errf(".equ/.set value must be a constant expression")
	}
	a.equs[name] = v.Const
	return nil
}
