package assembler

import (
	"fmt"
	"strings"

	"github.com/secwest/small-c-x64-arm/internal/diag"
	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// Assembler drives the two-pass assembly of one source file into an
// *objfmt.Object: pass 1 sizes every instruction/directive and
// records label offsets; pass 2 re-walks the same lines and emits
// real bytes, now that every local label's offset is known and only
// genuinely external symbols need relocations. Grounded on
// original_source/sas_enhanced.c's section/symbol/relocation globals
// (section_sizes, symbol_values, add_relocation), reshaped into one
// struct and two passes instead of one mutable global pass.
type Assembler struct {
	file string
	arch objfmt.Arch
	obj  *objfmt.Object

	pass int // 1 or 2
	cur  int // current section index
	offs map[int]int64
	line int // line of the instruction currently being processed

	equs map[string]int64

	bmi2Warned bool // emit the BMI2 shift advisory at most once per file
}

// New starts an assembler for file, targeting arch, with the default
// .text section selected (original_source/sas_enhanced.c's main()
// does the same before reading any line).
func New(file string, arch objfmt.Arch) *Assembler {
	obj := objfmt.New(arch)
	cur := obj.AddSection(".text", objfmt.SectionText, true, true, false, 16)
	return &Assembler{
		file: file, arch: arch, obj: obj,
		cur: cur, offs: map[int]int64{}, equs: map[string]int64{},
	}
}

// Assemble runs both passes over src and returns the finished object.
func (a *Assembler) Assemble(src string) (*objfmt.Object, error) {
	lines := splitLines(src)
	for pass := 1; pass <= 2; pass++ {
		a.pass = pass
		a.cur, _ = a.obj.Section(".text")
		a.offs = map[int]int64{}
		for _, ln := range lines {
			if err := a.processLine(ln); err != nil {
				return nil, diag.Errorf(a.file, ln.LineNo, "%s", err)
			}
		}
	}
	return a.obj, nil
}

func (a *Assembler) processLine(ln rawLine) error {
	a.line = ln.LineNo
	if ln.Label != "" {
		a.obj.DefineSymbol(ln.Label, a.cur, a.offs[a.cur], objfmt.BindLocal)
	}
	if ln.Op == "" {
		return nil
	}
	if strings.HasPrefix(ln.Op, ".") {
		return a.processDirective(ln.Op, ln.Operand)
	}
	return a.processInstruction(ln.Op, splitOperands(ln.Operand))
}

// reserve advances the current section's running offset by n bytes,
// used in both passes so pass 1's sizing and pass 2's emission stay
// in lockstep.
func (a *Assembler) reserve(n int64) { a.offs[a.cur] += n }

// emit appends bytes to the current section's stored contents. Only
// meaningful (and only called) during pass 2.
func (a *Assembler) emit(b []byte) {
	s := a.obj.Sections[a.cur]
	s.Data = append(s.Data, b...)
	a.offs[a.cur] += int64(len(b))
}

// addReloc records a relocation at the current section offset against
// symbol name (defining it as external if not already known).
func (a *Assembler) addReloc(kind objfmt.RelocKind, name string, addend int64) {
	sym, ok := a.obj.Symbol(name)
	if !ok {
		sym = a.obj.ExternSymbol(name)
	}
	a.obj.AddRelocation(a.cur, a.offs[a.cur], sym, kind, addend)
}

// lookupSymbol only resolves .equ/.set constants in place. Section-
// relative label values are deliberately NOT resolved here: a label's
// local offset is not its final linked address, so any expression
// using one (a data word's pointer initializer, an immediate address
// load) must keep carrying the symbol through to a relocation.
// Direct local-label resolution happens separately, in x64Branch/
// arm64Branch, where the PC-relative displacement between two offsets
// in the same section survives linking unchanged.
func (a *Assembler) lookupSymbol(name string) (int64, bool) {
	v, ok := a.equs[name]
	return v, ok
}

func (a *Assembler) currentOffset() int64 { return a.offs[a.cur] }

func (a *Assembler) eval(s string) (exprValue, error) {
	return evalExpr(s, a)
}

func (a *Assembler) selectSection(name string) {
	kind := objfmt.SectionOther
	alloc, exec, write := true, false, false
	switch name {
	case ".text":
		kind, exec = objfmt.SectionText, true
	case ".data":
		kind, write = objfmt.SectionData, true
	case ".bss":
		kind, write = objfmt.SectionBSS, true
	}
	a.cur = a.obj.AddSection(name, kind, alloc, exec, write, 8)
	if _, ok := a.offs[a.cur]; !ok {
		a.offs[a.cur] = a.obj.Sections[a.cur].Len()
	}
}

func (a *Assembler) errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
