package codegen

import "fmt"

func init() {
	Register("arm64", func() Emitter { return &arm64Emitter{} })
}

// arm64Emitter emits AArch64 UAL assembly, grounded on
// original_source/scc_enhanced.c's non-x64 branch of each emit_*
// function. Unlike the original (which saves incoming arguments with
// per-register str-with-pre-decrement pushes at a 16-byte stride), this
// rewrite stores each argument with an explicit frame-offset str so the
// same Symbol.Offset numbering from internal/compiler/symtab addresses
// both targets identically; see symtab's package doc.
type arm64Emitter struct{}

var arm64ArgRegs = []string{"x0", "x1", "x2", "x3", "x4", "x5"}

func (arm64Emitter) Name() string          { return "arm64" }
func (arm64Emitter) ArgRegisterCount() int { return len(arm64ArgRegs) }

func (arm64Emitter) Prologue(frameSize int64) []string {
	lines := []string{"  stp x29, x30, [sp, #-16]!", "  mov x29, sp"}
	if frameSize > 0 {
		lines = append(lines, fmt.Sprintf("  sub sp, sp, #%d", frameSize))
	}
	return lines
}

func (arm64Emitter) Epilogue() []string {
	return []string{"  mov sp, x29", "  ldp x29, x30, [sp], #16"}
}

func (arm64Emitter) Return() []string { return []string{"  ret"} }

func (arm64Emitter) StoreParamFromReg(idx int, off int64) []string {
	return []string{fmt.Sprintf("  str %s, [x29, #%d]", arm64ArgRegs[idx], off)}
}

// arm64Imm64 loads an arbitrary 64-bit constant into x0 via movz/movk,
// correct for any value without relying on assembler immediate-splitting.
func arm64Imm64(reg string, v int64) []string {
	u := uint64(v)
	return []string{
		fmt.Sprintf("  movz %s, #%d", reg, u&0xffff),
		fmt.Sprintf("  movk %s, #%d, lsl #16", reg, (u>>16)&0xffff),
		fmt.Sprintf("  movk %s, #%d, lsl #32", reg, (u>>32)&0xffff),
		fmt.Sprintf("  movk %s, #%d, lsl #48", reg, (u>>48)&0xffff),
	}
}

func (arm64Emitter) LoadImm(v int64) []string { return arm64Imm64("x0", v) }

func (arm64Emitter) LoadFrameAddr(off int64) []string {
	if off >= 0 {
		return []string{fmt.Sprintf("  add x0, x29, #%d", off)}
	}
	return []string{fmt.Sprintf("  sub x0, x29, #%d", -off)}
}

func (arm64Emitter) LoadLabelAddr(label string) []string {
	return []string{
		fmt.Sprintf("  adrp x0, %s", label),
		fmt.Sprintf("  add x0, x0, :lo12:%s", label),
	}
}

func (arm64Emitter) LoadMem(width int64) []string {
	if width == 1 {
		return []string{"  ldrsb x0, [x0]"}
	}
	return []string{"  ldr x0, [x0]"}
}

// StoreMem pops the target address into x2, not x1: x1 is the secondary
// register PopToSecondary/MoveSecondaryToAcc use, and postfix ++/--
// keeps the pre-increment value there across the store.
func (arm64Emitter) StoreMem(width int64) []string {
	if width == 1 {
		return []string{"  ldr x2, [sp], #16", "  strb w0, [x2]"}
	}
	return []string{"  ldr x2, [sp], #16", "  str x0, [x2]"}
}

func (arm64Emitter) Push() []string { return []string{"  str x0, [sp, #-16]!"} }

func (arm64Emitter) PopArg(idx int) []string {
	return []string{fmt.Sprintf("  ldr %s, [sp], #16", arm64ArgRegs[idx])}
}

func (arm64Emitter) PopToSecondary() []string { return []string{"  ldr x1, [sp], #16"} }

func (arm64Emitter) MoveSecondaryToAcc() []string { return []string{"  mov x0, x1"} }

var arm64Cond = map[string]string{
	"==": "eq", "!=": "ne", "<": "lt", ">": "gt", "<=": "le", ">=": "ge",
}

func (arm64Emitter) BinOp(op string) []string {
	switch op {
	case "+":
		return []string{"  add x0, x1, x0"}
	case "-":
		return []string{"  sub x0, x1, x0"}
	case "*":
		return []string{"  mul x0, x1, x0"}
	case "/":
		return []string{"  sdiv x0, x1, x0"}
	case "%":
		return []string{"  sdiv x2, x1, x0", "  msub x0, x2, x0, x1"}
	case "&":
		return []string{"  and x0, x1, x0"}
	case "|":
		return []string{"  orr x0, x1, x0"}
	case "^":
		return []string{"  eor x0, x1, x0"}
	case "<<":
		return []string{"  lsl x0, x1, x0"}
	case ">>":
		return []string{"  asr x0, x1, x0"}
	default:
		if cc, ok := arm64Cond[op]; ok {
			return []string{"  cmp x1, x0", fmt.Sprintf("  cset x0, %s", cc)}
		}
		panic("arm64: unknown binary operator " + op)
	}
}

func (arm64Emitter) UnaryOp(op string) []string {
	switch op {
	case "!":
		return []string{"  cmp x0, #0", "  cset x0, eq"}
	case "~":
		return []string{"  mvn x0, x0"}
	case "-":
		return []string{"  neg x0, x0"}
	default:
		panic("arm64: unknown unary operator " + op)
	}
}

func (arm64Emitter) Scale(factor int64) []string {
	switch factor {
	case 1:
		return nil
	case 8:
		return []string{"  lsl x0, x0, #3"}
	default:
		lines := arm64Imm64("x1", factor)
		return append(lines, "  mul x0, x0, x1")
	}
}

func (arm64Emitter) Call(name string, argc int) []string {
	return []string{"  bl " + name}
}

func (arm64Emitter) Label(name string) []string        { return []string{name + ":"} }
func (arm64Emitter) Jump(label string) []string         { return []string{"  b " + label} }
func (arm64Emitter) BranchIfZero(label string) []string {
	return []string{"  cbz x0, " + label}
}

func (arm64Emitter) FuncHeader(name string) []string {
	return []string{"", ".globl " + name, name + ":"}
}

func (arm64Emitter) DataSection() []string { return []string{".data"} }
func (arm64Emitter) BSSSection() []string  { return []string{".bss"} }
func (arm64Emitter) TextSection() []string { return []string{".text"} }
