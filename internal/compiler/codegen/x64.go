package codegen

import "fmt"

func init() {
	Register("x64", func() Emitter { return &x64Emitter{} })
}

// x64Emitter emits AT&T-syntax x86-64 assembly, grounded on
// original_source/scc_enhanced.c's TARGET_X64 branch of each emit_*
// function (push/pop, emit_load_param, emit_jump, emit_branch_false).
type x64Emitter struct{}

var x64ArgRegs = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

func (x64Emitter) Name() string          { return "x64" }
func (x64Emitter) ArgRegisterCount() int { return len(x64ArgRegs) }

func (x64Emitter) Prologue(frameSize int64) []string {
	lines := []string{"  pushq %rbp", "  movq %rsp, %rbp"}
	if frameSize > 0 {
		lines = append(lines, fmt.Sprintf("  subq $%d, %%rsp", frameSize))
	}
	return lines
}

func (x64Emitter) Epilogue() []string {
	return []string{"  movq %rbp, %rsp", "  popq %rbp"}
}

func (x64Emitter) Return() []string { return []string{"  ret"} }

func (x64Emitter) StoreParamFromReg(idx int, off int64) []string {
	return []string{fmt.Sprintf("  movq %s, %d(%%rbp)", x64ArgRegs[idx], off)}
}

func (x64Emitter) LoadImm(v int64) []string {
	return []string{fmt.Sprintf("  movq $%d, %%rax", v)}
}

func (x64Emitter) LoadFrameAddr(off int64) []string {
	return []string{fmt.Sprintf("  leaq %d(%%rbp), %%rax", off)}
}

func (x64Emitter) LoadLabelAddr(label string) []string {
	return []string{fmt.Sprintf("  movq $%s, %%rax", label)}
}

func (x64Emitter) LoadMem(width int64) []string {
	if width == 1 {
		return []string{"  movsbq (%rax), %rax"}
	}
	return []string{"  movq (%rax), %rax"}
}

// StoreMem pops the target address into %r11, not %rcx: %rcx is the
// secondary register PopToSecondary/MoveSecondaryToAcc use, and postfix
// ++/-- keeps the pre-increment value there across the store.
func (x64Emitter) StoreMem(width int64) []string {
	if width == 1 {
		return []string{"  popq %r11", "  movb %al, (%r11)"}
	}
	return []string{"  popq %r11", "  movq %rax, (%r11)"}
}

func (x64Emitter) Push() []string { return []string{"  pushq %rax"} }

func (x64Emitter) PopArg(idx int) []string {
	return []string{fmt.Sprintf("  popq %s", x64ArgRegs[idx])}
}

func (x64Emitter) PopToSecondary() []string { return []string{"  popq %rcx"} }

func (x64Emitter) MoveSecondaryToAcc() []string { return []string{"  movq %rcx, %rax"} }

var x64Setcc = map[string]string{
	"==": "sete", "!=": "setne", "<": "setl", ">": "setg", "<=": "setle", ">=": "setge",
}

func (x64Emitter) BinOp(op string) []string {
	switch op {
	case "+":
		return []string{"  addq %rcx, %rax"}
	case "-":
		return []string{"  subq %rax, %rcx", "  movq %rcx, %rax"}
	case "*":
		return []string{"  imulq %rcx, %rax"}
	case "/":
		return []string{
			"  movq %rax, %r11",
			"  movq %rcx, %rax",
			"  cqto",
			"  idivq %r11",
		}
	case "%":
		return []string{
			"  movq %rax, %r11",
			"  movq %rcx, %rax",
			"  cqto",
			"  idivq %r11",
			"  movq %rdx, %rax",
		}
	case "&":
		return []string{"  andq %rcx, %rax"}
	case "|":
		return []string{"  orq %rcx, %rax"}
	case "^":
		return []string{"  xorq %rcx, %rax"}
	case "<<":
		return []string{
			"  movq %rax, %r11",
			"  movq %rcx, %rax",
			"  movq %r11, %rcx",
			"  salq %cl, %rax",
		}
	case ">>":
		return []string{
			"  movq %rax, %r11",
			"  movq %rcx, %rax",
			"  movq %r11, %rcx",
			"  sarq %cl, %rax",
		}
	default:
		if cc, ok := x64Setcc[op]; ok {
			return []string{
				"  cmpq %rax, %rcx",
				fmt.Sprintf("  %s %%al", cc),
				"  movzbq %al, %rax",
			}
		}
		panic("x64: unknown binary operator " + op)
	}
}

func (x64Emitter) UnaryOp(op string) []string {
	switch op {
	case "!":
		return []string{"  cmpq $0, %rax", "  sete %al", "  movzbq %al, %rax"}
	case "~":
		return []string{"  notq %rax"}
	case "-":
		return []string{"  negq %rax"}
	default:
		panic("x64: unknown unary operator " + op)
	}
}

func (x64Emitter) Scale(factor int64) []string {
	if factor == 1 {
		return nil
	}
	return []string{fmt.Sprintf("  imulq $%d, %%rax, %%rax", factor)}
}

func (x64Emitter) Call(name string, argc int) []string {
	return []string{fmt.Sprintf("  call %s", name)}
}

func (x64Emitter) Label(name string) []string        { return []string{name + ":"} }
func (x64Emitter) Jump(label string) []string         { return []string{"  jmp " + label} }
func (x64Emitter) BranchIfZero(label string) []string {
	return []string{"  testq %rax, %rax", "  jz " + label}
}

func (x64Emitter) FuncHeader(name string) []string {
	return []string{"", ".globl " + name, name + ":"}
}

func (x64Emitter) DataSection() []string { return []string{".data"} }
func (x64Emitter) BSSSection() []string  { return []string{".bss"} }
func (x64Emitter) TextSection() []string { return []string{".text"} }
