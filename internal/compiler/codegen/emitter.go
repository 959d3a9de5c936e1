// Package codegen walks a parsed ast.Program and emits target assembly
// text through a narrow per-architecture Emitter, grounded on arch.go's
// ArchParser registry (Name/BuildTags/RegisterParser/GetParser) but
// repurposed per spec.md §9: one interface, one implementation per target,
// selected by name instead of by build tag.
package codegen

// Emitter is the architecture-specific half of code generation: every
// method returns the literal assembly lines for one operation on the
// single-accumulator stack machine the generator drives. Locations are
// frame-pointer-relative offsets (negative for both parameters and
// locals, see package symtab) or assembler labels (for globals and
// string constants).
type Emitter interface {
	// Name identifies the target, e.g. "x64" or "arm64".
	Name() string

	// ArgRegisterCount is the number of integer/pointer argument
	// registers available before the calling convention spills to the
	// stack (unused by this dialect, which caps call arity there).
	ArgRegisterCount() int

	// Prologue emits a function's entry sequence: save the caller's frame
	// pointer, establish ours, and reserve frameSize bytes of locals.
	Prologue(frameSize int64) []string
	// Epilogue emits the function's exit sequence up to (but not
	// including) the return instruction itself, which Return supplies.
	Epilogue() []string
	// Return emits the actual return instruction.
	Return() []string

	// StoreParamFromReg moves the idx'th incoming argument register to
	// its stack slot at frame offset off, during the prologue.
	StoreParamFromReg(idx int, off int64) []string

	// LoadImm loads an integer constant into the accumulator.
	LoadImm(v int64) []string
	// LoadFrameAddr loads the address of frame offset off (a local or
	// parameter) into the accumulator.
	LoadFrameAddr(off int64) []string
	// LoadLabelAddr loads the address of a global or string label into
	// the accumulator.
	LoadLabelAddr(label string) []string
	// LoadMem dereferences the address currently in the accumulator,
	// replacing it with the value there. width is 1 (char) or 8
	// (everything else).
	LoadMem(width int64) []string
	// StoreMem stores the accumulator's value to the address on top of
	// the runtime stack (pushed earlier), consuming that stack slot.
	// width is 1 or 8.
	StoreMem(width int64) []string

	// Push pushes the accumulator onto the runtime stack.
	Push() []string
	// PopArg pops the runtime stack's top into the idx'th argument
	// register, for call setup (args are popped in reverse push order).
	PopArg(idx int) []string
	// PopToSecondary pops the runtime stack's top into a fixed scratch
	// register distinct from the accumulator, for use as the left-hand
	// operand of a binary operator.
	PopToSecondary() []string
	// MoveSecondaryToAcc copies the secondary register into the
	// accumulator, used by postfix ++/-- to recover the pre-increment
	// value after the store has overwritten the accumulator.
	MoveSecondaryToAcc() []string

	// BinOp combines the secondary register (left operand, from a prior
	// PopToSecondary) with the accumulator (right operand), leaving the
	// result in the accumulator. op is one of
	// + - * / % & | ^ << >> == != < > <= >=.
	BinOp(op string) []string
	// LogicalAnd/LogicalOr short-circuit: they are handled by the
	// generator via branches, not BinOp, so op never receives && or ||.

	// UnaryOp applies a prefix unary operator (! ~ -) to the accumulator.
	UnaryOp(op string) []string

	// Scale multiplies the accumulator by a compile-time-constant factor,
	// used for array indexing.
	Scale(factor int64) []string

	// Call emits a direct call to name (argc arguments already placed in
	// the leading argument registers).
	Call(name string, argc int) []string

	// Label emits a local label definition.
	Label(name string) []string
	// Jump emits an unconditional branch to label.
	Jump(label string) []string
	// BranchIfZero emits a branch to label taken when the accumulator is
	// zero.
	BranchIfZero(label string) []string

	// FuncHeader emits the directives preceding a function's code
	// (a blank separator line, .globl, and the entry label).
	FuncHeader(name string) []string

	// DataSection/BSSSection/TextSection switch the active output
	// section.
	DataSection() []string
	BSSSection() []string
	TextSection() []string
}

var registry = map[string]func() Emitter{}

// Register adds a constructor for a named target to the registry, called
// from each target's init().
func Register(name string, ctor func() Emitter) {
	registry[name] = ctor
}

// Get returns a fresh Emitter for name, or false if name is unknown.
func Get(name string) (Emitter, bool) {
	ctor, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Names lists every registered target, for CLI flag help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
