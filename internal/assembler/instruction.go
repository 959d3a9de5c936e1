package assembler

import "github.com/secwest/small-c-x64-arm/internal/objfmt"

// processInstruction dispatches a mnemonic line to the per-target
// encoder selected by the assembler's target architecture, mirroring
// how internal/compiler/codegen's Emitter registry picks one
// implementation per target rather than branching throughout.
func (a *Assembler) processInstruction(mnemonic string, ops []string) error {
	switch a.arch {
	case objfmt.ArchX64:
		return a.processX64(mnemonic, ops)
	case objfmt.ArchARM64:
		return a.processArm64(mnemonic, ops)
	default:
		return a.errf("unsupported target architecture")
	}
}
