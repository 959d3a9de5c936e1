package assembler

import (
	"encoding/binary"
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

func assembleArm64(t *testing.T, src string) *objfmt.Object {
	t.Helper()
	a := New("t.s", objfmt.ArchARM64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return obj
}

func words(t *testing.T, obj *objfmt.Object) []uint32 {
	t.Helper()
	i, ok := obj.Section(".text")
	if !ok {
		t.Fatalf("missing .text section")
	}
	data := obj.Sections[i].Data
	if len(data)%4 != 0 {
		t.Fatalf(".text length %d is not word-aligned", len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

func TestAssembleArm64RetEncoding(t *testing.T) {
	obj := assembleArm64(t, ".text\nmain:\n  ret\n")
	w := words(t, obj)
	if len(w) != 1 || w[0] != 0xD65F0000|30<<5 {
		t.Fatalf("got %#x words, want [%#x]", w, uint32(0xD65F0000|30<<5))
	}
}

func TestAssembleArm64EveryInstructionIsFourBytes(t *testing.T) {
	src := `
.text
.globl main
main:
  stp x29, x30, [sp, #-16]!
  mov x29, sp
  sub sp, sp, #16
  movz x0, #5
  movk x0, #0, lsl #16
  str x0, [x29, #-8]
  ldr x1, [x29, #-8]
  add x0, x1, x0
  cmp x0, #0
  cset x0, eq
  mov sp, x29
  ldp x29, x30, [sp], #16
  ret
`
	obj := assembleArm64(t, src)
	w := words(t, obj)
	if len(w) != 13 {
		t.Fatalf("got %d words, want 13 (one per instruction): %#x", len(w), w)
	}
}

func TestAssembleArm64BranchResolvesLocalDisplacement(t *testing.T) {
	src := ".text\nmain:\n  b skip\n  ret\nskip:\n  ret\n"
	obj := assembleArm64(t, src)
	if len(obj.Relocations) != 0 {
		t.Fatalf("expected no relocation for a local b target, got %+v", obj.Relocations)
	}
	w := words(t, obj)
	// displacement is in 4-byte instruction units: b is at word 0,
	// skip is at word 2, so the encoded immediate is 2.
	if w[0] != 0x14000000|2 {
		t.Fatalf("got %#x, want b with imm26=2", w[0])
	}
}

func TestAssembleArm64CallToExternalEmitsRelocation(t *testing.T) {
	obj := assembleArm64(t, ".text\nmain:\n  bl scanf\n  ret\n")
	if len(obj.Relocations) != 1 {
		t.Fatalf("got %d relocations, want 1: %+v", len(obj.Relocations), obj.Relocations)
	}
	if obj.Relocations[0].Kind != objfmt.RelCall26 {
		t.Fatalf("got kind %v, want RelCall26", obj.Relocations[0].Kind)
	}
}

func TestAssembleArm64LoadLabelAddrEmitsPageAndLo12Relocations(t *testing.T) {
	src := ".data\nmsg:\n  .asciz \"hi\"\n.text\nmain:\n  adrp x0, msg\n  add x0, x0, :lo12:msg\n  ret\n"
	obj := assembleArm64(t, src)
	if len(obj.Relocations) != 2 {
		t.Fatalf("got %d relocations, want 2: %+v", len(obj.Relocations), obj.Relocations)
	}
	if obj.Relocations[0].Kind != objfmt.RelAdrPrelPgHi21 {
		t.Fatalf("first relocation kind = %v, want RelAdrPrelPgHi21", obj.Relocations[0].Kind)
	}
	if obj.Relocations[1].Kind != objfmt.RelAddAbsLo12NC {
		t.Fatalf("second relocation kind = %v, want RelAddAbsLo12NC", obj.Relocations[1].Kind)
	}
}

func TestArm64RegNumAcceptsWAndXViews(t *testing.T) {
	x, err := arm64RegNum("x3")
	if err != nil || x != 3 {
		t.Fatalf("x3 -> %d, %v", x, err)
	}
	w, err := arm64RegNum("w3")
	if err != nil || w != 3 {
		t.Fatalf("w3 -> %d, %v", w, err)
	}
	sp, err := arm64RegNum("sp")
	if err != nil || sp != 31 {
		t.Fatalf("sp -> %d, %v", sp, err)
	}
}
