package assembler

import (
	"bytes"
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

func textBytes(t *testing.T, obj *objfmt.Object) []byte {
	t.Helper()
	i, ok := obj.Section(".text")
	if !ok {
		t.Fatalf("missing .text section")
	}
	return obj.Sections[i].Data
}

func TestAssembleRetEncodesC3(t *testing.T) {
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(".text\nmain:\n  ret\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := textBytes(t, obj); !bytes.Equal(got, []byte{0xC3}) {
		t.Fatalf("got % x, want c3", got)
	}
}

func TestAssembleMovqImmToRaxIsMovabs(t *testing.T) {
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(".text\n  movq $5, %rax\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := textBytes(t, obj)
	want := []byte{0x48, 0xB8, 5, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestAssembleLocalJmpResolvesDirectDisplacement(t *testing.T) {
	// jmp to a label one byte ahead of the jmp's own end (past one ret),
	// so the relative displacement is a known small positive value
	// and the jmp must NOT produce a relocation.
	src := ".text\nmain:\n  jmp skip\n  ret\nskip:\n  ret\n"
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(obj.Relocations) != 0 {
		t.Fatalf("expected no relocations for a local jmp target, got %+v", obj.Relocations)
	}
	got := textBytes(t, obj)
	// E9 rel32; rel32 should skip exactly the one-byte ret that follows.
	want := []byte{0xE9, 1, 0, 0, 0, 0xC3, 0xC3}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestAssembleCallToExternalEmitsRelocation(t *testing.T) {
	src := ".text\nmain:\n  call puts\n  ret\n"
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(obj.Relocations) != 1 {
		t.Fatalf("got %d relocations, want 1: %+v", len(obj.Relocations), obj.Relocations)
	}
	rel := obj.Relocations[0]
	if rel.Kind != objfmt.RelPC32 || rel.Addend != -4 {
		t.Fatalf("got %+v, want RelPC32 addend -4", rel)
	}
	sym := obj.Symbols[rel.Symbol]
	if sym.Name != "puts" || sym.Section != -1 {
		t.Fatalf("relocation symbol = %+v, want external puts", sym)
	}
}

func TestAssembleMovqLabelAddrEmitsAbs64Relocation(t *testing.T) {
	src := ".data\nmsg:\n  .asciz \"hi\"\n.text\nmain:\n  movq $msg, %rax\n  ret\n"
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var found *objfmt.Relocation
	for _, r := range obj.Relocations {
		if obj.Symbols[r.Symbol].Name == "msg" {
			found = r
		}
	}
	if found == nil {
		t.Fatalf("expected a relocation against msg, got %+v", obj.Relocations)
	}
	if found.Kind != objfmt.RelAbs64 {
		t.Fatalf("got kind %v, want RelAbs64", found.Kind)
	}
	// The label's own section-local offset (0) must never have been
	// baked directly into the instruction stream as if it were an
	// absolute address — only the relocation should carry it.
	text := textBytes(t, obj)
	if len(text) < 10 {
		t.Fatalf("text too short: % x", text)
	}
	imm := text[2:10]
	for _, b := range imm {
		if b != 0 {
			t.Fatalf("expected a zero placeholder for the relocated immediate, got % x", imm)
		}
	}
}

func TestEncodeMemRbpZeroDisplacementForcesDisp8(t *testing.T) {
	rbp, _ := x64RegNum("%rbp")
	out := encodeMem(0, rbp, 0)
	if len(out) != 2 {
		t.Fatalf("got % x, want a forced disp8 byte for %%rbp base at disp 0", out)
	}
	if out[1] != 0 {
		t.Fatalf("got % x, want explicit zero disp8", out)
	}
}

func TestEncodeMemRspBaseEmitsSIB(t *testing.T) {
	rsp, _ := x64RegNum("%rsp")
	out := encodeMem(0, rsp, 8)
	if len(out) != 3 {
		t.Fatalf("got % x, want modrm+sib+disp8", out)
	}
	if out[1] != 0x24 {
		t.Fatalf("got sib byte %x, want 0x24", out[1])
	}
}
