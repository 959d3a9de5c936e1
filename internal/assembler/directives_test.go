package assembler

import (
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

func TestAssembleDataDirectivesProduceExpectedBytes(t *testing.T) {
	src := `
.data
n:
  .quad 42
b:
  .byte 1, 2, 3
msg:
  .asciz "hi"
`
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	di, ok := obj.Section(".data")
	if !ok {
		t.Fatalf("missing .data section")
	}
	data := obj.Sections[di].Data
	want := []byte{42, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 'h', 'i', 0}
	if len(data) != len(want) {
		t.Fatalf("got %d bytes %v, want %d bytes %v", len(data), data, len(want), want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d (%v)", i, data[i], want[i], data)
		}
	}
}

func TestAssembleBSSSpaceTracksSizeNotData(t *testing.T) {
	src := `
.bss
buf:
  .space 64
`
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	bi, _ := obj.Section(".bss")
	if obj.Sections[bi].Len() != 64 {
		t.Fatalf("got bss len %d, want 64", obj.Sections[bi].Len())
	}
	if len(obj.Sections[bi].Data) != 0 {
		t.Fatalf(".bss should not carry file bytes, got %d", len(obj.Sections[bi].Data))
	}
}

func TestAssembleGloblMarksDefinedSymbolGlobal(t *testing.T) {
	src := `
.text
.globl main
main:
  ret
`
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	i, ok := obj.Symbol("main")
	if !ok {
		t.Fatalf("main not defined")
	}
	if obj.Symbols[i].Binding != objfmt.BindGlobal {
		t.Fatalf("main binding = %v, want global", obj.Symbols[i].Binding)
	}
}

func TestAssembleEquRejectsSymbolicValue(t *testing.T) {
	src := ".equ FOO, bar\n"
	a := New("t.s", objfmt.ArchX64)
	if _, err := a.Assemble(src); err == nil {
		t.Fatalf("expected error for .equ with a symbolic value")
	}
}

func TestAssembleAlignPadsToBoundary(t *testing.T) {
	src := `
.data
  .byte 1
  .align 8
x:
  .byte 2
`
	a := New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	i, ok := obj.Symbol("x")
	if !ok {
		t.Fatalf("x not defined")
	}
	if obj.Symbols[i].Value != 8 {
		t.Fatalf("x offset = %d, want 8", obj.Symbols[i].Value)
	}
}
