package objfmt

import (
	"bytes"
	"testing"
)

func TestWriteReadELFRoundTrips(t *testing.T) {
	o := sampleObject()
	var buf bytes.Buffer
	if err := WriteELF(&buf, o); err != nil {
		t.Fatalf("WriteELF() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte(elfMagic)) {
		t.Fatal("missing ELF magic")
	}
	got, err := ReadELF(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadELF() error = %v", err)
	}
	if got.Arch != ArchX64 {
		t.Errorf("Arch = %v, want x64", got.Arch)
	}
	textIdx, ok := got.Section(".text")
	if !ok {
		t.Fatal("missing .text section")
	}
	if !bytes.Equal(got.Sections[textIdx].Data, []byte{0xc3}) {
		t.Errorf(".text data = %v, want [0xc3]", got.Sections[textIdx].Data)
	}
	bssIdx, ok := got.Section(".bss")
	if !ok {
		t.Fatal("missing .bss section")
	}
	if got.Sections[bssIdx].Len() != 80 {
		t.Errorf(".bss size = %d, want 80", got.Sections[bssIdx].Len())
	}
	if _, ok := got.Symbol("main"); !ok {
		t.Error("missing symbol main")
	}
	putsIdx, ok := got.Symbol("puts")
	if !ok {
		t.Fatal("missing symbol puts")
	}
	if got.Symbols[putsIdx].Section >= 0 {
		t.Error("puts should remain undefined (external)")
	}
	if len(got.Relocations) != 1 {
		t.Fatalf("got %d relocations, want 1", len(got.Relocations))
	}
	if got.Relocations[0].Kind != RelPC32 {
		t.Errorf("relocation kind = %v, want PC32", got.Relocations[0].Kind)
	}
}

func TestWriteELFARM64UsesAArch64Machine(t *testing.T) {
	o := New(ArchARM64)
	text := o.AddSection(".text", SectionText, true, true, false, 4)
	o.Sections[text].Data = []byte{0xc0, 0x03, 0x5f, 0xd6} // ret
	ext := o.ExternSymbol("helper")
	o.AddRelocation(text, 0, ext, RelCall26, 0)

	var buf bytes.Buffer
	if err := WriteELF(&buf, o); err != nil {
		t.Fatalf("WriteELF() error = %v", err)
	}
	got, err := ReadELF(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadELF() error = %v", err)
	}
	if got.Arch != ArchARM64 {
		t.Errorf("Arch = %v, want arm64", got.Arch)
	}
	if len(got.Relocations) != 1 || got.Relocations[0].Kind != RelCall26 {
		t.Errorf("relocations = %+v", got.Relocations)
	}
}

func TestReadELFRejectsBadMagic(t *testing.T) {
	_, err := ReadELF(bytes.NewReader([]byte("not an elf file at all, padded out")))
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}
