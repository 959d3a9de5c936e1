package objfmt

import (
	"bytes"
	"testing"
)

func sampleObject() *Object {
	o := New(ArchX64)
	text := o.AddSection(".text", SectionText, true, true, false, 16)
	data := o.AddSection(".data", SectionData, true, false, true, 8)
	bss := o.AddSection(".bss", SectionBSS, true, false, true, 8)
	o.Sections[text].Data = []byte{0xc3} // ret
	o.Sections[data].Data = []byte{10, 0, 0, 0, 0, 0, 0, 0}
	o.Sections[bss].Size = 80

	main := o.DefineSymbol("main", text, 0, BindGlobal)
	o.DefineSymbol("counter", data, 0, BindGlobal)
	o.DefineSymbol("nums", bss, 0, BindGlobal)
	puts := o.ExternSymbol("puts")

	o.AddRelocation(text, 1, puts, RelPC32, -4)
	_ = main
	return o
}

func TestWriteReadSASRoundTrips(t *testing.T) {
	o := sampleObject()
	var buf bytes.Buffer
	if err := WriteSAS(&buf, o); err != nil {
		t.Fatalf("WriteSAS() error = %v", err)
	}
	got, err := ReadSAS(&buf)
	if err != nil {
		t.Fatalf("ReadSAS() error = %v", err)
	}
	if got.Arch != o.Arch {
		t.Errorf("Arch = %v, want %v", got.Arch, o.Arch)
	}
	if len(got.Sections) != len(o.Sections) {
		t.Fatalf("got %d sections, want %d", len(got.Sections), len(o.Sections))
	}
	bssIdx, _ := got.Section(".bss")
	if got.Sections[bssIdx].Len() != 80 {
		t.Errorf("bss size = %d, want 80", got.Sections[bssIdx].Len())
	}
	textIdx, _ := got.Section(".text")
	if !bytes.Equal(got.Sections[textIdx].Data, []byte{0xc3}) {
		t.Errorf("text data = %v, want [0xc3]", got.Sections[textIdx].Data)
	}
	if len(got.Symbols) != len(o.Symbols) {
		t.Fatalf("got %d symbols, want %d", len(got.Symbols), len(o.Symbols))
	}
	if len(got.Relocations) != 1 {
		t.Fatalf("got %d relocations, want 1", len(got.Relocations))
	}
	if got.Relocations[0].Kind != RelPC32 || got.Relocations[0].Addend != -4 {
		t.Errorf("relocation = %+v", got.Relocations[0])
	}
}

func TestWriteSASRejectsOverlongName(t *testing.T) {
	o := New(ArchX64)
	o.AddSection("this-section-name-is-definitely-longer-than-32-bytes", SectionOther, false, false, false, 1)
	var buf bytes.Buffer
	if err := WriteSAS(&buf, o); err == nil {
		t.Fatal("expected error for overlong section name")
	}
}

func TestReadSASRejectsBadMagic(t *testing.T) {
	_, err := ReadSAS(bytes.NewReader([]byte("nope")))
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}
