package linker

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/secwest/small-c-x64-arm/internal/assembler"
	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

func assembleX64(t *testing.T, src string) *objfmt.Object {
	t.Helper()
	a := assembler.New("t.s", objfmt.ArchX64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return obj
}

func assembleArm64(t *testing.T, src string) *objfmt.Object {
	t.Helper()
	a := assembler.New("t.s", objfmt.ArchARM64)
	obj, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return obj
}

func readPhdrs(t *testing.T, img []byte) []elf64Phdr {
	t.Helper()
	phoff := binary.LittleEndian.Uint64(img[32:40])
	phnum := binary.LittleEndian.Uint16(img[56:58])
	var out []elf64Phdr
	for i := 0; i < int(phnum); i++ {
		r := bytes.NewReader(img[int(phoff)+i*56:])
		var ph elf64Phdr
		if err := binary.Read(r, binary.LittleEndian, &ph); err != nil {
			t.Fatalf("decode phdr %d: %v", i, err)
		}
		out = append(out, ph)
	}
	return out
}

func TestLinkX64ResolvesAbs64RelocationAndEntryPoint(t *testing.T) {
	obj := assembleX64(t, ".data\nmsg:\n  .asciz \"hi\"\n.text\n.globl _start\n_start:\n  movq $msg, %rax\n  ret\n")
	img, err := Link([]Input{{Name: "t.o", Object: obj}}, Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !bytes.Equal(img[:4], []byte(elfMagic)) {
		t.Fatalf("missing ELF magic: % x", img[:4])
	}
	entry := binary.LittleEndian.Uint64(img[24:32])
	wantEntry := uint64(linuxBase + pageSize)
	if entry != wantEntry {
		t.Fatalf("entry = %#x, want %#x", entry, wantEntry)
	}

	textLen := uint64(10 + 1) // movq $imm64,%rax (10 bytes) + ret (1 byte)
	codeEnd := alignUp64(wantEntry+textLen, sectionAlign)
	dataVaddr := alignUp64(codeEnd, pageSize)

	immOff := pageSize + 2 // header page, then REX+opcode before the 8-byte immediate
	got := img[immOff : immOff+8]
	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, dataVaddr)
	if !bytes.Equal(got, want) {
		t.Fatalf("relocated immediate = % x, want % x (msg vaddr %#x)", got, want, dataVaddr)
	}
}

func TestLinkUndefinedSymbolIsFatal(t *testing.T) {
	obj := assembleX64(t, ".text\n.globl _start\n_start:\n  call nonexistent\n  ret\n")
	_, err := Link([]Input{{Name: "t.o", Object: obj}}, Options{})
	if err == nil || !strings.Contains(err.Error(), "nonexistent") {
		t.Fatalf("got %v, want an undefined-symbol error naming nonexistent", err)
	}
}

func TestLinkDuplicateStrongSymbolIsFatal(t *testing.T) {
	obj1 := assembleX64(t, ".text\n.globl main\nmain:\n  ret\n")
	obj2 := assembleX64(t, ".text\n.globl main\nmain:\n  ret\n")
	_, err := Link([]Input{{Name: "a.o", Object: obj1}, {Name: "b.o", Object: obj2}}, Options{})
	if err == nil || !strings.Contains(err.Error(), "main") {
		t.Fatalf("got %v, want a duplicate-symbol error naming main", err)
	}
}

func TestLinkX64CallAcrossObjectsResolvesPC32(t *testing.T) {
	objMain := assembleX64(t, ".text\n.globl _start\n_start:\n  call helper\n  ret\n")
	objHelper := assembleX64(t, ".text\n.globl helper\nhelper:\n  ret\n")
	img, err := Link([]Input{{Name: "main.o", Object: objMain}, {Name: "helper.o", Object: objHelper}}, Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	entry := binary.LittleEndian.Uint64(img[24:32])
	// call rel32 is at entry+1..entry+4 (file offset = vaddr-BASE).
	callSite := entry - linuxBase
	rel := int32(binary.LittleEndian.Uint32(img[callSite+1 : callSite+5]))
	// helper's object follows main's .text contribution, 16-byte aligned.
	helperVaddr := alignUp64(entry+1, sectionAlign)
	wantRel := int32(int64(helperVaddr) - int64(entry+5))
	if rel != wantRel {
		t.Fatalf("call rel32 = %d, want %d (helper at %#x)", rel, wantRel, helperVaddr)
	}
}

func TestLinkBSSGrowsMemszButNotFilesz(t *testing.T) {
	obj := assembleX64(t, ".bss\nbuf:\n  .space 64\n.text\n.globl _start\n_start:\n  ret\n")
	img, err := Link([]Input{{Name: "t.o", Object: obj}}, Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	phdrs := readPhdrs(t, img)
	if len(phdrs) != 3 {
		t.Fatalf("got %d program headers, want 3 (code, data/bss, gnu-stack)", len(phdrs))
	}
	data := phdrs[1]
	if data.Filesz != 0 {
		t.Fatalf("bss-only segment filesz = %d, want 0", data.Filesz)
	}
	if data.Memsz < 64 {
		t.Fatalf("bss-only segment memsz = %d, want >= 64", data.Memsz)
	}
}

func TestLinkARM64CallAcrossObjectsResolvesCall26(t *testing.T) {
	objMain := assembleArm64(t, ".text\n.globl _start\n_start:\n  bl helper\n  ret\n")
	objHelper := assembleArm64(t, ".text\n.globl helper\nhelper:\n  ret\n")
	img, err := Link([]Input{{Name: "main.o", Object: objMain}, {Name: "helper.o", Object: objHelper}}, Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	entry := binary.LittleEndian.Uint64(img[24:32])
	site := entry - linuxBase
	instr := binary.LittleEndian.Uint32(img[site : site+4])
	if instr&0xFC000000 != 0x94000000 {
		t.Fatalf("expected a BL opcode at entry, got %#x", instr)
	}
	helperVaddr := alignUp64(entry+4, sectionAlign)
	wantImm := uint32(int64(helperVaddr)-int64(entry)) / 4 & 0x3FFFFFF
	if instr&0x3FFFFFF != wantImm {
		t.Fatalf("bl imm26 = %#x, want %#x (helper at %#x)", instr&0x3FFFFFF, wantImm, helperVaddr)
	}
}

func TestLinkWindowsProducesPE32Plus(t *testing.T) {
	obj := assembleX64(t, ".text\n.globl _start\n_start:\n  ret\n")
	img, err := Link([]Input{{Name: "t.o", Object: obj}}, Options{TargetOS: "windows"})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !bytes.Equal(img[0:2], []byte("MZ")) {
		t.Fatalf("missing DOS signature: % x", img[0:2])
	}
	if binary.LittleEndian.Uint16(img[0x3C:]) != 0x80 {
		t.Fatalf("e_lfanew != 0x80")
	}
	if binary.LittleEndian.Uint32(img[0x80:]) != imageNTSignature {
		t.Fatalf("missing PE signature at 0x80")
	}
	if binary.LittleEndian.Uint16(img[0x98:]) != 0x20B {
		t.Fatalf("optional header magic != PE32+")
	}
	if binary.LittleEndian.Uint64(img[0x98+24:]) != windowsBase {
		t.Fatalf("ImageBase != %#x", uint64(windowsBase))
	}
}

func TestLinkNoInputsIsAnError(t *testing.T) {
	if _, err := Link(nil, Options{}); err == nil {
		t.Fatalf("expected an error linking zero objects")
	}
}
