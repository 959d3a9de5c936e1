package linker

import (
	"bytes"
	"encoding/binary"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// ELF64 ET_EXEC writer, grounded on sld_enhanced.c's write_executable:
// a fixed one-page header (Ehdr plus up to three Phdrs) followed by
// the code and data section payloads at a file offset equal to
// vaddr-BASE. One deliberate fix versus the original: its data
// segment's p_filesz is computed from a range that silently includes
// trailing bss sections (since its data_start/data_end scan only
// excludes SHF_EXECINSTR sections, not SHT_NOBITS ones), so p_filesz
// would claim file bytes for bss that write_executable never writes.
// Here p_filesz only ever covers sections that actually contribute
// file bytes; p_memsz is widened separately to reach the end of bss.
const (
	etExec    = 2
	emX8664   = 62
	emAArch64 = 183
	evCurrent = 1

	ptLoad      = 1
	ptGNUStack  = 0x6474e551
	pfExecute   = 1
	pfWrite     = 2
	pfRead      = 4
)

type elf64ExecEhdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf64Phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (l *Linker) writeELFExecutable() ([]byte, error) {
	entry := uint64(linuxBase + pageSize)
	if addr, ok := l.symbolAddr("_start"); ok {
		entry = addr
	} else if addr, ok := l.symbolAddr("main"); ok {
		entry = addr
	}

	codeEnd := uint64(linuxBase + pageSize)
	for _, s := range l.sections {
		if !s.Exec {
			continue
		}
		if end := s.Vaddr + uint64(s.Len()); end > codeEnd {
			codeEnd = end
		}
	}

	var dataStart, dataFileEnd, bssEnd uint64
	haveData, haveBSS, haveRange := false, false, false
	for _, s := range l.sections {
		if s.Exec || s.Len() == 0 {
			continue
		}
		if !haveRange || s.Vaddr < dataStart {
			dataStart = s.Vaddr
		}
		haveRange = true
		if s.Kind == objfmt.SectionBSS {
			haveBSS = true
			if end := s.Vaddr + uint64(s.Len()); end > bssEnd {
				bssEnd = end
			}
			continue
		}
		haveData = true
		if end := s.Vaddr + uint64(s.Len()); end > dataFileEnd {
			dataFileEnd = end
		}
	}

	var phdrs []elf64Phdr
	phdrs = append(phdrs, elf64Phdr{
		Type: ptLoad, Flags: pfRead | pfExecute,
		Offset: 0, Vaddr: linuxBase, Paddr: linuxBase,
		Filesz: codeEnd - linuxBase, Memsz: codeEnd - linuxBase, Align: pageSize,
	})
	if haveRange {
		filesz := uint64(0)
		if haveData {
			filesz = dataFileEnd - dataStart
		}
		memsz := filesz
		if haveBSS && bssEnd-dataStart > memsz {
			memsz = bssEnd - dataStart
		}
		phdrs = append(phdrs, elf64Phdr{
			Type: ptLoad, Flags: pfRead | pfWrite,
			Offset: dataStart - linuxBase, Vaddr: dataStart, Paddr: dataStart,
			Filesz: filesz, Memsz: memsz, Align: pageSize,
		})
	}
	phdrs = append(phdrs, elf64Phdr{Type: ptGNUStack, Flags: pfRead | pfWrite})

	machine := uint16(emX8664)
	if l.arch == objfmt.ArchARM64 {
		machine = emAArch64
	}
	ehdr := elf64ExecEhdr{
		Type: etExec, Machine: machine, Version: evCurrent, Entry: entry,
		Phoff: uint64(binary.Size(elf64ExecEhdr{})), Ehsize: uint16(binary.Size(elf64ExecEhdr{})),
		Phentsize: uint16(binary.Size(elf64Phdr{})), Phnum: uint16(len(phdrs)),
	}
	copy(ehdr.Ident[:4], elfMagic)
	ehdr.Ident[4] = 2 // ELFCLASS64
	ehdr.Ident[5] = 1 // ELFDATA2LSB
	ehdr.Ident[6] = 1 // EV_CURRENT

	out := new(bytes.Buffer)
	binary.Write(out, binary.LittleEndian, ehdr)
	for _, ph := range phdrs {
		binary.Write(out, binary.LittleEndian, ph)
	}
	for out.Len() < pageSize {
		out.WriteByte(0)
	}

	// Section payloads follow at file offset == vaddr-BASE, so pad for
	// any gap between consecutively written sections (alignment slack,
	// or the jump from the end of code to the page-aligned data start).
	fileOffset := uint64(pageSize)
	for _, s := range l.sections {
		if s.Kind == objfmt.SectionBSS || s.Len() == 0 {
			continue
		}
		for fileOffset < s.Vaddr-linuxBase {
			out.WriteByte(0)
			fileOffset++
		}
		out.Write(s.Data)
		fileOffset += uint64(len(s.Data))
	}

	return out.Bytes(), nil
}

const elfMagic = "\x7fELF"
