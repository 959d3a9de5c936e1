package linker

import (
	"encoding/binary"
	"fmt"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// relocate implements Phase 4: patch every recorded relocation site
// now that every section has a virtual address. The per-kind formulas
// are taken verbatim from sld_enhanced.c's apply_relocations (and
// cross-checked against sld_linux_arm64.c's ARM64-only variant, which
// agrees bit for bit on ADRP/CALL26/LO12 encoding).
func (l *Linker) relocate() error {
	for _, r := range l.relocs {
		sec := l.sections[r.Section]
		var target int64
		if r.Sym.defined() {
			target = int64(l.sections[r.Sym.Section].Vaddr) + r.Sym.Value
		}
		pc := int64(sec.Vaddr) + r.Offset
		if r.Offset < 0 || r.Offset > int64(len(sec.Data)) {
			return fmt.Errorf("linker: relocation offset %d out of range for section %q (len %d)", r.Offset, sec.Name, len(sec.Data))
		}
		loc := sec.Data[r.Offset:]

		switch l.arch {
		case objfmt.ArchX64:
			if err := relocateX64(loc, r.Kind, target, r.Addend, pc); err != nil {
				return err
			}
		case objfmt.ArchARM64:
			if err := relocateARM64(loc, r.Kind, target, r.Addend, pc); err != nil {
				return err
			}
		}
	}
	return nil
}

func relocateX64(loc []byte, kind objfmt.RelocKind, target, addend, pc int64) error {
	switch kind {
	case objfmt.RelAbs64:
		binary.LittleEndian.PutUint64(loc, uint64(target+addend))
	case objfmt.RelAbs32, objfmt.RelAbs32S:
		binary.LittleEndian.PutUint32(loc, uint32(target+addend))
	case objfmt.RelPC32:
		binary.LittleEndian.PutUint32(loc, uint32(target+addend-pc))
	default:
		return fmt.Errorf("linker: unsupported x86-64 relocation kind %s", kind)
	}
	return nil
}

func relocateARM64(loc []byte, kind objfmt.RelocKind, target, addend, pc int64) error {
	if len(loc) < 4 {
		return fmt.Errorf("linker: ARM64 relocation site shorter than one instruction")
	}
	instr := binary.LittleEndian.Uint32(loc)
	switch kind {
	case objfmt.RelArm64Abs64:
		binary.LittleEndian.PutUint64(loc, uint64(target+addend))
		return nil
	case objfmt.RelArm64Abs32:
		binary.LittleEndian.PutUint32(loc, uint32(target+addend))
		return nil
	case objfmt.RelCall26, objfmt.RelJump26:
		off := target + addend - pc
		instr = (instr & 0xFC000000) | (uint32(off>>2) & 0x3FFFFFF)
	case objfmt.RelAdrPrelPgHi21:
		pageOff := ((target + addend) &^ 0xFFF) - (pc &^ 0xFFF)
		immlo := uint32(pageOff>>12) & 0x3
		immhi := uint32(pageOff>>14) & 0x7FFFF
		instr = (instr & 0x9F00001F) | (immlo << 29) | (immhi << 5)
	case objfmt.RelAddAbsLo12NC, objfmt.RelLdst64AbsLo12NC:
		imm := uint32(target+addend) & 0xFFF
		instr = (instr & 0xFFC003FF) | (imm << 10)
	default:
		return fmt.Errorf("linker: unsupported ARM64 relocation kind %s", kind)
	}
	binary.LittleEndian.PutUint32(loc, instr)
	return nil
}
