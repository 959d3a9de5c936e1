package assembler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// AArch64 instruction encoding. Every A64 instruction is exactly 4
// bytes (spec.md §4.D), which makes pass 1 sizing trivial — the
// interesting work is composing each instruction word from its bit
// fields, grounded on original_source/sas_enhanced.c's
// encode_arm64_* functions (get_arm64_reg + per-mnemonic bit
// packing), extended to the fuller mnemonic set
// internal/compiler/codegen's arm64Emitter emits.
const wordSize = 4

func arm64RegNum(name string) (byte, error) {
	name = strings.ToLower(name)
	switch name {
	case "sp":
		return 31, nil
	case "xzr", "wzr":
		return 31, nil
	}
	if len(name) >= 2 && (name[0] == 'x' || name[0] == 'w') {
		n, err := strconv.Atoi(name[1:])
		if err == nil && n >= 0 && n <= 31 {
			return byte(n), nil
		}
	}
	return 0, fmt.Errorf("unknown arm64 register %q", name)
}

func arm64Imm(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	return strconv.ParseInt(s, 0, 64)
}

func (a *Assembler) arm64Word(w uint32) {
	if a.pass == 1 {
		a.reserve(wordSize)
		return
	}
	a.emit([]byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)})
}

// arm64Branch resolves a branch target the same way x64Branch does:
// direct PC-relative displacement (in units of 4-byte instructions,
// not bytes) for a label already defined in the current section,
// else a relocation. Consults the object directly rather than
// lookupSymbol/the resolver interface, for the same reason
// x64Branch does: Value is a section-local offset, safe to use for
// a same-section relative distance but never as an absolute address.
func (a *Assembler) arm64Branch(fixedBits uint32, immShift uint, immBits uint32, relocKind objfmt.RelocKind, target string) {
	if a.pass == 1 {
		a.reserve(wordSize)
		return
	}
	if i, ok := a.obj.Symbol(target); ok {
		sym := a.obj.Symbols[i]
		if sym.Section == a.cur {
			rel := (sym.Value - a.offs[a.cur]) / wordSize
			a.emit(leWord(fixedBits | (uint32(rel)&mask(immBits))<<immShift))
			return
		}
	}
	a.addReloc(relocKind, target, 0)
	a.emit(leWord(fixedBits))
}

func leWord(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func mask(bits uint32) uint32 { return 1<<bits - 1 }

func (a *Assembler) processArm64(mnemonic string, ops []string) error {
	switch mnemonic {
	case "ret":
		a.arm64Word(0xD65F0000 | 30<<5) // RET X30
	case "b":
		a.arm64Branch(0x14000000, 0, 26, objfmt.RelJump26, ops[0])
		return nil
	case "bl":
		a.arm64Branch(0x94000000, 0, 26, objfmt.RelCall26, ops[0])
		return nil
	case "cbz":
		rt, err := arm64RegNum(ops[0])
		if err != nil {
			return err
		}
		a.arm64Branch(0x34000000|uint32(rt), 5, 19, objfmt.RelArm64Abs64, ops[1])
		return nil
	case "mov":
		return a.arm64Mov(ops)
	case "movz", "movk":
		return a.arm64MovZK(mnemonic, ops)
	case "add", "sub":
		return a.arm64AddSub(mnemonic, ops)
	case "str", "ldr", "ldrsb", "strb":
		return a.arm64LoadStore(mnemonic, ops)
	case "stp", "ldp":
		return a.arm64Pair(mnemonic, ops)
	case "adrp":
		rd, err := arm64RegNum(ops[0])
		if err != nil {
			return err
		}
		a.arm64AdrpReloc(rd, ops[1])
		return nil
	case "cmp":
		return a.arm64Cmp(ops)
	case "cset":
		rd, err := arm64RegNum(ops[0])
		if err != nil {
			return err
		}
		cond, ok := arm64CondCode[ops[1]]
		if !ok {
			return a.errf("unknown condition code %q", ops[1])
		}
		// CSET Xd, cond == CSINC Xd, XZR, XZR, invert(cond).
		a.arm64Word(0x9A9F07E0 | uint32(cond^1)<<12 | uint32(rd))
	case "mul":
		return a.arm64ThreeReg(0x9B007C00, ops)
	case "sdiv":
		return a.arm64ThreeReg(0x9AC00C00, ops)
	case "and":
		return a.arm64ThreeReg(0x8A000000, ops)
	case "orr":
		return a.arm64ThreeReg(0xAA000000, ops)
	case "eor":
		return a.arm64ThreeReg(0xCA000000, ops)
	case "lsl":
		if len(ops) == 3 && strings.HasPrefix(strings.TrimSpace(ops[2]), "#") {
			rd, err := arm64RegNum(ops[0])
			if err != nil {
				return err
			}
			rn, err := arm64RegNum(ops[1])
			if err != nil {
				return err
			}
			n, err := arm64Imm(ops[2])
			if err != nil {
				return err
			}
			a.arm64Word(0xD3400000 | uint32((64-n)&63)<<16 | uint32(63-n)<<10 | uint32(rn)<<5 | uint32(rd)) // UBFM alias
			return nil
		}
		return a.arm64ThreeReg(0x9AC02000, ops)
	case "asr":
		return a.arm64ThreeReg(0x9AC02800, ops)
	case "msub":
		return a.arm64MSub(ops)
	case "mvn":
		rd, err := arm64RegNum(ops[0])
		if err != nil {
			return err
		}
		rm, err := arm64RegNum(ops[1])
		if err != nil {
			return err
		}
		a.arm64Word(0xAA2003E0 | uint32(rm)<<16 | uint32(rd))
	case "neg":
		rd, err := arm64RegNum(ops[0])
		if err != nil {
			return err
		}
		rm, err := arm64RegNum(ops[1])
		if err != nil {
			return err
		}
		a.arm64Word(0xCB0003E0 | uint32(rm)<<16 | uint32(rd))
	default:
		return a.errf("unknown arm64 mnemonic %q", mnemonic)
	}
	return nil
}

var arm64CondCode = map[string]uint32{
	"eq": 0, "ne": 1, "cs": 2, "cc": 3, "mi": 4, "pl": 5, "vs": 6, "vc": 7,
	"hi": 8, "ls": 9, "ge": 10, "lt": 11, "gt": 12, "le": 13, "al": 14,
}

// mov has three shapes in our codegen: "mov x29, sp" / "mov sp, x29"
// (SP can't appear in a shifted-register operand, so these are the
// ADD-immediate #0 alias), and "mov x0, x1" (ORR shifted-register
// with XZR, the general register-move alias).
func (a *Assembler) arm64Mov(ops []string) error {
	rd, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	rs, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	if rd == 31 || rs == 31 {
		a.arm64Word(0x91000000 | uint32(rs)<<5 | uint32(rd)) // add rd, rs, #0
		return nil
	}
	a.arm64Word(0xAA0003E0 | uint32(rs)<<16 | uint32(rd)) // orr rd, xzr, rs
	return nil
}

func (a *Assembler) arm64MovZK(mnemonic string, ops []string) error {
	rd, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	imm, err := arm64Imm(ops[1])
	if err != nil {
		return err
	}
	var hw uint32
	if len(ops) > 2 {
		// "lsl #16"/"#32"/"#48"
		fields := strings.Fields(strings.ReplaceAll(ops[2], "#", " #"))
		shiftVal, err := arm64Imm(fields[len(fields)-1])
		if err != nil {
			return err
		}
		hw = uint32(shiftVal) / 16
	}
	base := uint32(0xD2800000)
	if mnemonic == "movk" {
		base = 0xF2800000
	}
	a.arm64Word(base | hw<<21 | (uint32(imm)&0xFFFF)<<5 | uint32(rd))
	return nil
}

// arm64AddSub handles "add/sub xd, xn, #imm" (frame-address and stack
// adjustment forms) and "add xd, xn, :lo12:label" (the low 12 bits of
// a label's address, paired with a preceding adrp), plus the 3-register
// shifted-register form ("add x0, x1, x0") that BinOp's '+'/'-' cases
// emit.
func (a *Assembler) arm64AddSub(mnemonic string, ops []string) error {
	rd, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	rn, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	third := strings.TrimSpace(ops[2])
	if lo12, ok := strings.CutPrefix(third, ":lo12:"); ok {
		if a.pass == 1 {
			a.reserve(wordSize)
			return nil
		}
		a.addReloc(objfmt.RelAddAbsLo12NC, lo12, 0)
		a.arm64Word(0x91000000 | uint32(rn)<<5 | uint32(rd))
		return nil
	}
	if !strings.HasPrefix(third, "#") {
		rm, err := arm64RegNum(third)
		if err != nil {
			return err
		}
		base := uint32(0x8B000000) // ADD (shifted register), 64-bit
		if mnemonic == "sub" {
			base = 0xCB000000
		}
		a.arm64Word(base | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
		return nil
	}
	imm, err := arm64Imm(third)
	if err != nil {
		return err
	}
	base := uint32(0x91000000)
	if mnemonic == "sub" {
		base = 0xD1000000
	}
	a.arm64Word(base | (uint32(imm)&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd))
	return nil
}

// arm64Cmp handles both "cmp xn, xm" (SUBS XZR, Xn, Xm) and
// "cmp xn, #imm" (SUBS XZR, Xn, #imm); our codegen only ever compares
// against #0, but the register form backs the '==' etc. BinOp cases.
func (a *Assembler) arm64Cmp(ops []string) error {
	rn, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	if strings.HasPrefix(strings.TrimSpace(ops[1]), "#") {
		imm, err := arm64Imm(ops[1])
		if err != nil {
			return err
		}
		a.arm64Word(0xF1000000 | (uint32(imm)&0xFFF)<<10 | uint32(rn)<<5 | 31)
		return nil
	}
	rm, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	a.arm64Word(0xEB000000 | uint32(rm)<<16 | uint32(rn)<<5 | 31)
	return nil
}

// arm64LoadStore covers the [base], [base, #imm], [base, #imm]!, and
// [base], #imm (post-index) addressing forms our codegen uses.
func (a *Assembler) arm64LoadStore(mnemonic string, ops []string) error {
	rt, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	memText := strings.Join(ops[1:], ",")
	preIndex := strings.HasSuffix(strings.TrimSpace(memText), "!")
	memText = strings.TrimSuffix(strings.TrimSpace(memText), "!")
	inBracket, postImm := splitBracket(memText)
	parts := splitOperands(inBracket)
	base, err := arm64RegNum(strings.TrimSpace(parts[0]))
	if err != nil {
		return err
	}
	var imm int64
	if len(parts) > 1 {
		imm, err = arm64Imm(parts[1])
		if err != nil {
			return err
		}
	} else if postImm != "" {
		imm, err = arm64Imm(postImm)
		if err != nil {
			return err
		}
	}

	size, load := arm64LoadStoreOpc(mnemonic)
	switch {
	case postImm != "":
		// Post-index, unscaled 9-bit immediate.
		a.arm64Word(size | 0x00000400 | (uint32(imm)&0x1FF)<<12 | uint32(base)<<5 | uint32(rt) | load)
	case preIndex:
		a.arm64Word(size | 0x00000C00 | (uint32(imm)&0x1FF)<<12 | uint32(base)<<5 | uint32(rt) | load)
	case imm < 0:
		// Negative offset: unscaled signed 9-bit form (LDUR/STUR family).
		a.arm64Word(size | (uint32(imm)&0x1FF)<<12 | uint32(base)<<5 | uint32(rt) | load)
	default:
		scale := arm64ScaleShift(mnemonic)
		scaledImm := uint32(imm) >> scale
		a.arm64Word(size | 0x01000000 | (scaledImm&0xFFF)<<10 | uint32(base)<<5 | uint32(rt) | load)
	}
	return nil
}

func arm64LoadStoreOpc(mnemonic string) (opc uint32, loadBit uint32) {
	switch mnemonic {
	case "ldr":
		return 0xF8000000, 1 << 22
	case "str":
		return 0xF8000000, 0
	case "ldrsb":
		return 0x38800000, 0 // LDRSB (64-bit target, opc=10 already folded into base)
	case "strb":
		return 0x38000000, 0
	}
	return 0, 0
}

func arm64ScaleShift(mnemonic string) uint32 {
	if mnemonic == "ldrsb" || mnemonic == "strb" {
		return 0
	}
	return 3 // 64-bit LDR/STR scales the immediate by 8
}

func splitBracket(s string) (inside, postImm string) {
	open := strings.IndexByte(s, '[')
	close := strings.IndexByte(s, ']')
	if open < 0 || close < 0 {
		return s, ""
	}
	inside = s[open+1 : close]
	rest := strings.TrimSpace(s[close+1:])
	rest = strings.TrimPrefix(rest, ",")
	return inside, strings.TrimSpace(rest)
}

func (a *Assembler) arm64Pair(mnemonic string, ops []string) error {
	rt, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	rt2, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	memText := strings.Join(ops[2:], ",")
	preIndex := strings.HasSuffix(strings.TrimSpace(memText), "!")
	memText = strings.TrimSuffix(strings.TrimSpace(memText), "!")
	inside, postImm := splitBracket(memText)
	parts := splitOperands(inside)
	base, err := arm64RegNum(strings.TrimSpace(parts[0]))
	if err != nil {
		return err
	}
	var imm int64
	if len(parts) > 1 {
		imm, err = arm64Imm(parts[1])
		if err != nil {
			return err
		}
	} else if postImm != "" {
		imm, err = arm64Imm(postImm)
		if err != nil {
			return err
		}
	}
	imm7 := uint32(imm/8) & 0x7F
	load := uint32(0)
	if mnemonic == "ldp" {
		load = 1 << 22
	}
	mode := uint32(0x01000000) // signed offset
	if postImm != "" {
		mode = 0x00800000 // post-index
	} else if preIndex {
		mode = 0x01800000 // pre-index
	}
	a.arm64Word(0xA8000000 | mode | load | imm7<<15 | uint32(rt2)<<10 | uint32(base)<<5 | uint32(rt))
	return nil
}

func (a *Assembler) arm64ThreeReg(base uint32, ops []string) error {
	rd, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	rn, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	rm, err := arm64RegNum(ops[2])
	if err != nil {
		return err
	}
	a.arm64Word(base | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
	return nil
}

func (a *Assembler) arm64MSub(ops []string) error {
	rd, err := arm64RegNum(ops[0])
	if err != nil {
		return err
	}
	rn, err := arm64RegNum(ops[1])
	if err != nil {
		return err
	}
	rm, err := arm64RegNum(ops[2])
	if err != nil {
		return err
	}
	ra, err := arm64RegNum(ops[3])
	if err != nil {
		return err
	}
	a.arm64Word(0x9B008000 | uint32(rm)<<16 | uint32(ra)<<10 | uint32(rn)<<5 | uint32(rd))
	return nil
}

// arm64AdrpReloc emits ADRP followed (by the caller's next source
// line) by an ADD :lo12:; ADRP itself always needs the page-relative
// relocation since its target page is only known after layout.
func (a *Assembler) arm64AdrpReloc(rd byte, label string) {
	if a.pass == 1 {
		a.reserve(wordSize)
		return
	}
	a.addReloc(objfmt.RelAdrPrelPgHi21, label, 0)
	a.arm64Word(0x90000000 | uint32(rd))
}
