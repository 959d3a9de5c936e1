package linker

import (
	"bytes"
	"encoding/binary"

	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

// PE32+ writer, grounded on sld_win_x64.c's write_pe: a fixed DOS
// stub, PE signature, COFF header, and PE32+ optional header packed
// into one 0x400-byte header page, followed by one page-aligned (in
// memory) / 0x200-aligned (on disk) section per merged section. This
// repo's own assembler never emits COFF, so unlike sld_win_x64.c this
// writer's input is always one of our own ELF64/SAS objects — only
// the final image format differs by target-os.
const (
	imageDOSSignature = 0x5A4D
	imageNTSignature  = 0x00004550
	imageFileAMD64    = 0x8664
	imageFileARM64    = 0xAA64

	imageFileExecutable      = 0x0002
	imageFileLargeAddrAware  = 0x0020
	imageSubsystemWindowsCUI = 3
	dllCharNXCompat          = 0x0100
	dllCharTerminalAware     = 0x8000

	scnCntCode      = 0x00000020
	scnCntInitData  = 0x00000040
	scnCntUninitData = 0x00000080
	scnMemExecute   = 0x20000000
	scnMemRead      = 0x40000000
	scnMemWrite     = 0x80000000

	peSectionAlign = 0x1000
	peFileAlign    = 0x200
	peHeaderSize   = 0x400
)

type peSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

func peAlignUp(v, n uint32) uint32 { return (v + n - 1) &^ (n - 1) }

func (l *Linker) writePE() ([]byte, error) {
	entryRVA := uint32(peSectionAlign)
	for _, name := range []string{"mainCRTStartup", "WinMainCRTStartup", "_start", "main"} {
		if addr, ok := l.symbolAddr(name); ok {
			entryRVA = uint32(addr - windowsBase)
			break
		}
	}

	type secInfo struct {
		sec   *mergedSection
		chars uint32
	}
	var infos []secInfo
	var codeSize, dataSize, bssSize uint32
	for _, s := range l.sections {
		chars := uint32(scnMemRead)
		switch {
		case s.Exec:
			chars |= scnCntCode | scnMemExecute
			codeSize += uint32(s.Len())
		case s.Kind == objfmt.SectionBSS:
			chars |= scnCntUninitData | scnMemWrite
			bssSize += uint32(s.Len())
		default:
			chars |= scnCntInitData
			if s.Write {
				chars |= scnMemWrite
			}
			dataSize += uint32(s.Len())
		}
		infos = append(infos, secInfo{s, chars})
	}

	fileOffset := uint32(peHeaderSize)
	var sectionHeaders []peSectionHeader
	for _, info := range infos {
		var name [8]byte
		copy(name[:], info.sec.Name)
		sh := peSectionHeader{
			Name: name, VirtualSize: uint32(info.sec.Len()), VirtualAddress: uint32(info.sec.Vaddr - windowsBase),
			Characteristics: info.chars,
		}
		if info.sec.Kind != objfmt.SectionBSS {
			sh.SizeOfRawData = peAlignUp(uint32(info.sec.Len()), peFileAlign)
			sh.PointerToRawData = fileOffset
			fileOffset += sh.SizeOfRawData
		}
		sectionHeaders = append(sectionHeaders, sh)
	}

	imageEnd := uint32(peSectionAlign)
	for _, info := range infos {
		end := uint32(info.sec.Vaddr-windowsBase) + peAlignUp(uint32(info.sec.Len()), peSectionAlign)
		if end > imageEnd {
			imageEnd = end
		}
	}

	machine := uint16(imageFileAMD64)
	if l.arch == objfmt.ArchARM64 {
		machine = imageFileARM64
	}

	header := make([]byte, peHeaderSize)
	binary.LittleEndian.PutUint16(header[0:], imageDOSSignature)
	binary.LittleEndian.PutUint16(header[0x3C:], 0x80)
	copy(header[0x40:], "This program cannot be run in DOS mode.\r\r\n$")
	binary.LittleEndian.PutUint32(header[0x80:], imageNTSignature)

	coff := header[0x84:]
	binary.LittleEndian.PutUint16(coff[0:], machine)
	binary.LittleEndian.PutUint16(coff[2:], uint16(len(sectionHeaders)))
	binary.LittleEndian.PutUint16(coff[16:], 0xF0)
	binary.LittleEndian.PutUint16(coff[18:], imageFileExecutable|imageFileLargeAddrAware)

	opt := header[0x98:]
	binary.LittleEndian.PutUint16(opt[0:], 0x20B)
	opt[2] = 14
	binary.LittleEndian.PutUint32(opt[4:], codeSize)
	binary.LittleEndian.PutUint32(opt[8:], dataSize)
	binary.LittleEndian.PutUint32(opt[12:], bssSize)
	binary.LittleEndian.PutUint32(opt[16:], entryRVA)
	binary.LittleEndian.PutUint32(opt[20:], peSectionAlign)
	binary.LittleEndian.PutUint64(opt[24:], windowsBase)
	binary.LittleEndian.PutUint32(opt[32:], peSectionAlign)
	binary.LittleEndian.PutUint32(opt[36:], peFileAlign)
	binary.LittleEndian.PutUint16(opt[40:], 6)
	binary.LittleEndian.PutUint16(opt[48:], 6)
	binary.LittleEndian.PutUint32(opt[60:], peAlignUp(imageEnd, peSectionAlign))
	binary.LittleEndian.PutUint32(opt[64:], peHeaderSize)
	binary.LittleEndian.PutUint16(opt[72:], imageSubsystemWindowsCUI)
	binary.LittleEndian.PutUint16(opt[74:], dllCharNXCompat|dllCharTerminalAware)
	binary.LittleEndian.PutUint64(opt[76:], 0x100000)
	binary.LittleEndian.PutUint64(opt[84:], peSectionAlign)
	binary.LittleEndian.PutUint64(opt[92:], 0x100000)
	binary.LittleEndian.PutUint64(opt[100:], peSectionAlign)
	binary.LittleEndian.PutUint32(opt[112:], 16)

	sectTable := header[0x188:]
	for i, sh := range sectionHeaders {
		buf := new(bytes.Buffer)
		binary.Write(buf, binary.LittleEndian, sh)
		copy(sectTable[i*40:], buf.Bytes())
	}

	out := new(bytes.Buffer)
	out.Write(header)
	for i, info := range infos {
		if info.sec.Kind == objfmt.SectionBSS {
			continue
		}
		out.Write(info.sec.Data)
		end := sectionHeaders[i].PointerToRawData + sectionHeaders[i].SizeOfRawData
		for uint32(out.Len()) < end {
			out.WriteByte(0)
		}
	}

	return out.Bytes(), nil
}
