package linker

import "github.com/secwest/small-c-x64-arm/internal/objfmt"

// layoutELF implements Phase 2 for a Linux ELF image: code sections
// first starting at BASE+PAGE_SIZE, then data sections page-aligned,
// then bss, each class walked in first-seen order and 16-byte aligned
// between sections. Grounded on sld_enhanced.c's layout_sections.
func (l *Linker) layoutELF() {
	vaddr := uint64(linuxBase + pageSize)
	for _, s := range l.sections {
		if !s.Exec {
			continue
		}
		s.Vaddr = vaddr
		vaddr += uint64(s.Len())
		vaddr = alignUp64(vaddr, sectionAlign)
	}
	vaddr = alignUp64(vaddr, pageSize)
	for _, s := range l.sections {
		if s.Exec || s.Kind == objfmt.SectionBSS {
			continue
		}
		s.Vaddr = vaddr
		vaddr += uint64(s.Len())
		vaddr = alignUp64(vaddr, sectionAlign)
	}
	for _, s := range l.sections {
		if s.Kind != objfmt.SectionBSS {
			continue
		}
		s.Vaddr = vaddr
		vaddr += uint64(s.Len())
		vaddr = alignUp64(vaddr, sectionAlign)
	}
}

// layoutPE assigns one page-aligned RVA per section in first-seen
// order — PE has no code/data/bss grouping the way the ELF path does.
// Grounded on sld_win_x64.c's main/write_pe, which walk section_count
// sequentially assigning `rva += align_up(size, SECTION_ALIGN)`.
func (l *Linker) layoutPE() {
	rva := uint64(peSectionAlign)
	for _, s := range l.sections {
		s.Vaddr = windowsBase + rva
		rva += alignUp64(uint64(s.Len()), peSectionAlign)
	}
}

func alignUp64(v, n uint64) uint64 { return (v + n - 1) &^ (n - 1) }
