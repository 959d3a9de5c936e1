package assembler

import "testing"

func TestSplitLinesRecognizesLabelAndMnemonic(t *testing.T) {
	lines := splitLines("main:\n  movq $5, %rax # load five\n\n  ret\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %+v", len(lines), lines)
	}
	if lines[0].Label != "main" {
		t.Fatalf("line 0 label = %q, want main", lines[0].Label)
	}
	if lines[1].Op != "movq" || lines[1].Operand != "$5, %rax" {
		t.Fatalf("line 1 = %+v", lines[1])
	}
	if lines[2].Op != "ret" {
		t.Fatalf("line 2 = %+v", lines[2])
	}
}

func TestSplitLinesStripsSemicolonComments(t *testing.T) {
	lines := splitLines("  nop ; a comment\n")
	if len(lines) != 1 || lines[0].Op != "nop" {
		t.Fatalf("got %+v", lines)
	}
}

func TestSplitOperandsHandlesSIBCommas(t *testing.T) {
	got := splitOperands("-8(%rbp,%rax,8), %rcx")
	want := []string{"-8(%rbp,%rax,8)", "%rcx"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitOperandsHandlesBracketCommas(t *testing.T) {
	got := splitOperands("x0, [sp, #-16]!")
	want := []string{"x0", "[sp, #-16]!"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitLinesDoesNotTreatDirectiveAsLabel(t *testing.T) {
	lines := splitLines(".text\n")
	if len(lines) != 1 || lines[0].Label != "" || lines[0].Op != ".text" {
		t.Fatalf("got %+v, want a bare .text directive with no label", lines)
	}
}

func TestIsLabelCandidateRejectsPunctuation(t *testing.T) {
	if isLabelCandidate("$5") {
		t.Fatalf("$5 should not be a label candidate")
	}
	if !isLabelCandidate("loop_1") {
		t.Fatalf("loop_1 should be a label candidate")
	}
}
