package diag

import (
	"bytes"
	"testing"
)

func TestDisassembleDecodesKnownInstructions(t *testing.T) {
	// nop; ret
	code := []byte{0x90, 0xc3}
	lines := Disassemble(code, 0x1000, 64)
	if len(lines) != 2 {
		t.Fatalf("expected 2 decoded instructions, got %d: %v", len(lines), lines)
	}
}

func TestDisassembleEmptyInput(t *testing.T) {
	lines := Disassemble(nil, 0, 64)
	if len(lines) != 0 {
		t.Fatalf("expected no lines for empty input, got %v", lines)
	}
}

func TestPanicBannerIncludesReasonAndDisassembly(t *testing.T) {
	s := PanicBanner("page fault", 0x1000, 0x2000, []byte{0x90}, 64)
	if !bytes.Contains([]byte(s), []byte("page fault")) {
		t.Fatalf("expected banner to mention the reason, got %q", s)
	}
	if !bytes.Contains([]byte(s), []byte("0x1000")) {
		t.Fatalf("expected banner to mention the pc, got %q", s)
	}
}

func TestWriteSnapshotProducesNonEmptyOutput(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSnapshot(&buf, MemStat{TotalPages: 100, FreePages: 42}, []ThreadStat{
		{TID: 1, Name: "root", CPUTicks: 10},
		{TID: 2, Name: "idle", CPUTicks: 1},
	})
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty gzip-compressed profile output")
	}
}
