// Package diag is the kernel's whole logging and fault-reporting
// story: plain fmt-based console banners, exactly as the teacher's
// mem.Phys_init and the pack's kernel/main.go print bring-up progress
// (no structured-logging library is introduced anywhere in the pack's
// kernel-core packages). It also carries the two debug-only tools a
// hosted kernel build wants on a fault: a disassembler for the
// instruction stream around a fault address, and a pprof snapshot of
// scheduler/memory accounting for offline inspection with "go tool
// pprof", both drawn from the teacher's own go.mod requires.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/google/pprof/profile"
	"golang.org/x/arch/x86/x86asm"
)

// Printf writes a console line, the hosted stand-in for the kernel's
// serial/VGA console output. Every in-kernel log callsite (boot
// progress, dbg_out, panic banners) funnels through here so output can
// be captured uniformly in tests.
func Printf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// Println is Printf's newline-terminated sibling, used for bring-up
// banners that don't need formatting.
func Println(args ...any) {
	fmt.Fprintln(os.Stderr, args...)
}

// Disassemble decodes the instruction stream in code starting at
// virtual address pc, one instruction at a time, in GNU syntax -- the
// format a panic banner prints around a faulting program counter.
// mode is the processor mode in bits (32 or 64, per x86asm.Decode's
// own convention). Decoding stops at the first instruction x86asm
// can't parse, since a corrupted or truncated stream past that point
// carries no useful information.
func Disassemble(code []byte, pc uint64, mode int) []string {
	var lines []string
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil {
			break
		}
		lines = append(lines, fmt.Sprintf("%#x: %s", pc+uint64(off), x86asm.GNUSyntax(inst, pc+uint64(off), nil)))
		off += inst.Len
	}
	return lines
}

// PanicBanner formats a fault report in the teacher's style: a reason
// line, the faulting registers, and (when code is non-empty) the
// disassembly around the fault. It never itself panics or exits --
// callers decide what to do with the string.
func PanicBanner(reason string, pc, faultAddr uint64, code []byte, mode int) string {
	s := fmt.Sprintf("kernel panic: %s\n  pc=%#x fault=%#x\n", reason, pc, faultAddr)
	for _, l := range Disassemble(code, pc, mode) {
		s += "  " + l + "\n"
	}
	return s
}

// ThreadStat is one thread's accounting sample for a Snapshot.
type ThreadStat struct {
	TID      uint64
	Name     string
	CPUTicks int64
}

// MemStat is the physical allocator's accounting sample for a
// Snapshot.
type MemStat struct {
	TotalPages int64
	FreePages  int64
}

// WriteSnapshot builds a pprof profile.Profile out of per-thread CPU
// tick counters and the allocator's page accounting and writes it,
// gzip-compressed, to w -- the same on-disk shape "go tool pprof"
// reads, repurposed here as a scheduler/memory snapshot rather than a
// Go runtime CPU profile.
func WriteSnapshot(w io.Writer, mem MemStat, threads []ThreadStat) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "cpu", Unit: "ticks"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "ticks"},
		Period:     1,
		Comments: []string{
			fmt.Sprintf("phys: %d/%d pages free", mem.FreePages, mem.TotalPages),
		},
	}

	funcs := make([]*profile.Function, 0, len(threads))
	locs := make([]*profile.Location, 0, len(threads))
	for i, th := range threads {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: fmt.Sprintf("tid:%d:%s", th.TID, th.Name)}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		funcs = append(funcs, fn)
		locs = append(locs, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{th.CPUTicks},
		})
	}
	p.Function = funcs
	p.Location = locs

	return p.Write(w)
}
