// Package arena provides the hosted stand-in for physical RAM. Early
// boot, multiboot/bootboot parsing and ACPI/APIC hardware programming
// are out of scope for this kernel core (see spec §1); arena exists
// only to give the in-scope allocator and VM code a byte-addressable
// "physical address space" to run against in a hosted test binary, the
// same role the custom-runtime direct map (mem.Dmap in the teacher
// tree) plays for the real kernel.
package arena

import (
	"fmt"
	"sync"
	"unsafe"
)

// Stick is one simulated RAM stick: a contiguous, page-aligned byte
// range addressed by physical offset. A real platform would enumerate
// one or more of these from firmware memory maps; here they are
// constructed explicitly by boot configuration.
type Stick struct {
	base uintptr // physical base of this stick, for logging only
	buf  []byte
	mu   sync.Mutex // guards lazy mmap teardown only; reads/writes are unsynchronized like real RAM
}

// New allocates a Stick of the given length (rounded up to the host
// page size) at a caller-chosen simulated physical base address. On
// linux the backing store is an anonymous mmap so the arena behaves
// like real memory (zero-filled, lazily committed); elsewhere it falls
// back to a plain slice.
func New(base uintptr, length int) (*Stick, error) {
	buf, err := mmapAnon(length)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", length, err)
	}
	return &Stick{base: base, buf: buf}, nil
}

// Close releases the backing store.
func (s *Stick) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	err := munmapAnon(s.buf)
	s.buf = nil
	return err
}

// Base returns the simulated physical base address of the stick.
func (s *Stick) Base() uintptr { return s.base }

// Len returns the stick's length in bytes.
func (s *Stick) Len() int { return len(s.buf) }

// Contains reports whether the physical address p falls within this stick.
func (s *Stick) Contains(p uintptr) bool {
	return p >= s.base && p < s.base+uintptr(len(s.buf))
}

func (s *Stick) offset(p uintptr) int {
	if !s.Contains(p) {
		panic("arena: address out of range")
	}
	return int(p - s.base)
}

// Bytes returns a byte slice view of n bytes at physical address p.
func (s *Stick) Bytes(p uintptr, n int) []byte {
	off := s.offset(p)
	return s.buf[off : off+n]
}

// Zero zeroes n bytes starting at physical address p.
func (s *Stick) Zero(p uintptr, n int) {
	b := s.Bytes(p, n)
	for i := range b {
		b[i] = 0
	}
}

// Ref returns a typed pointer into the arena at physical address p,
// the hosted equivalent of the direct map (Dmap) a real kernel uses to
// turn a physical address into something the CPU can dereference.
func Ref[T any](s *Stick, p uintptr) *T {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	off := s.offset(p)
	if off+sz > len(s.buf) {
		panic("arena: ref out of range")
	}
	return (*T)(unsafe.Pointer(&s.buf[off]))
}
