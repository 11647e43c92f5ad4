package syscall

import (
	"biscuit/src/arena"
	"biscuit/src/defs"
	"biscuit/src/pte"
	"biscuit/src/vm"
)

const pageSize = uintptr(defs.PGSIZE)

// validateUserRange walks every page covering [va, va+length) in m and
// reports whether each is present and user-accessible. Ported from
// kush-os's Syscall::validateUserPtr: reject anything not mapped, and
// anything mapped without the user-access bit, before ever touching
// the bytes behind it.
func validateUserRange(m *vm.Map, va uintptr, length int) bool {
	if length == 0 {
		return true
	}
	base := va &^ (pageSize - 1)
	end := va + uintptr(length)
	for p := base; p < end; p += pageSize {
		_, flags, ok := m.Get(p)
		if !ok {
			return false
		}
		if flags&pte.FlagUser == 0 {
			return false
		}
	}
	return true
}

// copyIn validates [va, va+length) against m and copies it out of the
// hosted RAM stick into a fresh buffer.
func copyIn(m *vm.Map, stick *arena.Stick, va uintptr, length int) ([]byte, defs.Err_t) {
	if !validateUserRange(m, va, length) {
		return nil, defs.EFAULT
	}
	buf := make([]byte, length)
	copied := 0
	for copied < length {
		page := (va + uintptr(copied)) &^ (pageSize - 1)
		off := int((va + uintptr(copied)) - page)
		phys, _, _ := m.Get(page)
		n := int(pageSize) - off
		if n > length-copied {
			n = length - copied
		}
		copy(buf[copied:copied+n], stick.Bytes(phys, int(pageSize))[off:off+n])
		copied += n
	}
	return buf, defs.Ok
}

// copyOut validates [va, va+len(src)) against m and writes src into
// the hosted RAM stick at the corresponding physical pages.
func copyOut(m *vm.Map, stick *arena.Stick, va uintptr, src []byte) defs.Err_t {
	if !validateUserRange(m, va, len(src)) {
		return defs.EFAULT
	}
	written := 0
	for written < len(src) {
		page := (va + uintptr(written)) &^ (pageSize - 1)
		off := int((va + uintptr(written)) - page)
		phys, _, _ := m.Get(page)
		n := int(pageSize) - off
		if n > len(src)-written {
			n = len(src) - written
		}
		copy(stick.Bytes(phys, int(pageSize))[off:off+n], src[written:written+n])
		written += n
	}
	return defs.Ok
}
