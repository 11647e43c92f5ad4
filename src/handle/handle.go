// Package handle implements component 3.6: the process-wide handle
// table. A handle is an opaque, never-reused identifier for a kernel
// object (Task, Thread, Port, MapEntry, IrqHandler); translating one
// bumps the object's reference count so the caller holds a safe
// reference for the duration of its use.
//
// Grounded on the teacher's Fd_t table (biscuit/src/fd/fd.go: small
// per-owner tables of reference-counted objects behind an interface)
// for the table shape, and on kush-os's smart-pointer/GlobalState
// handle-translation idiom (SmartPointers.h, GlobalState.cpp: look up
// by id, bump a strong refcount, hand back the object or a failure)
// for the Translate contract.
package handle

import (
	"sync"

	"biscuit/src/defs"
)

// Object is anything a handle can refer to. AddRef is called by
// Translate on every successful lookup; Release is called by the
// owner once it is done with the reference.
type Object interface {
	AddRef()
	Release() int32
}

// Table is a process-wide map from handle to kernel object. The zero
// value is not usable; construct with New.
type Table struct {
	mu   sync.RWMutex
	next uint64
	m    map[defs.Handle]Object
}

// New returns an empty table. Handle 0 is never issued, so it can
// serve as an "invalid handle" sentinel.
func New() *Table {
	return &Table{next: 1, m: map[defs.Handle]Object{}}
}

// Alloc registers obj under a freshly minted handle.
func (t *Table) Alloc(obj Object) defs.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := defs.Handle(t.next)
	t.next++
	t.m[h] = obj
	return h
}

// Translate looks up h, asserts it names a T, and bumps its reference
// count on success. The caller must Release() what it gets back.
func Translate[T Object](t *Table, h defs.Handle) (T, bool) {
	var zero T
	t.mu.RLock()
	obj, ok := t.m[h]
	t.mu.RUnlock()
	if !ok {
		return zero, false
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, false
	}
	typed.AddRef()
	return typed, true
}

// Free removes h from the table and returns the object it named,
// without touching its reference count (the caller is expected to
// Release the table's own implicit reference).
func (t *Table) Free(h defs.Handle) (Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.m[h]
	if ok {
		delete(t.m, h)
	}
	return obj, ok
}

// Len reports the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
