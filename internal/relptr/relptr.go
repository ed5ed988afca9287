// Package relptr implements the position-independent offset reference
// primitives used by every shared structure in the core: a signed
// offset stored at a field encodes "target − &field", so the same byte
// arena can be mapped at different base addresses in different
// processes and every link inside it still resolves correctly.
//
// This repository models a zone's shared memory as a single []byte
// arena (see internal/shm), addressed by int indices rather than raw
// pointers, so "address of field" is simply its index into that slice.
package relptr

// Null is the sentinel offset meaning "no target", by convention zero.
const Null = 0

// SetOffsetOf stores, at fieldPos within arena, the offset that
// AddrOf must add back to fieldPos to recover targetPos. It panics if
// the 8-byte field does not fit in arena, mirroring the core's
// assumption that every offset field is pre-allocated by its owner.
func SetOffsetOf(arena []byte, fieldPos int, targetPos int) {
	putInt64(arena, fieldPos, int64(targetPos-fieldPos))
}

// Clear stores the null offset at fieldPos.
func Clear(arena []byte, fieldPos int) {
	putInt64(arena, fieldPos, Null)
}

// AddrOf reads the offset stored at fieldPos and returns the absolute
// index it refers to, or (-1, false) if the field holds Null.
func AddrOf(arena []byte, fieldPos int) (int, bool) {
	off := getInt64(arena, fieldPos)
	if off == Null {
		return -1, false
	}
	return fieldPos + int(off), true
}

// Size is the on-arena footprint of an offset field.
const Size = 8

func putInt64(arena []byte, pos int, v int64) {
	b := arena[pos : pos+8 : pos+8]
	u := uint64(v)
	for i := range 8 {
		b[i] = byte(u >> (8 * i))
	}
}

func getInt64(arena []byte, pos int) int64 {
	b := arena[pos : pos+8 : pos+8]
	var u uint64
	for i := range 8 {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
