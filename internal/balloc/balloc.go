// Package balloc implements a buddy-style power-of-two block
// allocator over a fixed arena, per spec component 1. Every
// outstanding allocation is a single power-of-two block aligned to its
// size; allocation splits a larger free block when none of the
// requested order exists, and free merges buddies back together.
//
// No per-block metadata is kept in the arena for live blocks — callers
// always know the size of what they allocated and must pass it back to
// Free. Free blocks use their own first 8 bytes as a singly linked
// list node (the absolute arena offset of the next free block of the
// same order, or -1), so free-list bookkeeping costs nothing beyond
// the blocks already set aside as free.
package balloc

import (
	"fmt"
	"sync"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// MinOrder is the smallest block order; blocks are at least
// 1<<MinOrder bytes, large enough to hold a free-list link.
const MinOrder = 6 // 64 bytes

// MaxOrder bounds the largest block order this allocator will track.
const MaxOrder = 38 // 256 GiB, comfortably above any realistic arena

// Allocator carves a fixed []byte arena into power-of-two blocks.
//
// Concurrent access is serialised by an internal lock; this is a
// config-plane structure, never touched from the packet path.
type Allocator struct {
	mu    sync.Mutex
	arena []byte
	// free[order] is the arena offset of the head of the free list for
	// that order, or -1 if empty.
	free [MaxOrder + 1]int
}

// New creates an allocator over the given arena, which must already be
// addressable memory owned by the caller (typically a zone's mmap'd
// segment or a sub-slice of it).
func New(arena []byte) *Allocator {
	a := &Allocator{arena: arena}
	for i := range a.free {
		a.free[i] = -1
	}
	if len(arena) > 0 {
		a.seed(0, len(arena))
	}
	return a
}

// seed splits [pos, pos+size) into the largest aligned power-of-two
// blocks that fit and pushes each onto its order's free list.
func (a *Allocator) seed(pos, size int) {
	for size > 0 {
		order := MaxOrder
		for order > MinOrder && (1<<order) > size {
			order--
		}
		blockSize := 1 << order
		if blockSize > size {
			break
		}
		a.pushFree(order, pos)
		pos += blockSize
		size -= blockSize
	}
}

func orderFor(n int) int {
	order := MinOrder
	size := 1 << order
	for size < n {
		order++
		size <<= 1
	}
	return order
}

// Alloc returns the arena offset of a block of at least n bytes,
// aligned to its power-of-two size, or an error wrapping
// xerrors.ErrOutOfMemory.
func (a *Allocator) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("allocate %d bytes: %w", n, xerrors.ErrInvalidArgument)
	}

	order := orderFor(n)
	if order > MaxOrder {
		return 0, fmt.Errorf("allocate %d bytes: %w", n, xerrors.ErrOutOfMemory)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.popFree(order)
	if !ok {
		return 0, fmt.Errorf("allocate %d bytes (order %d): %w", n, order, xerrors.ErrOutOfMemory)
	}
	return pos, nil
}

// Free returns a block of n bytes previously returned by Alloc back to
// the allocator, merging with its buddy when possible.
func (a *Allocator) Free(pos, n int) {
	order := orderFor(n)

	a.mu.Lock()
	defer a.mu.Unlock()

	for order < MaxOrder {
		buddy := pos ^ (1 << order)
		if buddy+(1<<order) > len(a.arena) {
			break
		}
		if !a.removeFree(order, buddy) {
			break
		}
		if buddy < pos {
			pos = buddy
		}
		order++
	}
	a.pushFree(order, pos)
}

// popFree finds a free block of the requested order, splitting a
// larger one if necessary, and returns its offset.
func (a *Allocator) popFree(order int) (int, bool) {
	if a.free[order] != -1 {
		pos := a.free[order]
		a.free[order] = a.nextLink(pos)
		return pos, true
	}
	if order >= MaxOrder {
		return 0, false
	}
	parent, ok := a.popFree(order + 1)
	if !ok {
		return 0, false
	}
	buddy := parent + (1 << order)
	a.pushFree(order, buddy)
	return parent, true
}

func (a *Allocator) pushFree(order, pos int) {
	a.setNextLink(pos, a.free[order])
	a.free[order] = pos
}

func (a *Allocator) nextLink(pos int) int {
	return getLink(a.arena, pos)
}

func (a *Allocator) setNextLink(pos, next int) {
	putLink(a.arena, pos, next)
}

func (a *Allocator) removeFree(order, target int) bool {
	prev := -1
	cur := a.free[order]
	for cur != -1 {
		next := getLink(a.arena, cur)
		if cur == target {
			if prev == -1 {
				a.free[order] = next
			} else {
				putLink(a.arena, prev, next)
			}
			return true
		}
		prev = cur
		cur = next
	}
	return false
}

func putLink(arena []byte, pos, v int) {
	u := uint64(int64(v))
	b := arena[pos : pos+8 : pos+8]
	for i := range 8 {
		b[i] = byte(u >> (8 * i))
	}
}

func getLink(arena []byte, pos int) int {
	b := arena[pos : pos+8 : pos+8]
	var u uint64
	for i := range 8 {
		u |= uint64(b[i]) << (8 * i)
	}
	return int(int64(u))
}
