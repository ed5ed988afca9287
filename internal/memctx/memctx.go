// Package memctx implements the memory context: a thin, named
// allocation scope over a block allocator that tracks cumulative bytes
// allocated and freed, per spec component 2. A context is leaked iff
// balloc_size != bfree_size at teardown.
package memctx

import (
	"sync/atomic"

	"github.com/yanet-platform/yanet2go/internal/balloc"
)

// Context is a named allocation scope over a single block allocator.
type Context struct {
	name   string
	alloc  *balloc.Allocator
	balloc atomic.Uint64 // cumulative bytes allocated
	bfree  atomic.Uint64 // cumulative bytes freed
}

// New creates a memory context with the given owner name over alloc.
func New(name string, alloc *balloc.Allocator) *Context {
	return &Context{name: name, alloc: alloc}
}

// Name returns the context's owner name.
func (c *Context) Name() string { return c.name }

// Alloc allocates n bytes and charges n to the context's cumulative
// allocation total.
func (c *Context) Alloc(n int) (int, error) {
	pos, err := c.alloc.Alloc(n)
	if err != nil {
		return 0, err
	}
	c.balloc.Add(uint64(n))
	return pos, nil
}

// Free returns an n-byte block previously obtained from Alloc and
// credits n to the context's cumulative free total.
func (c *Context) Free(pos, n int) {
	c.alloc.Free(pos, n)
	c.bfree.Add(uint64(n))
}

// BallocSize returns the cumulative number of bytes allocated through
// this context.
func (c *Context) BallocSize() uint64 { return c.balloc.Load() }

// BfreeSize returns the cumulative number of bytes freed through this
// context.
func (c *Context) BfreeSize() uint64 { return c.bfree.Load() }

// Leaked reports whether the context has outstanding allocations, i.e.
// balloc_size != bfree_size. Call at teardown.
func (c *Context) Leaked() bool {
	return c.balloc.Load() != c.bfree.Load()
}

// ChargeAlloc is used by callers that manage their own arena placement
// (for instance agent module data living in an agent's logical object
// graph rather than carved byte-for-byte out of this context's
// allocator) but must still account for it against balloc_size, so
// that leak-freedom bookkeeping (P4) stays correct without forcing
// every CP object through raw byte allocation.
func (c *Context) ChargeAlloc(n int) {
	c.balloc.Add(uint64(n))
}

// ChargeFree is the Free-side counterpart of ChargeAlloc.
func (c *Context) ChargeFree(n int) {
	c.bfree.Add(uint64(n))
}
