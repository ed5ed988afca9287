// Package dpdispatch implements the DP-side half of the core: the
// immutable DP module table, the packet front, and the per-worker
// dispatch loop over the current config generation (spec.md §4.5,
// component 8).
package dpdispatch

import (
	"fmt"
	"sync"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// Handler processes a PacketFront for one module instance, moving
// packets between its four lists. It must not block or allocate.
type Handler func(payload any, pf *PacketFront)

// ModuleTable is the immutable table of DP module kinds, looked up by
// name both when an agent builds a ModuleData (to get its Index) and
// when the publisher resolves a pipeline's module references. It
// implements cpconfig.ModuleTypeResolver.
type ModuleTable struct {
	mu       sync.RWMutex
	byName   map[string]int
	names    []string
	handlers []Handler
}

// NewModuleTable returns an empty module table.
func NewModuleTable() *ModuleTable {
	return &ModuleTable{byName: make(map[string]int)}
}

// Register adds a DP module kind under name with the given packet
// handler, returning its index. Registering the same name twice is an
// error: the table is built once at startup and is immutable
// thereafter, matching the reference's "immutable DP module table".
func (t *ModuleTable) Register(name string, handler Handler) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[name]; ok {
		return 0, fmt.Errorf("register module kind %q: %w", name, xerrors.ErrExists)
	}

	idx := len(t.handlers)
	t.byName[name] = idx
	t.names = append(t.names, name)
	t.handlers = append(t.handlers, handler)
	return idx, nil
}

// LookupKind returns the module kind index registered under name.
func (t *ModuleTable) LookupKind(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byName[name]
	return idx, ok
}

// KindName returns the name a module kind index was registered under.
// Implements introspect.KindNamer.
func (t *ModuleTable) KindName(index int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.names) {
		return "", false
	}
	return t.names[index], true
}

// Handler returns the packet handler for a module kind index.
func (t *ModuleTable) Handler(index int) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.handlers) {
		return nil, false
	}
	return t.handlers[index], true
}
