// Package counter implements the counter registry and multi-instance
// counter storage shared by both planes (spec component 4).
//
// Registration is deliberately two-phase (spec.md §9 Open Question
// (iii)): Register only assigns a stable identity; the pool offset
// backing that identity is assigned — and, once assigned, preserved
// across later generations — only when the registry is Link-ed into a
// successor. This is what lets counters survive incremental
// reconfiguration without their storage pages moving.
package counter

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// PoolCount is the number of size-class pools: sizes {1,2,4,8,16}.
const PoolCount = 5

// SentinelOffset marks an entry not yet assigned a storage offset.
const SentinelOffset = ^uint64(0)

// Handle locates a registered counter's backing storage.
type Handle struct {
	Pool   int
	Offset uint64
	Size   int
}

// Entry is one registered counter.
type Entry struct {
	Name   string
	Size   int
	Pool   int
	Offset uint64
	Gen    uint64
}

type key struct {
	name string
	size int
}

// Registry maps (name, size) to a stable counter id.
type Registry struct {
	mu            sync.Mutex
	entries       []Entry
	byKey         map[key]uint64
	poolWatermark [PoolCount]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]uint64)}
}

func poolOf(size int) (int, error) {
	switch size {
	case 1, 2, 4, 8, 16:
		return bits.TrailingZeros(uint(size)), nil
	default:
		return 0, fmt.Errorf("counter size %d: must be one of {1,2,4,8,16}: %w", size, xerrors.ErrInvalidArgument)
	}
}

// Register looks up (name, size); if present its generation stamp is
// refreshed to gen and its existing id returned. Otherwise a new entry
// is appended with a sentinel offset, to be assigned later by Link.
func (r *Registry) Register(name string, size int, gen uint64) (uint64, error) {
	if name == "" {
		return 0, fmt.Errorf("register counter: %w", xerrors.ErrInvalidArgument)
	}
	pool, err := poolOf(size)
	if err != nil {
		return 0, err
	}

	k := key{name, size}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[k]; ok {
		r.entries[id].Gen = gen
		return id, nil
	}

	id := uint64(len(r.entries))
	r.entries = append(r.entries, Entry{
		Name:   name,
		Size:   size,
		Pool:   pool,
		Offset: SentinelOffset,
		Gen:    gen,
	})
	r.byKey[k] = id
	return id, nil
}

// Entry returns a copy of the registered entry for id.
func (r *Registry) Entry(id uint64) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.entries)) {
		return Entry{}, false
	}
	return r.entries[id], true
}

// Handle returns the storage handle for id. It is only meaningful
// after the registry holding id has been the destination of Link.
func (r *Registry) Handle(id uint64) (Handle, bool) {
	e, ok := r.Entry(id)
	if !ok || e.Offset == SentinelOffset {
		return Handle{}, false
	}
	return Handle{Pool: e.Pool, Offset: e.Offset, Size: e.Size}, true
}

// Entries returns a snapshot of every registered entry, for
// introspection.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Link carries forward every entry of src into dst: an entry already
// present in dst keeps its previously assigned offset (so its storage
// page never moves); a new entry is assigned the next free offset in
// its pool. This is the only place pool offsets are ever assigned.
func Link(dst, src *Registry) {
	src.mu.Lock()
	srcEntries := make([]Entry, len(src.entries))
	copy(srcEntries, src.entries)
	src.mu.Unlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()

	for _, se := range srcEntries {
		k := key{se.Name, se.Size}
		if id, ok := dst.byKey[k]; ok {
			existing := dst.entries[id]
			if existing.Offset != SentinelOffset {
				dst.entries[id].Gen = se.Gen
				continue
			}
			existing.Offset = dst.poolWatermark[se.Pool]
			existing.Gen = se.Gen
			dst.poolWatermark[se.Pool] += uint64(se.Size)
			dst.entries[id] = existing
			continue
		}

		offset := dst.poolWatermark[se.Pool]
		dst.poolWatermark[se.Pool] += uint64(se.Size)

		id := uint64(len(dst.entries))
		dst.entries = append(dst.entries, Entry{
			Name:   se.Name,
			Size:   se.Size,
			Pool:   se.Pool,
			Offset: offset,
			Gen:    se.Gen,
		})
		dst.byKey[k] = id
	}
}

// poolSlots returns the number of uint64 slots currently claimed in
// each pool, used by Spawn to size storage blocks.
func (r *Registry) poolSlots() [PoolCount]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolWatermark
}
