// Package shm implements the shared-memory segment: a single physical
// region holding one CP config zone per populated NUMA node. Zones are
// attached by mapping a path (conventionally a hugepages-backed file)
// MAP_SHARED, so the same bytes are visible, at possibly different
// base addresses, to every attached process — which is why every
// cross-object link inside a zone is a self-relative offset
// (internal/relptr) rather than a pointer.
package shm

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/memctx"
	"github.com/yanet-platform/yanet2go/internal/numa"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// DefaultPath is the conventional hugepages-backed shared-memory file.
const DefaultPath = "/dev/hugepages/yanet"

// Segment is a handle to an attached shared-memory file. Each
// populated NUMA node gets one fixed-size Zone inside it.
type Segment struct {
	path string
	file *os.File
	data []byte

	zoneSize int
	zones    map[uint32]*Zone

	mu       sync.Mutex
	detached bool
}

// Attach maps the segment file at path, always truncating it to the
// required size and initialising a fresh layout; an existing layout in
// the file is neither checked nor reused. zoneSize bounds each
// NUMA zone's CP config arena; numaIdx enumerates which NUMA nodes get
// a zone.
func Attach(path string, zoneSize int, numaIdx ...uint32) (*Segment, error) {
	if zoneSize <= 0 {
		return nil, fmt.Errorf("attach %q: zone size must be positive: %w", path, xerrors.ErrInvalidArgument)
	}
	if len(numaIdx) == 0 {
		return nil, fmt.Errorf("attach %q: no NUMA nodes requested: %w", path, xerrors.ErrInvalidArgument)
	}

	total := zoneSize * len(numaIdx)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("attach %q: %w", path, err)
	}

	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		return nil, fmt.Errorf("attach %q: truncate: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("attach %q: mmap: %w", path, err)
	}

	seg := &Segment{
		path:     path,
		file:     f,
		data:     data,
		zoneSize: zoneSize,
		zones:    make(map[uint32]*Zone, len(numaIdx)),
	}

	for i, idx := range numaIdx {
		arena := data[i*zoneSize : (i+1)*zoneSize]
		seg.zones[idx] = newZone(idx, arena)
	}

	return seg, nil
}

// Detach unmaps the segment and closes the backing file. It is safe to
// call more than once.
func (s *Segment) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return nil
	}
	s.detached = true

	var err error
	if s.data != nil {
		err = unix.Munmap(s.data)
		s.data = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// NumaMap returns the bitmap of NUMA nodes that have a populated zone.
func (s *Segment) NumaMap() numa.Map {
	var m numa.Map
	for idx := range s.zones {
		m = m.Set(idx)
	}
	return m
}

// Zone returns the CP config zone for the given NUMA node, or
// (nil, false) if that node has no populated zone.
func (s *Segment) Zone(numaIdx uint32) (*Zone, bool) {
	z, ok := s.zones[numaIdx]
	return z, ok
}

// Zone is one NUMA-local CP config sub-zone: an arena governed by a
// block allocator and memory context, guarded by a PID-valued lock
// exactly like the reference's spin-based CAS lock.
type Zone struct {
	NumaIdx uint32

	arena []byte
	alloc *balloc.Allocator
	mctx  *memctx.Context

	lockHolder atomic.Int64 // 0 means unlocked, else holder's PID
}

func newZone(numaIdx uint32, arena []byte) *Zone {
	alloc := balloc.New(arena)
	return &Zone{
		NumaIdx: numaIdx,
		arena:   arena,
		alloc:   alloc,
		mctx:    memctx.New(fmt.Sprintf("cp-zone-%d", numaIdx), alloc),
	}
}

// MemCtx returns the zone's CP memory context, used to allocate
// registries, generation nodes and agent arenas.
func (z *Zone) MemCtx() *memctx.Context { return z.mctx }

// Arena exposes the zone's underlying byte arena so owners that carve
// a sub-arena out of it (agent.Attach) can build their own allocator
// over the carved slice.
func (z *Zone) Arena() []byte { return z.arena }

// Lock acquires the zone's CP lock via spin-based compare-and-swap,
// storing the caller's PID the way the reference implementation does.
// It spins until the lock is free, with no timeout; the config
// publisher is the only long-held owner and publish operations are
// rare, so plain spinning is adequate (see spec.md §4.4 step 1).
func (z *Zone) Lock() {
	pid := int64(os.Getpid())
	for !z.lockHolder.CompareAndSwap(0, pid) {
		// Config-plane only; contention is rare.
	}
}

// Unlock releases the CP lock.
func (z *Zone) Unlock() {
	z.lockHolder.Store(0)
}

// LockHolder returns the PID currently holding the CP lock, or 0 if
// unlocked.
func (z *Zone) LockHolder() int64 {
	return z.lockHolder.Load()
}
