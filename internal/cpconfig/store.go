package cpconfig

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yanet-platform/yanet2go/internal/shm"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// QuiescenceObserver reports the highest generation number a DP worker
// has fully observed; implemented by dpdispatch.Worker, injected here
// to avoid a package cycle.
type QuiescenceObserver interface {
	ObservedGen() uint64
}

// Store holds the single current generation for one CP zone and
// serializes every update_modules/update_pipelines/update_devices call
// behind the zone's CP lock, per spec.md §4.4.
type Store struct {
	zone     *shm.Zone
	resolver ModuleTypeResolver

	mu      sync.Mutex
	current atomic.Pointer[Generation]

	workersMu sync.Mutex
	workers   []QuiescenceObserver

	// QuiescenceTimeout bounds how long publish waits for every
	// worker to advance its generation counter before giving up and
	// returning ErrStuck; zero means wait forever, matching the
	// reference implementation's undeadlined loop.
	QuiescenceTimeout time.Duration
}

// NewStore returns a Store with an empty initial generation (gen 0, no
// modules, pipelines or devices).
func NewStore(zone *shm.Zone, resolver ModuleTypeResolver) *Store {
	s := &Store{zone: zone, resolver: resolver}
	s.current.Store(&Generation{
		Gen:       0,
		Modules:   &ModuleRegistry{},
		Pipelines: &PipelineRegistry{},
		Devices:   newEmptyDeviceRegistry(),
	})
	return s
}

// Current returns the currently published generation. Safe to call
// without holding the CP lock: readers only ever see a fully
// constructed generation (§4.4 "Ordering guarantees").
func (s *Store) Current() *Generation {
	return s.current.Load()
}

// RegisterWorker adds w to the set of DP workers the publisher waits
// on for quiescence.
func (s *Store) RegisterWorker(w QuiescenceObserver) {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	s.workers = append(s.workers, w)
}

// buildFunc constructs the next generation's module/pipeline/device
// registries from the previous one. It must call MarkSuperseded on any
// module data it displaces immediately (spec.md §4.4 step 5), and
// return a splice func per displaced record that moves it onto its
// owning agent's free list once quiescence is confirmed (step 8). It
// must not mutate prev or anything prev references.
type buildFunc func(prev *Generation) (next *Generation, splice []func(), err error)

// publish runs the eight-step skeleton common to update_modules,
// update_pipelines and update_devices (spec.md §4.4 steps 1-8: acquire
// the CP lock, read the old generation, build and publish the new one,
// await quiescence, then reclaim what it superseded).
func (s *Store) publish(ctx context.Context, build buildFunc) error {
	s.zone.Lock() // step 1: acquire CP lock
	defer s.zone.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load() // step 2: read old

	next, splice, err := build(prev) // steps 3-5: allocate, copy, rebuild, mark superseded
	if err != nil {
		return err // P2: current-generation pointer untouched
	}
	next.Prev = prev

	s.current.Store(next) // step 6: publish

	if err := s.awaitQuiescence(ctx, next.Gen); err != nil { // step 7
		return err
	}

	for _, fn := range splice { // step 8
		fn()
	}
	next.Prev = nil

	return nil
}

// awaitQuiescence blocks until every registered DP worker's observed
// generation has reached at least gen, per spec.md §4.4 step 7 and §9
// open question (i): unlike the reference's undeadlined spin, it
// honors ctx and s.QuiescenceTimeout, returning xerrors.ErrStuck
// naming the lagging workers' indices rather than hanging forever.
func (s *Store) awaitQuiescence(ctx context.Context, gen uint64) error {
	s.workersMu.Lock()
	workers := make([]QuiescenceObserver, len(s.workers))
	copy(workers, s.workers)
	s.workersMu.Unlock()

	if len(workers) == 0 {
		return nil
	}

	if s.QuiescenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.QuiescenceTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 5 * time.Millisecond

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		lagging := laggingWorkers(workers, gen)
		if len(lagging) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("generation %d: workers %v have not advanced: %w: %w", gen, lagging, ctx.Err(), xerrors.ErrStuck)
		case <-timer.C:
			timer.Reset(b.NextBackOff())
		}
	}
}

func laggingWorkers(workers []QuiescenceObserver, gen uint64) []int {
	var lagging []int
	for i, w := range workers {
		if w.ObservedGen() < gen {
			lagging = append(lagging, i)
		}
	}
	return lagging
}
