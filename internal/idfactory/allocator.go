// Package idfactory allocates object IDs shared by all persistent game entities.
package idfactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// ErrExhausted is returned by Allocate when every id of the domain is in use.
var ErrExhausted = errors.New("object id domain exhausted")

const (
	DefaultInitialCapacity = 100000
	DefaultGrowthInterval  = 30 * time.Second
)

// Config holds allocator parameters.
type Config struct {
	Domain          Domain
	InitialCapacity int
	GrowthInterval  time.Duration
}

// DefaultConfig returns the game server domain with a 100k initial bitset and 30s growth checks.
func DefaultConfig() Config {
	return Config{
		Domain:          DefaultDomain(),
		InitialCapacity: DefaultInitialCapacity,
		GrowthInterval:  DefaultGrowthInterval,
	}
}

// Stats is a point-in-time view of the allocator state.
type Stats struct {
	Free     int
	Used     int
	Capacity int
	NextFree int32 // 0 when the domain is exhausted
}

// Allocator hands out unique object IDs and takes them back on release.
//
// A set bit at offset N means id Domain.First+N is in use. The bitset starts
// small and is grown (never shrunk) as utilization rises, either by
// RunGrowthLoop or synchronously by Allocate on saturation.
//
// Thread-safe: Allocate, Release and growth share one mutex, so the bitset,
// the free counter and the next-free hint always move together.
type Allocator struct {
	domain         Domain
	domainSize     uint
	growthInterval time.Duration

	mu       sync.Mutex
	bits     *bitset.BitSet
	capacity uint
	free     int
	nextFree uint // hint only; may point at a taken slot or at capacity
}

// New creates an allocator and marks every id of usedIDs as taken.
// usedIDs is the result of scanning all id-bearing tables; ids outside the
// domain are logged and skipped, duplicates are counted once.
func New(cfg Config, usedIDs []int32) (*Allocator, error) {
	if err := cfg.Domain.Validate(); err != nil {
		return nil, err
	}
	if cfg.InitialCapacity <= 0 {
		return nil, fmt.Errorf("invalid initial capacity %d", cfg.InitialCapacity)
	}
	if cfg.GrowthInterval <= 0 {
		return nil, fmt.Errorf("invalid growth interval %s", cfg.GrowthInterval)
	}

	domainSize := uint(cfg.Domain.Size())

	offsets := make([]uint, 0, len(usedIDs))
	var top uint
	skipped := 0
	for _, id := range usedIDs {
		off, ok := cfg.Domain.offset(id)
		if !ok {
			slog.Warn("object id in database is outside id domain",
				"objectID", id,
				"first", cfg.Domain.First,
				"last", cfg.Domain.Last)
			skipped++
			continue
		}
		offsets = append(offsets, off)
		top = max(top, off+1)
	}

	// One bitset covering the highest seeded offset, allocated before any bit is set.
	capacity := uint(nextPrime(cfg.InitialCapacity))
	if top > capacity {
		capacity = uint(nextPrime(int(max(top, uint(len(offsets))*11/10))))
	}
	capacity = min(capacity, domainSize)

	a := &Allocator{
		domain:         cfg.Domain,
		domainSize:     domainSize,
		growthInterval: cfg.GrowthInterval,
		bits:           bitset.New(capacity),
		capacity:       capacity,
		free:           int(domainSize),
	}

	for _, off := range offsets {
		if a.bits.Test(off) {
			continue
		}
		a.bits.Set(off)
		a.free--
	}

	if off, ok := a.findFreeLocked(0); ok {
		a.nextFree = off
	} else {
		a.nextFree = a.capacity
	}

	slog.Info("id factory initialized",
		"available", a.free,
		"used", a.usedLocked(),
		"capacity", a.capacity,
		"skipped", skipped)

	return a, nil
}

// Allocate returns a free id and marks it used.
// Returns ErrExhausted only when the whole domain is taken.
func (a *Allocator) Allocate() (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	off, ok := a.findFreeLocked(a.nextFree)
	if !ok {
		if !a.growLocked(a.capacity + 1) {
			return 0, fmt.Errorf("%w: all %d ids of [%d, %d] are in use",
				ErrExhausted, a.domainSize, a.domain.First, a.domain.Last)
		}
		// offset old capacity is clear after growth
		if off, ok = a.findFreeLocked(a.nextFree); !ok {
			return 0, fmt.Errorf("%w: no free id after growth to %d", ErrExhausted, a.capacity)
		}
	}

	a.bits.Set(off)
	a.free--

	if next, ok := a.findFreeLocked(off + 1); ok {
		a.nextFree = next
	} else {
		a.nextFree = a.capacity
	}

	return a.domain.First + int32(off), nil
}

// Release returns id to the pool. Releasing a free id is a no-op.
func (a *Allocator) Release(id int32) {
	off, ok := a.domain.offset(id)
	if !ok {
		slog.Warn("release of object id outside id domain",
			"objectID", id,
			"first", a.domain.First,
			"last", a.domain.Last)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if off >= a.capacity || !a.bits.Test(off) {
		return
	}
	a.bits.Clear(off)
	a.free++
}

// Size returns the number of free ids.
func (a *Allocator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

// UsedCount returns the number of ids in use.
func (a *Allocator) UsedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedLocked()
}

// Capacity returns the current bitset capacity.
func (a *Allocator) Capacity() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.capacity)
}

// Domain returns the id range served by the allocator.
func (a *Allocator) Domain() Domain {
	return a.domain
}

// Stats returns a consistent snapshot of counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Free:     a.free,
		Used:     a.usedLocked(),
		Capacity: int(a.capacity),
		NextFree: a.nextFreeLocked(),
	}
}

// nextFreeLocked returns the id the next Allocate would hand out, or 0 when
// the domain is exhausted. Offsets at or past capacity are always free.
func (a *Allocator) nextFreeLocked() int32 {
	if off, ok := a.findFreeLocked(a.nextFree); ok {
		return a.domain.First + int32(off)
	}
	if a.capacity < a.domainSize {
		return a.domain.First + int32(a.capacity)
	}
	return 0
}

// RunGrowthLoop grows the bitset ahead of demand every GrowthInterval.
// Blocks until ctx is cancelled.
func (a *Allocator) RunGrowthLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.growthInterval)
	defer ticker.Stop()

	slog.Info("id factory growth loop started", "interval", a.growthInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("id factory growth loop stopping")
			return ctx.Err()
		case <-ticker.C:
			a.checkCapacity()
		}
	}
}

// checkCapacity grows the bitset when used*1.1 no longer fits into it.
func (a *Allocator) checkCapacity() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if uint(nextPrime(a.usedLocked()*11/10)) > a.capacity {
		a.growLocked(0)
	}
}

// growLocked swaps in a bigger bitset holding every bit of the current one.
// New capacity is nextPrime(used*1.1), raised to nextPrime(atLeast) and
// clamped to the domain size. Reports false if capacity did not change.
func (a *Allocator) growLocked(atLeast uint) bool {
	want := uint(nextPrime(a.usedLocked() * 11 / 10))
	if want < atLeast {
		want = uint(nextPrime(int(atLeast)))
	}
	want = min(want, a.domainSize)
	if want <= a.capacity {
		return false
	}

	grown := bitset.New(want)
	grown.InPlaceUnion(a.bits)

	slog.Debug("id factory capacity increased", "from", a.capacity, "to", want)

	a.bits = grown
	a.capacity = want
	return true
}

// findFreeLocked returns the first clear offset at or after from, wrapping to 0.
func (a *Allocator) findFreeLocked(from uint) (uint, bool) {
	if from < a.capacity {
		if off, ok := a.bits.NextClear(from); ok && off < a.capacity {
			return off, true
		}
	}
	if off, ok := a.bits.NextClear(0); ok && off < a.capacity {
		return off, true
	}
	return 0, false
}

func (a *Allocator) usedLocked() int {
	return int(a.domainSize) - a.free
}
