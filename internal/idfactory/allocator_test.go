package idfactory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyConfig(first, last int32) Config {
	return Config{
		Domain:          Domain{First: first, Last: last},
		InitialCapacity: DefaultInitialCapacity,
		GrowthInterval:  time.Hour,
	}
}

func mustAllocate(t *testing.T, a *Allocator) int32 {
	t.Helper()
	id, err := a.Allocate()
	require.NoError(t, err)
	return id
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"first equals last", toyConfig(5, 5)},
		{"first above last", toyConfig(10, 1)},
		{"zero capacity", Config{Domain: DefaultDomain(), GrowthInterval: time.Second}},
		{"zero interval", Config{Domain: DefaultDomain(), InitialCapacity: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNew_DefaultDomain(t *testing.T) {
	t.Parallel()

	a, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, int(LastObjectID)-int(FirstObjectID)+1, a.Size())
	assert.Equal(t, 100003, a.Capacity(), "capacity is the next prime after 100000")
	assert.Equal(t, 0, a.UsedCount())

	id := mustAllocate(t, a)
	assert.Equal(t, FirstObjectID, id)
}

func TestAllocator_ToyScenario(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 9), []int32{2, 5})
	require.NoError(t, err)
	assert.Equal(t, 8, a.Size())

	assert.Equal(t, int32(0), mustAllocate(t, a))
	assert.Equal(t, int32(1), mustAllocate(t, a))
	assert.Equal(t, int32(3), mustAllocate(t, a), "2 is seeded")

	a.Release(0)

	var next []int32
	for range 7 {
		id, err := a.Allocate()
		if errors.Is(err, ErrExhausted) {
			break
		}
		require.NoError(t, err)
		next = append(next, id)
	}
	assert.Contains(t, next, int32(0))
	assert.NotContains(t, next, int32(2))
	assert.NotContains(t, next, int32(5))
}

func TestAllocator_Uniqueness(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(1000, 50999), nil)
	require.NoError(t, err)

	seen := make(map[int32]struct{}, 50000)
	for range 50000 {
		id := mustAllocate(t, a)
		require.GreaterOrEqual(t, id, int32(1000))
		require.LessOrEqual(t, id, int32(50999))
		_, dup := seen[id]
		require.False(t, dup, "id %d allocated twice", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, 0, a.Size())
}

func TestAllocator_SeedExclusion(t *testing.T) {
	t.Parallel()

	seed := []int32{100, 101, 105, 199}
	a, err := New(toyConfig(100, 199), seed)
	require.NoError(t, err)
	assert.Equal(t, 96, a.Size())

	for range 96 {
		id := mustAllocate(t, a)
		assert.NotContains(t, seed, id)
	}

	_, err = a.Allocate()
	require.ErrorIs(t, err, ErrExhausted)

	a.Release(105)
	assert.Equal(t, int32(105), mustAllocate(t, a))
}

func TestNew_SkipsOutOfDomainAndDuplicateSeeds(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(100, 199), []int32{-1, 0, 99, 200, 150, 150, 150})
	require.NoError(t, err)

	assert.Equal(t, 99, a.Size(), "only 150 counts, once")
	assert.Equal(t, 1, a.UsedCount())
}

func TestNew_SeedBeyondInitialCapacity(t *testing.T) {
	t.Parallel()

	cfg := toyConfig(0, 1_000_000)
	cfg.InitialCapacity = 10
	a, err := New(cfg, []int32{500_000})
	require.NoError(t, err)

	assert.Greater(t, a.Capacity(), 500_000)
	assert.Equal(t, 1_000_000, a.Size())

	for range 1000 {
		assert.NotEqual(t, int32(500_000), mustAllocate(t, a))
	}
}

func TestNew_SparseSeedSizedOnce(t *testing.T) {
	t.Parallel()

	const n = 20_000
	seed := make([]int32, n)
	for i := range seed {
		seed[i] = FirstObjectID + int32(i)*10_000
	}

	start := time.Now()
	a, err := New(DefaultConfig(), seed)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "seeding sparse ids must stay linear")

	top := (n-1)*10_000 + 1
	assert.Equal(t, nextPrime(top), a.Capacity())
	assert.Equal(t, n, a.UsedCount())

	id := mustAllocate(t, a)
	assert.Equal(t, FirstObjectID+1, id)
}

func TestAllocator_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 99), nil)
	require.NoError(t, err)

	id := mustAllocate(t, a)
	assert.Equal(t, 99, a.Size())

	a.Release(id)
	assert.Equal(t, 100, a.Size())
	a.Release(id)
	assert.Equal(t, 100, a.Size(), "second release must not change the counter")

	a.Release(50) // never allocated
	assert.Equal(t, 100, a.Size())

	a.Release(-5)
	a.Release(1000)
	assert.Equal(t, 100, a.Size())
}

func TestAllocator_ReleaseDoesNotRewindHint(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 99), nil)
	require.NoError(t, err)

	for range 10 {
		mustAllocate(t, a)
	}
	a.Release(3)

	assert.Equal(t, int32(10), mustAllocate(t, a))
}

func TestAllocator_ReuseAfterWrap(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 19), nil)
	require.NoError(t, err)

	first := mustAllocate(t, a)
	a.Release(first)

	free := a.Size()
	found := false
	for range free {
		if mustAllocate(t, a) == first {
			found = true
			break
		}
	}
	assert.True(t, found, "released id %d must be handed out again", first)
}

func TestAllocator_Exhaustion(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 9), nil)
	require.NoError(t, err)

	for range 10 {
		mustAllocate(t, a)
	}

	_, err = a.Allocate()
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, a.Size())

	a.Release(4)
	assert.Equal(t, int32(4), mustAllocate(t, a))

	_, err = a.Allocate()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocator_GrowOnSaturation(t *testing.T) {
	t.Parallel()

	cfg := toyConfig(0, 999)
	cfg.InitialCapacity = 7
	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, 7, a.Capacity())

	issued := make(map[int32]struct{})
	prevCapacity := a.Capacity()
	for range 1000 {
		id := mustAllocate(t, a)
		_, dup := issued[id]
		require.False(t, dup, "id %d reissued after growth", id)
		issued[id] = struct{}{}

		c := a.Capacity()
		require.GreaterOrEqual(t, c, prevCapacity, "capacity must never shrink")
		prevCapacity = c
	}

	assert.Equal(t, 1000, a.Capacity())
	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocator_CheckCapacityPreservesBits(t *testing.T) {
	t.Parallel()

	cfg := toyConfig(0, 99_999)
	cfg.InitialCapacity = 101
	a, err := New(cfg, nil)
	require.NoError(t, err)

	issued := make([]int32, 0, 101)
	for range 101 {
		issued = append(issued, mustAllocate(t, a))
	}
	before := a.Capacity()

	a.checkCapacity()

	assert.Greater(t, a.Capacity(), before)
	assert.Equal(t, 101, a.UsedCount())
	for range 500 {
		assert.NotContains(t, issued, mustAllocate(t, a))
	}
}

func TestAllocator_CheckCapacityNoop(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 99_999), nil)
	require.NoError(t, err)
	before := a.Capacity()

	a.checkCapacity()
	assert.Equal(t, before, a.Capacity())
}

func TestAllocator_ConcurrentAllocate(t *testing.T) {
	t.Parallel()

	const (
		workers = 16
		perWork = 2000
	)

	cfg := toyConfig(FirstObjectID, FirstObjectID+workers*perWork*2)
	cfg.InitialCapacity = 64
	a, err := New(cfg, nil)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int32]struct{}, workers*perWork)
		wg   sync.WaitGroup
	)

	errCh := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int32, 0, perWork)
			for range perWork {
				id, err := a.Allocate()
				if err != nil {
					errCh <- err
					return
				}
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}

	// growth check racing with allocations
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				a.checkCapacity()
			}
		}
	}()

	wg.Wait()
	close(done)
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Len(t, seen, workers*perWork, "every allocation must be distinct")
	assert.Equal(t, workers*perWork, a.UsedCount())
}

func TestAllocator_ConcurrentAllocateRelease(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(0, 9_999), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				id, err := a.Allocate()
				if !assert.NoError(t, err) {
					return
				}
				a.Release(id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10_000, a.Size())
	assert.Equal(t, 0, a.UsedCount())
}

func TestAllocator_Stats(t *testing.T) {
	t.Parallel()

	a, err := New(toyConfig(10, 19), []int32{10})
	require.NoError(t, err)

	s := a.Stats()
	assert.Equal(t, 9, s.Free)
	assert.Equal(t, 1, s.Used)
	assert.Equal(t, 10, s.Capacity)
	assert.Equal(t, int32(11), s.NextFree)
}

func TestAllocator_StatsNextFreeMatchesAllocate(t *testing.T) {
	t.Parallel()

	cfg := toyConfig(100, 199)
	cfg.InitialCapacity = 7
	a, err := New(cfg, nil)
	require.NoError(t, err)

	for range 7 {
		mustAllocate(t, a)
	}
	assert.Equal(t, int32(107), a.Stats().NextFree, "first id past a full bitset")

	a.Release(103)
	assert.Equal(t, int32(103), a.Stats().NextFree, "released id ahead of the parked hint")
	assert.Equal(t, int32(103), mustAllocate(t, a))

	full, err := New(toyConfig(0, 2), []int32{0, 1, 2})
	require.NoError(t, err)
	assert.Zero(t, full.Stats().NextFree)
}

func TestAllocator_RunGrowthLoop_Cancellation(t *testing.T) {
	t.Parallel()

	cfg := toyConfig(0, 99_999)
	cfg.InitialCapacity = 11
	cfg.GrowthInterval = 5 * time.Millisecond
	a, err := New(cfg, nil)
	require.NoError(t, err)

	for range 11 {
		mustAllocate(t, a)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.RunGrowthLoop(ctx) }()

	require.Eventually(t, func() bool { return a.Capacity() > 11 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("growth loop did not stop after cancel")
	}
}
