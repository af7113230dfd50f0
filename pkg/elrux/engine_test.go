package elrux

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDescriptors is a minimal DescriptorTable for engine tests: a plain
// slice of states behind a mutex, standing in for the external buffer
// descriptor table spec.md scopes out of this module.
type fakeDescriptors struct {
	mu     sync.Mutex
	states []DescriptorState
}

func newFakeDescriptors(n int) *fakeDescriptors {
	return &fakeDescriptors{states: make([]DescriptorState, n)}
}

func (f *fakeDescriptors) LockHeader(id int) DescriptorState {
	f.mu.Lock()
	return f.states[id]
}

func (f *fakeDescriptors) UnlockHeader(id int, state DescriptorState) {
	f.states[id] = state
	f.mu.Unlock()
}

func (f *fakeDescriptors) setRefcount(id int, rc int32) {
	f.mu.Lock()
	f.states[id].Refcount = rc
	f.mu.Unlock()
}

func (f *fakeDescriptors) setUsage(id int, uc int32) {
	f.mu.Lock()
	f.states[id].UsageCount = uc
	f.mu.Unlock()
}

// TestEngine_FreshFillsBottomUpEviction mirrors spec scenario 1: every
// frame starts free; after all four are filled and touched in order, the
// ELRU bottom is the first-touched frame and is the next victim.
func TestEngine_FreshFillsBottomUpEviction(t *testing.T) {
	e := NewEngine(4, NewClock())
	dt := newFakeDescriptors(4)

	for i := 0; i < 4; i++ {
		e.freeMu.Lock()
		e.free.push(i)
		e.freeMu.Unlock()
	}

	var got []int
	for i := 0; i < 4; i++ {
		id, fromRing, err := e.AcquireFrame(nil, dt)
		require.NoError(t, err)
		require.False(t, fromRing)
		dt.UnlockHeader(id, dt.states[id])
		got = append(got, id)
	}
	require.ElementsMatch(t, []int{0, 1, 2, 3}, got)

	require.Equal(t, got, bottomToTop(e.elruList))

	// All unpinned: next acquire evicts the bottom (first filled).
	id, fromRing, err := e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	require.False(t, fromRing)
	require.Equal(t, got[0], id)
	dt.UnlockHeader(id, dt.states[id])
}

// TestEngine_SecondTouchProtection mirrors spec scenario 2.
func TestEngine_SecondTouchProtection(t *testing.T) {
	e := NewEngine(4, NewClock())
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Touch(i))
	}

	require.NoError(t, e.Touch(0)) // second touch -> tier 1

	order := bottomToTop(e.elruList)
	require.Equal(t, 0, order[len(order)-1]) // f0 now at top
	require.Equal(t, 1, order[0])             // f1 is now the bottom
}

// TestEngine_PinnedSkip mirrors spec scenario 3.
func TestEngine_PinnedSkip(t *testing.T) {
	e := NewEngine(4, NewClock())
	dt := newFakeDescriptors(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Touch(i))
	}
	require.NoError(t, e.Touch(0)) // order bottom->top: 1,2,3,0

	dt.setRefcount(1, 1) // pin f1

	id, _, err := e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	require.Equal(t, 2, id) // skips f1, evicts f2
	dt.UnlockHeader(id, dt.states[id])

	// Caller pins its newly acquired frame, as a real buffer manager would,
	// then pins the remaining two resident frames: now every resident frame
	// is pinned.
	dt.setRefcount(id, 1)
	dt.setRefcount(3, 1)
	dt.setRefcount(0, 1)

	_, _, err = e.AcquireFrame(nil, dt)
	require.ErrorIs(t, err, ErrNoUnpinnedBuffer)
}

// TestEngine_FreeListPreferredOverELRU mirrors spec scenario 4.
func TestEngine_FreeListPreferredOverELRU(t *testing.T) {
	e := NewEngine(4, NewClock())
	dt := newFakeDescriptors(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Touch(i))
	}

	require.NoError(t, e.ReleaseFrame(1))

	id, fromRing, err := e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	require.False(t, fromRing)
	require.Equal(t, 1, id, "free list entry must be preferred over the ELRU bottom")
	dt.UnlockHeader(id, dt.states[id])
}

// TestEngine_RingReuse mirrors spec scenario 5.
func TestEngine_RingReuse(t *testing.T) {
	e := NewEngine(8, NewClock())
	dt := newFakeDescriptors(8)
	for i := 0; i < 8; i++ {
		e.freeMu.Lock()
		e.free.push(i)
		e.freeMu.Unlock()
	}

	ring := newTestRing(t, 2)

	id1, fromRing, err := e.AcquireFrame(ring, dt)
	require.NoError(t, err)
	require.False(t, fromRing) // ring slot empty -> normal allocation
	ring.Record(id1)
	dt.UnlockHeader(id1, dt.states[id1])
	dt.setUsage(id1, 1)

	id2, fromRing, err := e.AcquireFrame(ring, dt)
	require.NoError(t, err)
	require.False(t, fromRing)
	ring.Record(id2)
	dt.UnlockHeader(id2, dt.states[id2])
	dt.setUsage(id2, 1)

	id3, fromRing, err := e.AcquireFrame(ring, dt)
	require.NoError(t, err)
	require.True(t, fromRing)
	require.Equal(t, id1, id3)
	dt.UnlockHeader(id3, dt.states[id3])
}

// TestEngine_RingReject mirrors spec scenario 6.
func TestEngine_RingReject(t *testing.T) {
	e := NewEngine(8, NewClock())
	dt := newFakeDescriptors(8)
	for i := 0; i < 8; i++ {
		e.freeMu.Lock()
		e.free.push(i)
		e.freeMu.Unlock()
	}
	ring := newTestRing(t, 2)

	id1, _, _ := e.AcquireFrame(ring, dt)
	ring.Record(id1)
	dt.UnlockHeader(id1, dt.states[id1])
	dt.setUsage(id1, 1)

	id2, _, _ := e.AcquireFrame(ring, dt)
	ring.Record(id2)
	dt.UnlockHeader(id2, dt.states[id2])
	dt.setUsage(id2, 1)

	id3, fromRing, err := e.AcquireFrame(ring, dt) // wraps to slot 0 == id1
	require.NoError(t, err)
	require.True(t, fromRing)
	require.Equal(t, id1, id3)
	dt.UnlockHeader(id3, dt.states[id3])

	require.True(t, ring.Reject(id1, true)) // clears slot 0

	id4, fromRing, err := e.AcquireFrame(ring, dt) // slot 1 still holds id2
	require.NoError(t, err)
	require.True(t, fromRing)
	require.Equal(t, id2, id4)
	dt.UnlockHeader(id4, dt.states[id4])

	id5, fromRing, err := e.AcquireFrame(ring, dt) // wraps to cleared slot 0 -> falls to normal path
	require.NoError(t, err)
	require.False(t, fromRing)
	dt.UnlockHeader(id5, dt.states[id5])
}

func TestEngine_ReleaseFrame_Idempotent(t *testing.T) {
	e := NewEngine(2, NewClock())
	require.NoError(t, e.Touch(0))
	require.NoError(t, e.ReleaseFrame(0))
	require.NoError(t, e.ReleaseFrame(0)) // second release: no-op

	_, ok := e.free.tryPop()
	require.True(t, ok)
	_, ok = e.free.tryPop()
	require.False(t, ok, "double release must not duplicate the free-list entry")
}

func TestEngine_ReleaseThenReacquire_ClearsPrevAccessed(t *testing.T) {
	e := NewEngine(1, NewClock())
	dt := newFakeDescriptors(1)

	require.NoError(t, e.Touch(0))
	require.NoError(t, e.Touch(0)) // tier 1 now

	require.NoError(t, e.ReleaseFrame(0))

	id, _, err := e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	require.Equal(t, 0, id)
	dt.UnlockHeader(id, dt.states[id])

	// AcquireFrame's free-list path touched the frame once on the way out.
	require.True(t, e.elruList.nodes[0].resident())
	require.Equal(t, timestampNil, e.elruList.nodes[0].prevAccessed)
}

func TestEngine_SyncStart_AllocCounter(t *testing.T) {
	e := NewEngine(4, NewClock())
	dt := newFakeDescriptors(4)
	for i := 0; i < 4; i++ {
		e.freeMu.Lock()
		e.free.push(i)
		e.freeMu.Unlock()
	}

	for i := 0; i < 3; i++ {
		id, _, err := e.AcquireFrame(nil, dt)
		require.NoError(t, err)
		dt.UnlockHeader(id, dt.states[id])
	}

	_, _, allocDelta := e.SyncStart()
	require.Equal(t, 3, allocDelta)

	_, _, allocDelta = e.SyncStart()
	require.Equal(t, 0, allocDelta, "alloc_count resets on read")
}

func TestEngine_NotifyBgWriter_WakesOnNextAcquire(t *testing.T) {
	e := NewEngine(2, NewClock())
	dt := newFakeDescriptors(2)
	e.freeMu.Lock()
	e.free.push(0)
	e.freeMu.Unlock()

	var woke int = -2
	e.SetWakeFunc(func(id int) { woke = id })
	e.NotifyBgWriter(7)

	id, _, err := e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	dt.UnlockHeader(id, dt.states[id])

	require.Equal(t, 7, woke)

	woke = -2
	e.freeMu.Lock()
	e.free.push(1)
	e.freeMu.Unlock()
	id, _, err = e.AcquireFrame(nil, dt)
	require.NoError(t, err)
	dt.UnlockHeader(id, dt.states[id])
	require.Equal(t, -2, woke, "notification fires only once")
}

func TestEngine_InvalidFrameID(t *testing.T) {
	e := NewEngine(2, NewClock())
	require.ErrorIs(t, e.Touch(-1), ErrInvalidFrameID)
	require.ErrorIs(t, e.Touch(2), ErrInvalidFrameID)
	require.ErrorIs(t, e.ReleaseFrame(99), ErrInvalidFrameID)
}

// TestEngine_Concurrent_Invariants stress-tests touch/acquire/release from
// many goroutines and checks P1 (residency partition) holds at rest.
func TestEngine_Concurrent_Invariants(t *testing.T) {
	const n = 32
	e := NewEngine(n, NewClock())
	dt := newFakeDescriptors(n)
	for i := 0; i < n; i++ {
		e.freeMu.Lock()
		e.free.push(i)
		e.freeMu.Unlock()
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, _, err := e.AcquireFrame(nil, dt)
				if err != nil {
					continue
				}
				dt.UnlockHeader(id, dt.states[id])
				_ = e.Touch(id)
				_ = e.ReleaseFrame(id)
			}
		}()
	}
	wg.Wait()

	// P1: every id is either free, resident, or neither; never both.
	for id := 0; id < n; id++ {
		e.freeMu.Lock()
		inFree := e.free.freeNext[id] != notInList || int(e.free.firstFree.Load()) == id
		e.freeMu.Unlock()
		resident := e.elruList.nodes[id].resident()
		require.False(t, inFree && resident, "frame %d is both free and resident", id)
	}
}
