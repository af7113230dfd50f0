package elrux

import (
	"sync"

	"go.uber.org/atomic"
)

// Engine is the process-wide ELRU replacement-policy singleton (spec's
// StrategyControl): it composes the free list, the ELRU ordered list, and
// ring strategies into AcquireFrame, and tracks the statistics a
// background writer consumes via SyncStart.
//
// An Engine is explicitly constructed with NewEngine and handed to every
// goroutine that needs it; there is no package-level instance. All state is
// reconstructed at process start (spec §6: "Persisted state: none").
type Engine struct {
	n     int
	clock *Clock

	// listMu protects only the ELRU list's own pointer structure (mirrors
	// the original's stack_lock): touch/evict hold it briefly and never
	// across a descriptor-lock call. scanMu serializes the bottom-to-top
	// scan in AcquireFrame (mirrors the original's lru_lock) so the walk
	// always takes the descriptor lock before listMu, the same order the
	// ring and free-list paths use — see AcquireFrame's step 5 comment.
	listMu   sync.Mutex
	elruList *list
	scanMu   sync.Mutex

	freeMu sync.Mutex
	free   *freeList

	// completePasses is protected by freeMu; nextVictim is atomic and only
	// reconciled against completePasses (under freeMu) on wraparound, per
	// spec §4.7.
	completePasses uint32
	nextVictim     atomic.Uint32

	allocCount atomic.Uint32
	bgwriterID atomic.Int64

	onWake atomic.Value // func(bgwriterID int); may be unset
}

// NewEngine constructs an Engine over n frame ids [0, n). clock defaults to
// a fresh *Clock when nil.
func NewEngine(n int, clock *Clock) *Engine {
	if n <= 0 {
		n = 1
	}
	if clock == nil {
		clock = NewClock()
	}
	e := &Engine{
		n:        n,
		clock:    clock,
		elruList: newList(n),
		free:     newFreeList(n),
	}
	e.bgwriterID.Store(-1)
	return e
}

// Capacity returns N, the number of frame ids the engine manages.
func (e *Engine) Capacity() int {
	return e.n
}

func (e *Engine) validID(id int) bool {
	return id >= 0 && id < e.n
}

// Touch records an access to frame id, called on every page hit and on
// fresh allocation (spec component C3, operation touch).
func (e *Engine) Touch(id int) error {
	if !e.validID(id) {
		return ErrInvalidFrameID
	}
	e.listMu.Lock()
	e.elruList.touch(id, e.clock.Now())
	e.listMu.Unlock()
	return nil
}

// ReleaseFrame pushes id onto the free list and removes it from the ELRU
// list (spec: "Returning a frame to the pool"). Idempotent: releasing an
// already-released frame is a no-op.
func (e *Engine) ReleaseFrame(id int) error {
	if !e.validID(id) {
		return ErrInvalidFrameID
	}

	e.freeMu.Lock()
	e.free.push(id)
	e.freeMu.Unlock()

	e.listMu.Lock()
	e.elruList.evict(id)
	e.listMu.Unlock()
	return nil
}

// HaveFreeFrame is the lock-free advisory check from spec §6: the result
// may be stale by the time the caller acts on it.
func (e *Engine) HaveFreeFrame() bool {
	return e.free.haveFree()
}

// SetWakeFunc registers the callback AcquireFrame invokes (at most once per
// call, and only when a pending notification exists) to wake a background
// writer. Pass nil to clear it.
func (e *Engine) SetWakeFunc(fn func(bgwriterID int)) {
	if fn == nil {
		e.onWake.Store((func(int))(nil))
		return
	}
	e.onWake.Store(fn)
}

// NotifyBgWriter arms (or, with id == -1, cancels) a pending wakeup that the
// next AcquireFrame call will deliver exactly once.
func (e *Engine) NotifyBgWriter(id int) {
	e.freeMu.Lock()
	e.bgwriterID.Store(int64(id))
	e.freeMu.Unlock()
}

// clockSweepTick advances the legacy clock-sweep hand by one and
// reconciles completePasses on wraparound. The returned value is retained
// only for SyncStart's statistics; it never influences victim selection.
func (e *Engine) clockSweepTick() uint32 {
	victim := e.nextVictim.Add(1) - 1
	if victim < uint32(e.n) {
		return victim
	}

	originalVictim := victim
	victim %= uint32(e.n)
	if victim == 0 {
		expected := originalVictim + 1
		for {
			e.freeMu.Lock()
			wrapped := expected % uint32(e.n)
			if e.nextVictim.CompareAndSwap(expected, wrapped) {
				e.completePasses++
				e.freeMu.Unlock()
				break
			}
			e.freeMu.Unlock()
			expected = e.nextVictim.Load()
		}
	}
	return victim
}

// SyncStart reports where a background sync sweep should begin, the number
// of completed clock-sweep passes, and the number of AcquireFrame calls
// since the previous SyncStart (spec component C7).
func (e *Engine) SyncStart() (startIndex, completePasses, allocDelta int) {
	e.freeMu.Lock()
	defer e.freeMu.Unlock()

	nv := e.nextVictim.Load()
	startIndex = int(nv % uint32(e.n))
	completePasses = int(e.completePasses) + int(nv/uint32(e.n))
	allocDelta = int(e.allocCount.Swap(0))
	return startIndex, completePasses, allocDelta
}

// AcquireFrame returns a frame to hand out: first consulting ring (if
// non-nil), then the free list, then the ELRU list's bottom-to-top walk.
// On success the returned frame's descriptor header lock is held; the
// caller must eventually call dt.UnlockHeader for it. Returns
// ErrNoUnpinnedBuffer if every resident frame is pinned, the free list is
// empty, and the ring offered nothing usable.
func (e *Engine) AcquireFrame(ring *Ring, dt DescriptorTable) (id int, fromRing bool, err error) {
	// 1. Ring path.
	if ring != nil {
		if candidate, ok := ring.AdvanceAndPeek(); ok {
			st := dt.LockHeader(candidate)
			if st.Refcount == 0 && st.UsageCount <= 1 {
				if err := e.Touch(candidate); err != nil {
					dt.UnlockHeader(candidate, st)
					return -1, false, err
				}
				return candidate, true, nil
			}
			dt.UnlockHeader(candidate, st)
			// Fall through; ring stays armed for a later Record call.
		}
	}

	// 2. Bgwriter wake: read-and-clear exactly once.
	if bgw := e.bgwriterID.Swap(-1); bgw != -1 {
		if fn, _ := e.onWake.Load().(func(int)); fn != nil {
			fn(int(bgw))
		}
	}

	// 3. Stats.
	e.allocCount.Add(1)
	e.clockSweepTick()

	// 4. Free list path.
	for {
		e.freeMu.Lock()
		candidate, ok := e.free.tryPop()
		e.freeMu.Unlock()
		if !ok {
			break
		}

		st := dt.LockHeader(candidate)
		if st.Refcount == 0 && st.UsageCount == 0 {
			if err := e.Touch(candidate); err != nil {
				dt.UnlockHeader(candidate, st)
				return -1, false, err
			}
			return candidate, false, nil
		}
		dt.UnlockHeader(candidate, st)
	}

	// 5. ELRU path. scanMu makes this one scan at a time; within it, every
	// step takes the descriptor lock before listMu (the same order as the
	// ring and free-list paths above), never the reverse — holding listMu
	// across a dt.LockHeader call would let a concurrent ring/free-list
	// acquisition (descriptor then listMu, via Touch) deadlock against this
	// walk (listMu then descriptor) in opposite order.
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	e.listMu.Lock()
	cur := e.elruList.bottom
	e.listMu.Unlock()

	for cur != sentinelIdx {
		st := dt.LockHeader(cur)
		if st.Refcount == 0 {
			e.listMu.Lock()
			e.elruList.evict(cur)
			e.elruList.touch(cur, e.clock.Now())
			e.listMu.Unlock()
			return cur, false, nil
		}
		dt.UnlockHeader(cur, st)

		e.listMu.Lock()
		atTop := cur == e.elruList.top
		next := e.elruList.nodes[cur].nextIdx
		e.listMu.Unlock()
		if atTop {
			break
		}
		cur = next
	}
	return -1, false, ErrNoUnpinnedBuffer
}
