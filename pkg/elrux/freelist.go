package elrux

import "go.uber.org/atomic"

// notInList is the free_next sentinel: a frame not currently chained onto
// the free list. It differs from -1, which ends the chain.
const notInList = -2

// freeList is the singly linked stack of frames known to be uncommitted to
// any page (spec component C4). Like list, it holds no lock of its own for
// push/tryPop/remove; the owning Engine serializes those under
// its freeMu. firstFree is additionally kept as an atomic so
// HaveFreeFrame can offer the spec's unlocked advisory check without a
// data race.
type freeList struct {
	freeNext  []int32
	firstFree atomic.Int32
	lastFree  int32
}

func newFreeList(n int) *freeList {
	fn := make([]int32, n)
	for i := range fn {
		fn[i] = notInList
	}
	f := &freeList{
		freeNext: fn,
		lastFree: -1,
	}
	f.firstFree.Store(-1)
	return f
}

// tryPop detaches the head of the chain, if any. Caller must hold
// Engine.freeMu.
func (f *freeList) tryPop() (int, bool) {
	first := f.firstFree.Load()
	if first < 0 {
		return -1, false
	}
	id := first
	f.firstFree.Store(f.freeNext[id])
	f.freeNext[id] = notInList
	return int(id), true
}

// push chains id onto the free list, unless it is already chained. Caller
// must hold Engine.freeMu.
func (f *freeList) push(id int) {
	if f.freeNext[id] != notInList {
		return
	}
	first := f.firstFree.Load()
	f.freeNext[id] = first
	if first < 0 {
		f.lastFree = int32(id)
	}
	f.firstFree.Store(int32(id))
}

// haveFree is the spec's unlocked, advisory "first_free >= 0" check. The
// result may be stale by the time the caller acts on it.
func (f *freeList) haveFree() bool {
	return f.firstFree.Load() >= 0
}

// remove detaches id from wherever it sits in the chain, used when a frame
// is permanently withdrawn from circulation (e.g. its relation was
// dropped) rather than handed out via tryPop. Caller must hold
// Engine.freeMu.
func (f *freeList) remove(id int) {
	first := f.firstFree.Load()
	if f.freeNext[id] == notInList && first != int32(id) {
		return
	}
	if first == int32(id) {
		next := f.freeNext[id]
		f.firstFree.Store(next)
		f.freeNext[id] = notInList
		if next < 0 {
			f.lastFree = -1
		}
		return
	}
	prev := first
	for prev >= 0 {
		next := f.freeNext[prev]
		if next == int32(id) {
			f.freeNext[prev] = f.freeNext[id]
			f.freeNext[id] = notInList
			if f.lastFree == int32(id) {
				f.lastFree = prev
			}
			return
		}
		prev = next
	}
}
