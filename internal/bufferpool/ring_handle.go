package bufferpool

import (
	"sync"

	"github.com/tuannm99/novasql/pkg/elrux"
)

// RingKind re-exports elrux.RingKind so callers never import pkg/elrux
// directly just to request a strategy.
type RingKind = elrux.RingKind

const (
	RingNormal    = elrux.RingNormal
	RingBulkRead  = elrux.RingBulkRead
	RingBulkWrite = elrux.RingBulkWrite
	RingVacuum    = elrux.RingVacuum
)

// RingHandle is a caller-owned bulk-access strategy, the Go analogue of
// Postgres's BufferAccessStrategy. A sequential scan, COPY command, or
// VACUUM obtains one from GlobalPool.NewRing and passes it into every
// GetPage call for the duration of the scan; it is not safe for concurrent
// use by more than one goroutine.
type RingHandle struct {
	kind RingKind
	ring *elrux.Ring // nil for RingNormal

	mu       sync.Mutex
	servedBy map[int]bool // frame id -> true while it is currently checked out via this ring
}

// NewRing allocates a ring strategy sized for capacity frames of pageSize
// bytes (spec.md §3's kilobyte-budget-per-kind, divided by page size).
// RingNormal yields a handle whose GetPage calls fall straight through to
// normal free-list/ELRU allocation. Budgets come from g's ElruConfig if one
// was supplied to NewGlobalPoolWithConfig, otherwise from pkg/elrux's
// spec-mandated defaults.
func (g *GlobalPool) NewRing(kind RingKind, pageSize int) (*RingHandle, error) {
	budgetKB := 0
	switch kind {
	case RingBulkRead:
		budgetKB = g.ringBudgetKB.bulkRead
	case RingBulkWrite:
		budgetKB = g.ringBudgetKB.bulkWrite
	case RingVacuum:
		budgetKB = g.ringBudgetKB.vacuum
	}

	r, err := elrux.NewRingWithBudget(kind, pageSize, len(g.frames), budgetKB)
	if err != nil {
		return nil, err
	}
	return &RingHandle{kind: kind, ring: r, servedBy: make(map[int]bool)}, nil
}

// FreeRing releases a ring strategy. It performs no cleanup beyond letting
// the handle be garbage collected; kept as a named operation to match
// spec.md §6's "Exposed to the buffer manager" pairing of allocate/free.
func (g *GlobalPool) FreeRing(h *RingHandle) {}

// RingBufferCount reports the number of slots the ring manages, 0 for a nil
// handle or RingNormal.
func (h *RingHandle) RingBufferCount() int {
	if h == nil || h.ring == nil {
		return 0
	}
	return h.ring.Len()
}

// RingIOContext reports the ring kind a handle was created for, so a caller
// threading a *RingHandle through several layers can log or branch on it
// without reaching into pkg/elrux.
func (h *RingHandle) RingIOContext() RingKind {
	if h == nil {
		return RingNormal
	}
	return h.kind
}

func (h *RingHandle) elruRing() *elrux.Ring {
	if h == nil {
		return nil
	}
	return h.ring
}

// noteAcquired records whether frame id was just handed out from this
// ring's rotation, and records id into the ring's current slot either way
// (on a ring hit that slot already holds id).
func (h *RingHandle) noteAcquired(id int, fromRing bool) {
	if h == nil || h.ring == nil {
		return
	}
	h.mu.Lock()
	h.servedBy[id] = fromRing
	h.mu.Unlock()
	h.ring.Record(id)
}

// noteReleased is called when a frame checked out through this ring is
// unpinned. A frame that came back dirty and was served from a BULKREAD
// ring is rejected from reuse (spec.md scenario 6): if it still occupies the
// ring's current slot, that slot is invalidated, so the acquisition that
// next reaches the slot falls back to normal allocation instead of
// recycling a dirty buffer.
func (h *RingHandle) noteReleased(id int, dirty bool) {
	if h == nil || h.ring == nil {
		return
	}
	h.mu.Lock()
	fromRing := h.servedBy[id]
	delete(h.servedBy, id)
	h.mu.Unlock()
	if fromRing && dirty {
		h.ring.Reject(id, true)
	}
}
