package elrux

// RingKind selects a per-requester ring strategy (spec component C5). It
// bounds the amount of buffer-pool cache a bulk scan or vacuum can pollute
// by reusing a small fixed set of frames instead of touching the full ELRU
// list.
type RingKind int

const (
	// RingNormal requests no ring at all; NewRing returns (nil, nil) for it.
	RingNormal RingKind = iota
	RingBulkRead
	RingBulkWrite
	RingVacuum
)

// Kilobyte budget per kind, per spec §3.
const (
	bulkReadKB  = 256
	bulkWriteKB = 16 * 1024
	vacuumKB    = 256
)

const invalidSlot = -1

// Ring is a per-requester, single-threaded circular buffer of frame ids
// reused across a bulk scan or vacuum pass.
type Ring struct {
	kind   RingKind
	slots  []int
	cursor int
}

// ringSlotCount returns the slot count for kind given a page size (bytes)
// and the total frame count n, capped at n/8. Returns 0 for RingNormal.
// budgetOverrideKB, if > 0, replaces the spec-mandated default kilobyte
// budget for kind (operator tuning; see NewRingWithBudget).
func ringSlotCount(kind RingKind, pageSize, n, budgetOverrideKB int) (int, error) {
	var kb int
	switch kind {
	case RingNormal:
		return 0, nil
	case RingBulkRead:
		kb = bulkReadKB
	case RingBulkWrite:
		kb = bulkWriteKB
	case RingVacuum:
		kb = vacuumKB
	default:
		return 0, ErrUnrecognizedRingKind
	}
	if budgetOverrideKB > 0 {
		kb = budgetOverrideKB
	}

	if pageSize <= 0 {
		pageSize = 1
	}
	slots := (kb * 1024) / pageSize
	if slots <= 0 {
		slots = 1
	}
	if cap := n / 8; cap > 0 && slots > cap {
		slots = cap
	}
	return slots, nil
}

// NewRing returns a Ring sized for kind, or (nil, nil) for RingNormal.
func NewRing(kind RingKind, pageSize, n int) (*Ring, error) {
	return newRing(kind, pageSize, n, 0)
}

// NewRingWithBudget is NewRing with the spec-mandated kilobyte budget for
// kind replaced by budgetKB (operator tuning via internal.ElruConfig).
// budgetKB <= 0 falls back to the default, same as NewRing.
func NewRingWithBudget(kind RingKind, pageSize, n, budgetKB int) (*Ring, error) {
	return newRing(kind, pageSize, n, budgetKB)
}

func newRing(kind RingKind, pageSize, n, budgetOverrideKB int) (*Ring, error) {
	k, err := ringSlotCount(kind, pageSize, n, budgetOverrideKB)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return nil, nil
	}

	slots := make([]int, k)
	for i := range slots {
		slots[i] = invalidSlot
	}
	return &Ring{
		kind:   kind,
		slots:  slots,
		cursor: k - 1, // first advance lands on slot 0
	}, nil
}

// Kind reports the ring's strategy kind.
func (r *Ring) Kind() RingKind {
	if r == nil {
		return RingNormal
	}
	return r.kind
}

// Len reports the ring's slot count (0 for a nil ring).
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.slots)
}

// AdvanceAndPeek moves the cursor one slot ahead and returns the frame id
// occupying it, or (-1, false) if that slot is empty (never filled, or
// cleared by Reject).
func (r *Ring) AdvanceAndPeek() (int, bool) {
	r.cursor = (r.cursor + 1) % len(r.slots)
	id := r.slots[r.cursor]
	if id == invalidSlot {
		return -1, false
	}
	return id, true
}

// Record fills the current slot with id.
func (r *Ring) Record(id int) {
	r.slots[r.cursor] = id
}

// Reject clears the current slot if it is RingBulkRead, the frame was
// served from this ring, and it still occupies the current slot. Returns
// true when the caller should pick a different victim.
func (r *Ring) Reject(id int, servedFromRing bool) bool {
	if r == nil || r.kind != RingBulkRead || !servedFromRing {
		return false
	}
	if r.slots[r.cursor] != id {
		return false
	}
	r.slots[r.cursor] = invalidSlot
	return true
}
