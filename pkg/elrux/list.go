package elrux

// list is the ELRU ordered list (spec component C3): a doubly linked
// ordering of resident frames by ELRU key. It holds no lock of its own —
// the owning Engine serializes mutations under its listMu, held only
// briefly around each touch/evict/insert/unlink rather than across an
// entire scan, so a descriptor lock taken mid-scan (acquire_frame's
// bottom-to-top walk) is never nested inside it.
//
// Invariant L1: for adjacent pair (a, b), a closer to bottom, key(a) <=
// key(b).
// Invariant L2: a node appears at most once.
// Invariant L3: top == sentinelIdx iff bottom == sentinelIdx iff empty.
type list struct {
	nodes  []frameNode
	top    int
	bottom int
}

func newList(n int) *list {
	nodes := make([]frameNode, n)
	for i := range nodes {
		nodes[i] = newFrameNode()
	}
	return &list{
		nodes:  nodes,
		top:    sentinelIdx,
		bottom: sentinelIdx,
	}
}

// touch records an access at timestamp now, re-inserting the node at the
// position its new key demands.
func (l *list) touch(id int, now int64) {
	n := &l.nodes[id]
	wasResident := n.resident()
	if wasResident {
		l.unlink(id)
	}

	prev := n.lastAccessed
	n.lastAccessed = now
	n.prevAccessed = prev

	l.insert(id)
}

// evict removes id from the list if resident; no-op otherwise.
func (l *list) evict(id int) {
	n := &l.nodes[id]
	if !n.resident() {
		return
	}
	l.unlink(id)
	n.lastAccessed = timestampNil
	n.prevAccessed = timestampNil
}

// walk iterates ids from bottom toward top, calling fn for each. Yielded
// nodes remain present; fn returning false stops the walk early. Iteration
// captures the next pointer before calling fn so fn may mutate the node at
// the current id (e.g. evict it) without corrupting the walk.
func (l *list) walk(fn func(id int) bool) {
	cur := l.bottom
	for cur != sentinelIdx {
		next := l.nodes[cur].nextIdx
		if !fn(cur) {
			return
		}
		cur = next
	}
}

// insert places id (already carrying its new key in l.nodes[id]) at the
// position dictated by that key, scanning from bottom upward. Equal keys:
// the newly inserted node sorts above existing equals.
func (l *list) insert(id int) {
	n := &l.nodes[id]

	cur := l.bottom
	below := sentinelIdx
	for cur != sentinelIdx && l.nodes[cur].lessEq(*n) {
		below = cur
		cur = l.nodes[cur].nextIdx
	}

	n.prevIdx = below
	n.nextIdx = cur

	if below != sentinelIdx {
		l.nodes[below].nextIdx = id
	} else {
		l.bottom = id
	}

	if cur != sentinelIdx {
		l.nodes[cur].prevIdx = id
	} else {
		l.top = id
	}
}

// unlink detaches id from its current position, fixing endpoints and
// neighbors. It does not touch timestamps.
func (l *list) unlink(id int) {
	n := &l.nodes[id]

	if n.prevIdx != sentinelIdx {
		l.nodes[n.prevIdx].nextIdx = n.nextIdx
	} else {
		l.bottom = n.nextIdx
	}

	if n.nextIdx != sentinelIdx {
		l.nodes[n.nextIdx].prevIdx = n.prevIdx
	} else {
		l.top = n.prevIdx
	}

	n.prevIdx = sentinelIdx
	n.nextIdx = sentinelIdx
}

func (l *list) empty() bool {
	return l.top == sentinelIdx
}
