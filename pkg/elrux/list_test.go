package elrux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// bottomToTop drains the list's ids from bottom to top without mutating it.
func bottomToTop(l *list) []int {
	var ids []int
	l.walk(func(id int) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func TestList_TouchInsertsInRank(t *testing.T) {
	l := newList(4)

	l.touch(0, 10)
	l.touch(1, 20)
	l.touch(2, 30)
	l.touch(3, 40)

	require.Equal(t, []int{0, 1, 2, 3}, bottomToTop(l))
	require.Equal(t, 0, l.bottom)
	require.Equal(t, 3, l.top)
}

// TestList_SecondTouchProtection mirrors spec scenario 2: a twice-touched
// frame moves to tier 1 and sorts above every tier-0 frame regardless of
// its (now-older) prevAccessed rank.
func TestList_SecondTouchProtection(t *testing.T) {
	l := newList(4)
	l.touch(0, 1)
	l.touch(1, 2)
	l.touch(2, 3)
	l.touch(3, 4)

	l.touch(0, 5) // second touch: f0 now tier 1 (prev=1, last=5)

	require.Equal(t, []int{1, 2, 3, 0}, bottomToTop(l))
	require.Equal(t, 1, l.nodes[0].tier())
	require.Equal(t, int64(1), l.nodes[0].prevAccessed)
	require.Equal(t, int64(5), l.nodes[0].lastAccessed)
}

func TestList_TieBreak_NewerSortsAbove(t *testing.T) {
	l := newList(3)
	l.touch(0, 100)
	l.touch(1, 100) // equal key: must sort above 0
	require.Equal(t, []int{0, 1}, bottomToTop(l))
}

func TestList_Evict_RemovesAndClearsTimestamps(t *testing.T) {
	l := newList(3)
	l.touch(0, 1)
	l.touch(1, 2)

	l.evict(0)

	require.Equal(t, []int{1}, bottomToTop(l))
	require.Equal(t, timestampNil, l.nodes[0].lastAccessed)
	require.Equal(t, timestampNil, l.nodes[0].prevAccessed)
	require.False(t, l.nodes[0].resident())
}

func TestList_Evict_NonResident_NoOp(t *testing.T) {
	l := newList(2)
	l.touch(0, 1)
	l.evict(1) // never touched
	require.Equal(t, []int{0}, bottomToTop(l))
}

func TestList_EndpointConsistency_EmptyList(t *testing.T) {
	l := newList(2)
	require.Equal(t, sentinelIdx, l.top)
	require.Equal(t, sentinelIdx, l.bottom)
	require.True(t, l.empty())
}

func TestList_EndpointConsistency_AfterDrain(t *testing.T) {
	l := newList(2)
	l.touch(0, 1)
	l.touch(1, 2)
	l.evict(0)
	l.evict(1)
	require.True(t, l.empty())
	require.Equal(t, sentinelIdx, l.nodes[0].prevIdx)
	require.Equal(t, sentinelIdx, l.nodes[1].nextIdx)
}

func TestList_ReTouchMovesToTop(t *testing.T) {
	l := newList(3)
	l.touch(0, 1)
	l.touch(1, 2)
	l.touch(2, 3)

	l.touch(0, 4) // re-touch bottom -> becomes tier 1 (prev=1, last=4)

	require.Equal(t, []int{1, 2, 0}, bottomToTop(l))
}

// TestList_WalkStopsEarly exercises the bottom_iter contract: yielded
// nodes stay resident until the caller removes them, and returning false
// stops the walk.
func TestList_WalkStopsEarly(t *testing.T) {
	l := newList(3)
	l.touch(0, 1)
	l.touch(1, 2)
	l.touch(2, 3)

	var visited []int
	l.walk(func(id int) bool {
		visited = append(visited, id)
		return id != 1
	})
	require.Equal(t, []int{0, 1}, visited)
	require.Equal(t, []int{0, 1, 2}, bottomToTop(l)) // nothing removed
}
