package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocate_withinSegment(t *testing.T) {
	a := New()
	b1 := a.Allocate(10)
	b2 := a.Allocate(20)
	require.Equal(t, 10, b1.Len())
	require.Equal(t, 20, b2.Len())
	require.Len(t, a.segments, 1)
}

func TestAllocate_growsSegment(t *testing.T) {
	a := New()
	a.Allocate(firstSegmentSize)
	// Second allocation can't fit in what remains of the first segment.
	a.Allocate(1)
	require.Len(t, a.segments, 2)
}

func TestReallocate_inPlaceGrow(t *testing.T) {
	a := New()
	b := a.Allocate(4)
	copy(b.Slice(), []byte{1, 2, 3, 4})
	grown := a.Reallocate(b, 8)
	require.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, grown.Slice())
	// Still a single segment: the grow happened in place.
	require.Len(t, a.segments, 1)
}

func TestReallocate_copiesWhenNotTop(t *testing.T) {
	a := New()
	first := a.Allocate(4)
	copy(first.Slice(), []byte{9, 9, 9, 9})
	_ = a.Allocate(4) // pushes first out from under the frontier.
	grown := a.Reallocate(first, 8)
	require.Equal(t, []byte{9, 9, 9, 9, 0, 0, 0, 0}, grown.Slice())
}

func TestMarkRevert(t *testing.T) {
	a := New()
	a.Allocate(16)
	m := a.Mark()
	a.Allocate(firstSegmentSize) // forces a new segment.
	a.Allocate(8)
	require.True(t, len(a.segments) > 1)

	a.Revert(m)
	require.Len(t, a.segments, 1)
	require.Equal(t, 16, a.segments[0].off)

	// Allocating after revert reuses the rolled-back space.
	b := a.Allocate(4)
	require.Equal(t, 16, b.off)
}

func TestMarkRevert_emptyArena(t *testing.T) {
	a := New()
	m := a.Mark()
	a.Allocate(32)
	a.Revert(m)
	require.Len(t, a.segments, 0)
}
