package rangeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeSet_AddCoalesces(t *testing.T) {
	rs := New()
	rs.Add(1)
	rs.Add(2)
	rs.Add(3)

	assert.Equal(t, []Range{{Start: 1, End: 4}}, rs.Ranges())
	assert.Equal(t, int64(3), rs.Len())
}

func TestRangeSet_AddRange_MergesOverlap(t *testing.T) {
	rs := New()
	rs.AddRange(Range{Start: 0, End: 5})
	rs.AddRange(Range{Start: 10, End: 15})
	rs.AddRange(Range{Start: 4, End: 11})

	assert.Equal(t, []Range{{Start: 0, End: 15}}, rs.Ranges())
}

func TestRangeSet_DisjointStaySeparate(t *testing.T) {
	rs := New()
	rs.Add(0)
	rs.Add(5)
	rs.Add(7)

	assert.Equal(t, []Range{{0, 1}, {5, 6}, {7, 8}}, rs.Ranges())
	assert.True(t, rs.Contains(5))
	assert.False(t, rs.Contains(6))
}

func TestRangeSet_RemoveSplits(t *testing.T) {
	rs := New()
	rs.AddRange(Range{Start: 0, End: 10})
	rs.Remove(4)

	assert.Equal(t, []Range{{0, 4}, {5, 10}}, rs.Ranges())
	assert.False(t, rs.Contains(4))
	assert.True(t, rs.Contains(5))
}

func TestRangeSet_RemoveEdges(t *testing.T) {
	rs := New()
	rs.AddRange(Range{Start: 3, End: 6})
	rs.Remove(3)
	rs.Remove(5)

	assert.Equal(t, []Range{{4, 5}}, rs.Ranges())

	rs.Remove(4)
	assert.True(t, rs.IsEmpty())
}

func TestRangeSet_Intersection(t *testing.T) {
	rs := New()
	rs.AddRange(Range{Start: 0, End: 10})
	rs.AddRange(Range{Start: 20, End: 30})

	sect := rs.Intersection(Range{Start: 5, End: 25})
	assert.Equal(t, []Range{{5, 10}, {20, 25}}, sect.Ranges())

	// Original unchanged
	assert.Equal(t, int64(20), rs.Len())
}

func TestRangeSet_NegativeValues(t *testing.T) {
	// Stable row indices can be negative once content scrolls off
	rs := New()
	rs.AddRange(Range{Start: -5, End: 2})

	assert.True(t, rs.Contains(-3))
	assert.False(t, rs.Contains(2))
	assert.Equal(t, int64(7), rs.Len())
}

func TestRangeSet_Values(t *testing.T) {
	rs := New()
	rs.Add(2)
	rs.Add(0)
	rs.Add(1)
	rs.Add(9)

	assert.Equal(t, []int64{0, 1, 2, 9}, rs.Values())
}

func TestRangeSet_String(t *testing.T) {
	rs := New()
	rs.AddRange(Range{Start: 0, End: 5})
	rs.Add(7)

	assert.Equal(t, "[0-4, 7]", rs.String())
}
