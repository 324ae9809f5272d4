// Package rangeset provides an ordered set of int64 values stored as
// half-open ranges. It backs dirty-row tracking in the screen model and the
// dirty_lines field of the sync protocol.
package rangeset

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a half-open interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Contains returns true if v falls inside the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Start && v < r.End
}

// IsEmpty returns true if the range covers no values.
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

// Len returns the number of values covered by the range.
func (r Range) Len() int64 {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start
}

// Intersection returns the overlap of two ranges (possibly empty).
func (r Range) Intersection(other Range) Range {
	start := r.Start
	if other.Start > start {
		start = other.Start
	}
	end := r.End
	if other.End < end {
		end = other.End
	}
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// RangeSet is a sorted, coalesced collection of non-overlapping ranges.
// The zero value is an empty set ready for use.
type RangeSet struct {
	ranges []Range
}

// New returns an empty RangeSet.
func New() *RangeSet {
	return &RangeSet{}
}

// Add inserts a single value.
func (rs *RangeSet) Add(v int64) {
	rs.AddRange(Range{Start: v, End: v + 1})
}

// AddRange inserts a range, merging with any adjacent or overlapping ranges.
func (rs *RangeSet) AddRange(r Range) {
	if r.IsEmpty() {
		return
	}

	// Find insertion point by start
	idx := sort.Search(len(rs.ranges), func(i int) bool {
		return rs.ranges[i].Start > r.Start
	})

	rs.ranges = append(rs.ranges, Range{})
	copy(rs.ranges[idx+1:], rs.ranges[idx:])
	rs.ranges[idx] = r

	rs.coalesce()
}

// coalesce merges overlapping or touching neighbors. Ranges are kept sorted.
func (rs *RangeSet) coalesce() {
	if len(rs.ranges) < 2 {
		return
	}
	out := rs.ranges[:1]
	for _, r := range rs.ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
		} else {
			out = append(out, r)
		}
	}
	rs.ranges = out
}

// Remove deletes a single value, splitting a range if needed.
func (rs *RangeSet) Remove(v int64) {
	for i, r := range rs.ranges {
		if !r.Contains(v) {
			continue
		}
		switch {
		case r.Start == v && r.End == v+1:
			rs.ranges = append(rs.ranges[:i], rs.ranges[i+1:]...)
		case r.Start == v:
			rs.ranges[i].Start = v + 1
		case r.End == v+1:
			rs.ranges[i].End = v
		default:
			// Split into two
			tail := Range{Start: v + 1, End: r.End}
			rs.ranges[i].End = v
			rs.ranges = append(rs.ranges, Range{})
			copy(rs.ranges[i+2:], rs.ranges[i+1:])
			rs.ranges[i+1] = tail
		}
		return
	}
}

// Contains returns true if v is in the set.
func (rs *RangeSet) Contains(v int64) bool {
	idx := sort.Search(len(rs.ranges), func(i int) bool {
		return rs.ranges[i].End > v
	})
	return idx < len(rs.ranges) && rs.ranges[idx].Contains(v)
}

// IsEmpty returns true if the set holds no values.
func (rs *RangeSet) IsEmpty() bool {
	return len(rs.ranges) == 0
}

// Len returns the total number of values in the set.
func (rs *RangeSet) Len() int64 {
	var n int64
	for _, r := range rs.ranges {
		n += r.Len()
	}
	return n
}

// Ranges returns a copy of the underlying ranges in ascending order.
func (rs *RangeSet) Ranges() []Range {
	out := make([]Range, len(rs.ranges))
	copy(out, rs.ranges)
	return out
}

// Values returns every value in ascending order. Intended for small sets.
func (rs *RangeSet) Values() []int64 {
	var out []int64
	for _, r := range rs.ranges {
		for v := r.Start; v < r.End; v++ {
			out = append(out, v)
		}
	}
	return out
}

// Intersection returns a new set restricted to the supplied range.
func (rs *RangeSet) Intersection(bound Range) *RangeSet {
	out := New()
	for _, r := range rs.ranges {
		sect := r.Intersection(bound)
		if !sect.IsEmpty() {
			out.AddRange(sect)
		}
	}
	return out
}

// Union merges another set into a new set, leaving both inputs unchanged.
func (rs *RangeSet) Union(other *RangeSet) *RangeSet {
	out := New()
	for _, r := range rs.ranges {
		out.AddRange(r)
	}
	for _, r := range other.ranges {
		out.AddRange(r)
	}
	return out
}

// Clone returns a deep copy of the set.
func (rs *RangeSet) Clone() *RangeSet {
	out := New()
	out.ranges = make([]Range, len(rs.ranges))
	copy(out.ranges, rs.ranges)
	return out
}

// String renders the set as "[0-4, 7, 9-12]" for logs and test failures.
func (rs *RangeSet) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, r := range rs.ranges {
		if i > 0 {
			sb.WriteString(", ")
		}
		if r.Len() == 1 {
			fmt.Fprintf(&sb, "%d", r.Start)
		} else {
			fmt.Fprintf(&sb, "%d-%d", r.Start, r.End-1)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
