// Package eventrange divides the events of a dataset's files into
// half-open ranges that can be handed out to workers, accounted for, and
// re-queued on failure.
package eventrange

import "fmt"

// Interval is a half-open range [Low, High) of event indices.
type Interval struct {
	Low, High uint64
}

func (iv Interval) size() uint64 {
	return iv.High - iv.Low
}

// IndexRanges is an ordered set of disjoint, non-empty half-open integer
// intervals. The zero value is an empty set ready to use.
type IndexRanges struct {
	intervals []Interval
}

// NewIndexRanges builds a set containing the single interval [low, high).
// Passing low == high yields an empty set.
func NewIndexRanges(low, high uint64) IndexRanges {
	if high < low {
		panic(fmt.Sprintf("eventrange: invalid interval [%d, %d)", low, high))
	}
	if low == high {
		return IndexRanges{}
	}
	return IndexRanges{intervals: []Interval{{low, high}}}
}

// Empty reports whether the set has no intervals left.
func (r *IndexRanges) Empty() bool {
	return len(r.intervals) == 0
}

// Peek returns the first interval without consuming it. It panics if the
// set is empty.
func (r *IndexRanges) Peek() Interval {
	if r.Empty() {
		panic("eventrange: Peek called on an empty IndexRanges")
	}
	return r.intervals[0]
}

// ConsumeFront removes and returns a prefix of the first interval, at most
// maxSize wide. It panics if the set is empty.
func (r *IndexRanges) ConsumeFront(maxSize uint64) Interval {
	if r.Empty() {
		panic("eventrange: ConsumeFront called on an empty IndexRanges")
	}
	front := r.intervals[0]
	if front.size() <= maxSize {
		r.intervals = r.intervals[1:]
		return front
	}
	result := Interval{front.Low, front.Low + maxSize}
	r.intervals[0].Low += maxSize
	return result
}

// Size returns the sum of the widths of all intervals still in the set.
func (r *IndexRanges) Size() uint64 {
	var total uint64
	for _, iv := range r.intervals {
		total += iv.size()
	}
	return total
}

// DisjointUnion merges other into r. It panics if any interval of other
// overlaps an interval already in r; touching intervals (one's High equals
// the other's Low) are coalesced into a single interval.
func (r *IndexRanges) DisjointUnion(other IndexRanges) {
	for _, iv := range other.intervals {
		r.insertDisjoint(iv)
	}
}

func (r *IndexRanges) insertDisjoint(iv Interval) {
	if iv.Low == iv.High {
		return
	}
	// Find insertion point: first interval whose High is above iv.Low.
	i := 0
	for i < len(r.intervals) && r.intervals[i].High <= iv.Low {
		i++
	}
	if i < len(r.intervals) && r.intervals[i].Low < iv.High {
		panic(fmt.Sprintf("eventrange: disjoint union not disjoint: existing [%d,%d) vs new [%d,%d)",
			r.intervals[i].Low, r.intervals[i].High, iv.Low, iv.High))
	}
	r.intervals = append(r.intervals, Interval{})
	copy(r.intervals[i+1:], r.intervals[i:])
	r.intervals[i] = iv
	r.coalesceFrom(i)
}

// coalesceFrom merges adjacent touching intervals starting at index i
// outward; only neighbours of i can have become touching by a single
// insertion, but we scan defensively in both directions.
func (r *IndexRanges) coalesceFrom(i int) {
	for i > 0 && r.intervals[i-1].High == r.intervals[i].Low {
		r.intervals[i-1].High = r.intervals[i].High
		r.intervals = append(r.intervals[:i], r.intervals[i+1:]...)
		i--
	}
	for i+1 < len(r.intervals) && r.intervals[i].High == r.intervals[i+1].Low {
		r.intervals[i].High = r.intervals[i+1].High
		r.intervals = append(r.intervals[:i+1], r.intervals[i+2:]...)
	}
}

// Intervals returns a copy of the ordered list of intervals, for tests and
// diagnostics.
func (r *IndexRanges) Intervals() []Interval {
	out := make([]Interval, len(r.intervals))
	copy(out, r.intervals)
	return out
}
