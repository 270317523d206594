// Package rangeset implements sets of partition indices as normalized lists of
// closed index intervals, each tagged exact or lossy.
//
// An exact interval means every row stored in those partitions satisfies the
// predicate that produced the set; a lossy interval means the partitions may hold
// rows that do not, so a scan must recheck the predicate. Set operations behave as
// if evaluated per index over the three states absent, exact and lossy, and the
// result is re-collapsed into maximal intervals of equal lossiness.
package rangeset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// IndexRange is the closed interval [Lower, Upper] of partition indices.
type IndexRange struct {
	Lower int  `json:"lower"`
	Upper int  `json:"upper"`
	Lossy bool `json:"lossy"`
}

// Len returns the number of indices in the range.
func (r IndexRange) Len() int {
	return r.Upper - r.Lower + 1
}

// String returns "[l,u]" for exact ranges and "[l,u]~" for lossy ones.
func (r IndexRange) String() string {
	if r.Lossy {
		return fmt.Sprintf("[%d,%d]~", r.Lower, r.Upper)
	}
	return fmt.Sprintf("[%d,%d]", r.Lower, r.Upper)
}

// RangeSet is an ordered list of disjoint index ranges. Adjacent ranges always
// differ in lossiness. The zero value is the empty set.
type RangeSet []IndexRange

// state is the per-index membership used by the set operations.
type state uint8

const (
	absent state = iota
	exact
	lossy
)

func stateOf(r IndexRange) state {
	if r.Lossy {
		return lossy
	}
	return exact
}

// Empty returns the set with no candidate partitions.
func Empty() RangeSet {
	return nil
}

// Full returns [0, n-1], or the empty set when n <= 0.
func Full(n int, isLossy bool) RangeSet {
	if n <= 0 {
		return nil
	}
	return RangeSet{{Lower: 0, Upper: n - 1, Lossy: isLossy}}
}

// Single returns the singleton set {i}.
func Single(i int, isLossy bool) RangeSet {
	return RangeSet{{Lower: i, Upper: i, Lossy: isLossy}}
}

// Make returns the set [lower, upper], or the empty set when lower > upper.
func Make(lower, upper int, isLossy bool) RangeSet {
	if lower > upper {
		return nil
	}
	return RangeSet{{Lower: lower, Upper: upper, Lossy: isLossy}}
}

// Normalize sorts arbitrary (possibly overlapping) ranges and collapses them with
// union semantics. Ranges with Lower > Upper are dropped.
func Normalize(ranges []IndexRange) RangeSet {
	var out RangeSet
	for _, r := range ranges {
		if r.Lower > r.Upper {
			continue
		}
		out = Union(out, RangeSet{r})
	}
	return out
}

// IsEmpty reports whether the set has no indices.
func (s RangeSet) IsEmpty() bool {
	return len(s) == 0
}

// IsFull reports whether the set covers [0, n-1].
func (s RangeSet) IsFull(n int) bool {
	if n <= 0 {
		return false
	}
	if len(s) == 0 || s[0].Lower != 0 || s[len(s)-1].Upper != n-1 {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i].Lower != s[i-1].Upper+1 {
			return false
		}
	}
	return true
}

// Count returns the number of indices in the set.
func (s RangeSet) Count() int {
	n := 0
	for _, r := range s {
		n += r.Len()
	}
	return n
}

// HasLossy reports whether any range is lossy.
func (s RangeSet) HasLossy() bool {
	for _, r := range s {
		if r.Lossy {
			return true
		}
	}
	return false
}

// Contains reports whether i is in the set and whether it is lossy there.
func (s RangeSet) Contains(i int) (found, isLossy bool) {
	k := sort.Search(len(s), func(k int) bool { return s[k].Upper >= i })
	if k < len(s) && s[k].Lower <= i {
		return true, s[k].Lossy
	}
	return false, false
}

// ToList expands the set into individual indices in ascending order.
func (s RangeSet) ToList() []int {
	out := make([]int, 0, s.Count())
	for _, r := range s {
		for i := r.Lower; i <= r.Upper; i++ {
			out = append(out, i)
		}
	}
	return out
}

// Bitmap returns the set as a bitset, plus a second bitset marking lossy indices.
func (s RangeSet) Bitmap() (members, lossyMembers *bitset.BitSet) {
	members = bitset.New(0)
	lossyMembers = bitset.New(0)
	for _, r := range s {
		for i := r.Lower; i <= r.Upper; i++ {
			members.Set(uint(i))
			if r.Lossy {
				lossyMembers.Set(uint(i))
			}
		}
	}
	return members, lossyMembers
}

// SetLossy returns a copy of s with every range marked lossy.
func (s RangeSet) SetLossy() RangeSet {
	if len(s) == 0 {
		return nil
	}
	return Normalize(withLossiness(s, true))
}

func withLossiness(s RangeSet, isLossy bool) []IndexRange {
	out := make([]IndexRange, len(s))
	for i, r := range s {
		r.Lossy = isLossy
		out[i] = r
	}
	return out
}

// Equal reports whether two sets are identical.
func (s RangeSet) Equal(other RangeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the set as "{[0,3], [5,5]~}".
func (s RangeSet) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Union returns the indices in a or b. An index is exact when either operand has
// it exact, lossy when it is lossy in every operand containing it.
func Union(a, b RangeSet) RangeSet {
	return combine(a, b, func(x, y state) state {
		if x == exact || y == exact {
			return exact
		}
		if x == lossy || y == lossy {
			return lossy
		}
		return absent
	})
}

// Intersect returns the indices in both a and b. An index is lossy when either
// operand has it lossy.
func Intersect(a, b RangeSet) RangeSet {
	return combine(a, b, func(x, y state) state {
		if x == absent || y == absent {
			return absent
		}
		if x == lossy || y == lossy {
			return lossy
		}
		return exact
	})
}

// Complement returns the indices of [0, n-1] that are not exactly in s. Exact
// indices drop out, absent indices become exact and lossy indices stay lossy.
func Complement(s RangeSet, n int) RangeSet {
	if n <= 0 {
		return nil
	}
	return combine(s, Full(n, false), func(x, universe state) state {
		if universe == absent {
			return absent
		}
		switch x {
		case absent:
			return exact
		case lossy:
			return lossy
		default:
			return absent
		}
	})
}

// combine sweeps the breakpoints of both sets and applies f to every maximal
// segment on which neither operand changes state.
func combine(a, b RangeSet, f func(x, y state) state) RangeSet {
	points := make([]int, 0, 2*(len(a)+len(b)))
	for _, r := range a {
		points = append(points, r.Lower, r.Upper+1)
	}
	for _, r := range b {
		points = append(points, r.Lower, r.Upper+1)
	}
	if len(points) == 0 {
		return nil
	}
	sort.Ints(points)

	var out RangeSet
	ia, ib := 0, 0
	for k := 0; k+1 < len(points); k++ {
		lo, hi := points[k], points[k+1]-1
		if lo > hi {
			continue
		}
		for ia < len(a) && a[ia].Upper < lo {
			ia++
		}
		for ib < len(b) && b[ib].Upper < lo {
			ib++
		}
		st := f(segmentState(a, ia, lo), segmentState(b, ib, lo))
		if st == absent {
			continue
		}
		out = appendRange(out, IndexRange{Lower: lo, Upper: hi, Lossy: st == lossy})
	}
	return out
}

func segmentState(s RangeSet, i, point int) state {
	if i < len(s) && s[i].Lower <= point && point <= s[i].Upper {
		return stateOf(s[i])
	}
	return absent
}

// appendRange appends r, merging it into the last range when they touch and
// share lossiness.
func appendRange(s RangeSet, r IndexRange) RangeSet {
	if n := len(s); n > 0 {
		last := &s[n-1]
		if last.Upper+1 >= r.Lower && last.Lossy == r.Lossy {
			if r.Upper > last.Upper {
				last.Upper = r.Upper
			}
			return s
		}
	}
	return append(s, r)
}
