package rangeset

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fromStates builds a set from per-index states: 0 absent, 1 exact, 2 lossy.
func fromStates(states []int) RangeSet {
	var s RangeSet
	for i, st := range states {
		if st == 0 {
			continue
		}
		s = appendRange(s, IndexRange{Lower: i, Upper: i, Lossy: st == 2})
	}
	return s
}

// toStates expands a set over universe n back into per-index states.
func toStates(s RangeSet, n int) []int {
	out := make([]int, n)
	for _, r := range s {
		for i := r.Lower; i <= r.Upper && i < n; i++ {
			if r.Lossy {
				out[i] = 2
			} else {
				out[i] = 1
			}
		}
	}
	return out
}

func pad(xs []int, n int) []int {
	out := make([]int, n)
	copy(out, xs)
	return out
}

func normalized(s RangeSet) bool {
	for i, r := range s {
		if r.Lower > r.Upper {
			return false
		}
		if i > 0 {
			prev := s[i-1]
			if r.Lower <= prev.Upper {
				return false
			}
			if r.Lower == prev.Upper+1 && r.Lossy == prev.Lossy {
				return false
			}
		}
	}
	return true
}

func statesGen() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 2))
}

// TestProperty_SetAlgebra checks union, intersection and complement against a
// per-index evaluation of the three-state semantics.
func TestProperty_SetAlgebra(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("union matches per-index evaluation", prop.ForAll(
		func(xs, ys []int) bool {
			n := max(len(xs), len(ys))
			xs, ys = pad(xs, n), pad(ys, n)
			got := Union(fromStates(xs), fromStates(ys))
			if !normalized(got) {
				return false
			}
			states := toStates(got, n)
			for i := 0; i < n; i++ {
				want := 0
				switch {
				case xs[i] == 1 || ys[i] == 1:
					want = 1
				case xs[i] == 2 || ys[i] == 2:
					want = 2
				}
				if states[i] != want {
					return false
				}
			}
			return got.Count() <= n
		},
		statesGen(), statesGen(),
	))

	properties.Property("intersection matches per-index evaluation", prop.ForAll(
		func(xs, ys []int) bool {
			n := max(len(xs), len(ys))
			xs, ys = pad(xs, n), pad(ys, n)
			got := Intersect(fromStates(xs), fromStates(ys))
			if !normalized(got) {
				return false
			}
			states := toStates(got, n)
			for i := 0; i < n; i++ {
				want := 0
				if xs[i] != 0 && ys[i] != 0 {
					want = 1
					if xs[i] == 2 || ys[i] == 2 {
						want = 2
					}
				}
				if states[i] != want {
					return false
				}
			}
			return true
		},
		statesGen(), statesGen(),
	))

	properties.Property("complement matches per-index evaluation", prop.ForAll(
		func(xs []int) bool {
			n := len(xs)
			got := Complement(fromStates(xs), n)
			if !normalized(got) {
				return false
			}
			states := toStates(got, n)
			for i := 0; i < n; i++ {
				want := map[int]int{0: 1, 1: 0, 2: 2}[xs[i]]
				if states[i] != want {
					return false
				}
			}
			return true
		},
		statesGen(),
	))

	properties.TestingRun(t)
}

// TestProperty_Idempotence checks A|A == A, A&A == A and ~~A == A.
func TestProperty_Idempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("union and intersection are idempotent", prop.ForAll(
		func(xs []int) bool {
			a := fromStates(xs)
			return Union(a, a).Equal(a) && Intersect(a, a).Equal(a)
		},
		statesGen(),
	))

	properties.Property("double complement is the identity", prop.ForAll(
		func(xs []int) bool {
			a := fromStates(xs)
			return Complement(Complement(a, len(xs)), len(xs)).Equal(a)
		},
		statesGen(),
	))

	properties.Property("union and intersection commute", prop.ForAll(
		func(xs, ys []int) bool {
			a, b := fromStates(xs), fromStates(ys)
			return Union(a, b).Equal(Union(b, a)) && Intersect(a, b).Equal(Intersect(b, a))
		},
		statesGen(), statesGen(),
	))

	properties.TestingRun(t)
}
