package partition

import (
	"fmt"
	"hash/fnv"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/spaolacci/murmur3"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/rangeset"
	"github.com/partwise/partwise/pkg/types"
)

// Op is a comparison of the partitioning key against a value: key Op value.
type Op int

const (
	OpLT Op = iota
	OpLE
	OpEQ
	OpGE
	OpGT
)

var opNames = [...]string{"<", "<=", "=", ">=", ">"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp maps a SQL comparison operator to an Op.
func ParseOp(s string) (Op, bool) {
	switch s {
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case "=", "==":
		return OpEQ, true
	case ">=":
		return OpGE, true
	case ">":
		return OpGT, true
	}
	return 0, false
}

// Commute returns the operator for the mirrored comparison (v Op key).
func (o Op) Commute() Op {
	switch o {
	case OpLT:
		return OpGT
	case OpLE:
		return OpGE
	case OpGE:
		return OpLE
	case OpGT:
		return OpLT
	}
	return o
}

// HashCode hashes the canonical encoding of v with fn.
func HashCode(fn types.HashFunc, kt types.KeyType, v interface{}) uint32 {
	b := kt.Encode(v)
	switch fn {
	case types.HashFNV1a:
		h := fnv.New32a()
		h.Write(b)
		return h.Sum32()
	case types.HashFarm:
		return farm.Fingerprint32(b)
	default:
		return murmur3.Sum32(b)
	}
}

// HashToPartIndex maps a hash code to its partition. A directory without
// partitions is INVALID_SPEC.
func HashToPartIndex(code, count uint32) (int, error) {
	if count == 0 {
		return 0, errors.NewInvalidSpec("hash directory has zero partitions")
	}
	return int(code % count), nil
}

// SelectHashCode returns the partition holding keys with the given hash code.
// A hash partition holds many key values, so the result is lossy.
func SelectHashCode(code uint32, dir HashDirectory) (rangeset.RangeSet, error) {
	idx, err := HashToPartIndex(code, dir.Count)
	if err != nil {
		return nil, err
	}
	return rangeset.Single(idx, true), nil
}

// SelectHash returns the partition that owns v in a hash-partitioned table.
func SelectHash(v interface{}, spec *Spec) (rangeset.RangeSet, error) {
	return SelectHashCode(HashCode(spec.Hash.Func, spec.KeyType, v), spec.Hash)
}

// SelectRange returns the partitions that may hold keys satisfying
// "key op v". v must already be coerced to the key type. foundGap is true only
// for equality lookups whose value no partition covers.
func SelectRange(v interface{}, op Op, spec *Spec) (rangeset.RangeSet, bool) {
	kt := spec.KeyType
	entries := spec.Ranges
	n := len(entries)

	// First entry whose Max is above v.
	i := sort.Search(n, func(j int) bool {
		return compareToBound(kt, v, entries[j].Max) < 0
	})
	contains := i < n && compareToBound(kt, v, entries[i].Min) >= 0

	var out rangeset.RangeSet
	switch op {
	case OpEQ:
		if !contains {
			return rangeset.Empty(), true
		}
		return rangeset.Single(i, !holdsOnly(kt, entries[i], v)), false

	case OpLT, OpLE:
		if i > 0 {
			out = rangeset.Make(0, i-1, false)
		}
		if !contains {
			return out, false
		}
		e := entries[i]
		if op == OpLT {
			// Rows in [Min, v) qualify; none do when v is the lower bound.
			if compareToBound(kt, v, e.Min) > 0 {
				out = rangeset.Union(out, rangeset.Single(i, true))
			}
			return out, false
		}
		exact := endsAfter(kt, e, v)
		return rangeset.Union(out, rangeset.Single(i, !exact)), false

	case OpGT, OpGE:
		if !contains {
			if i < n {
				out = rangeset.Make(i, n-1, false)
			}
			return out, false
		}
		if i+1 < n {
			out = rangeset.Make(i+1, n-1, false)
		}
		e := entries[i]
		if op == OpGE {
			exact := e.Min.IsFinite() && kt.Compare(e.Min.Value, v) == 0
			return rangeset.Union(out, rangeset.Single(i, !exact)), false
		}
		// Rows in (v, Max) qualify; none do when v is the last value below Max.
		if !endsAfter(kt, e, v) {
			out = rangeset.Union(out, rangeset.Single(i, true))
		}
		return out, false
	}
	return rangeset.Empty(), false
}

// endsAfter reports whether v is the greatest key value entry e can hold.
func endsAfter(kt types.KeyType, e RangeEntry, v interface{}) bool {
	if !e.Max.IsFinite() {
		return false
	}
	next, ok := kt.Successor(v)
	return ok && kt.Compare(next, e.Max.Value) == 0
}

// holdsOnly reports whether v is the single key value entry e can hold.
func holdsOnly(kt types.KeyType, e RangeEntry, v interface{}) bool {
	return e.Min.IsFinite() && kt.Compare(e.Min.Value, v) == 0 && endsAfter(kt, e, v)
}

// Select dispatches on the table strategy. value is coerced to the key type
// first. Hash tables only prune equality; other comparisons keep every
// partition as a recheck candidate.
func Select(spec *Spec, op Op, value interface{}) (rangeset.RangeSet, bool, error) {
	v, err := spec.KeyType.Coerce(value)
	if err != nil {
		return nil, false, err
	}
	if spec.Strategy == types.StrategyHash {
		if op != OpEQ {
			return rangeset.Full(spec.NumPartitions(), true), false, nil
		}
		set, err := SelectHash(v, spec)
		if err != nil {
			return nil, false, err
		}
		return set, false, nil
	}
	set, gap := SelectRange(v, op, spec)
	return set, gap, nil
}
