package planner

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/prune"
	"github.com/partwise/partwise/internal/query/parser"
	"github.com/partwise/partwise/internal/rangeset"
)

// ScanTarget is one partition a query must read.
type ScanTarget struct {
	// Index is the partition's position in the directory.
	Index int `json:"index"`

	// Name is the partition's name.
	Name string `json:"name"`

	// Recheck is set when not every row of the partition satisfies the
	// WHERE clause, so the executor must re-evaluate it.
	Recheck bool `json:"recheck"`
}

// PruneResult is the outcome of resolving one WHERE clause against a snapshot.
type PruneResult struct {
	// Node is the resolved expression tree.
	Node *prune.WrapperNode

	// Targets lists the surviving partitions in directory order.
	Targets []ScanTarget

	// TotalPartitions is N for the snapshot pruned against.
	TotalPartitions int

	// PruningRatio is the ratio of pruned partitions (0.0 to 1.0).
	PruningRatio float64
}

// Prune resolves where against spec. A nil where keeps every partition.
func Prune(spec *partition.Spec, where parser.Expression, params []interface{}) (*PruneResult, error) {
	expr := prune.FromAST(where, spec.KeyExpr)
	node, err := prune.Resolve(expr, &prune.Context{Spec: spec, Params: params})
	if err != nil {
		return nil, err
	}

	total := spec.NumPartitions()
	targets := scanTargets(spec, node.Ranges)

	var ratio float64
	if total > 0 {
		ratio = float64(total-len(targets)) / float64(total)
	}
	return &PruneResult{
		Node:            node,
		Targets:         targets,
		TotalPartitions: total,
		PruningRatio:    ratio,
	}, nil
}

func scanTargets(spec *partition.Spec, set rangeset.RangeSet) []ScanTarget {
	targets := make([]ScanTarget, 0, set.Count())
	for _, r := range set {
		for i := r.Lower; i <= r.Upper; i++ {
			targets = append(targets, ScanTarget{
				Index:   i,
				Name:    spec.PartitionName(i),
				Recheck: r.Lossy,
			})
		}
	}
	return targets
}

// exactPartitions resolves each top-level conjunct of where on its own and
// returns, per conjunct, the partitions in which every row satisfies it.
func exactPartitions(spec *partition.Spec, where parser.Expression, params []interface{}) ([]parser.Expression, []*bitset.BitSet) {
	conjuncts := parser.Conjuncts(where)
	exact := make([]*bitset.BitSet, len(conjuncts))
	for i, c := range conjuncts {
		node, err := prune.Resolve(prune.FromAST(c, spec.KeyExpr), &prune.Context{Spec: spec, Params: params})
		if err != nil {
			exact[i] = bitset.New(0)
			continue
		}
		members, lossy := node.Ranges.Bitmap()
		exact[i] = members.Difference(lossy)
	}
	return conjuncts, exact
}
