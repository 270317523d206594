package types

import (
	"fmt"
	"strings"
)

// PartitionStrategy defines how a table's key space is split into partitions.
type PartitionStrategy string

const (
	// StrategyRange splits the key space into contiguous half-open intervals.
	StrategyRange PartitionStrategy = "range"

	// StrategyHash assigns keys to partitions by hash(key) mod N.
	StrategyHash PartitionStrategy = "hash"
)

// ParsePartitionStrategy parses a strategy name, case-insensitively.
func ParsePartitionStrategy(s string) (PartitionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "range":
		return StrategyRange, nil
	case "hash":
		return StrategyHash, nil
	default:
		return "", fmt.Errorf("types: unsupported partition strategy %q", s)
	}
}

// HashFunc names a hash function used by hash partitioning.
type HashFunc string

const (
	HashMurmur3 HashFunc = "murmur3"
	HashFNV1a   HashFunc = "fnv1a"
	HashFarm    HashFunc = "farm"
)

// DefaultHashFunc is used when a hash-partitioned table does not name one.
const DefaultHashFunc = HashMurmur3

// ParseHashFunc parses a hash function name. The empty string maps to DefaultHashFunc.
func ParseHashFunc(s string) (HashFunc, error) {
	switch HashFunc(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultHashFunc, nil
	case HashMurmur3:
		return HashMurmur3, nil
	case HashFNV1a:
		return HashFNV1a, nil
	case HashFarm:
		return HashFarm, nil
	default:
		return "", fmt.Errorf("types: unsupported hash function %q", s)
	}
}

// TableDef is the serializable definition of a partitioned table, as stored in the
// catalog, read from YAML table files, and exported in snapshots.
type TableDef struct {
	// TableID identifies the partitioned table.
	TableID string `json:"table_id" yaml:"table_id"`

	// Strategy is range or hash.
	Strategy PartitionStrategy `json:"strategy" yaml:"strategy"`

	// KeyExpr is the partitioning key expression, e.g. "user_id" or "ts".
	KeyExpr string `json:"key_expr" yaml:"key_expr"`

	// KeyKind is the key's value domain.
	KeyKind KeyKind `json:"key_kind" yaml:"key_kind"`

	// HashFunc and HashPartitions describe a hash directory.
	HashFunc       HashFunc `json:"hash_func,omitempty" yaml:"hash_func,omitempty"`
	HashPartitions uint32   `json:"hash_partitions,omitempty" yaml:"hash_partitions,omitempty"`

	// Ranges lists range partitions in boundary order.
	Ranges []RangeDef `json:"ranges,omitempty" yaml:"ranges,omitempty"`

	// AutoCreate enables on-demand creation of range partitions for uncovered values.
	AutoCreate bool `json:"auto_create,omitempty" yaml:"auto_create,omitempty"`

	// Interval is the width of auto-created range partitions, in key text form
	// (an integer, or a Go duration for timestamp keys).
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// Version increases with every catalog change to the table.
	Version int64 `json:"version" yaml:"version,omitempty"`
}

// RangeDef is one range partition in text form. An empty Min means unbounded
// below; an empty Max means unbounded above.
type RangeDef struct {
	Name string `json:"name" yaml:"name"`
	Min  string `json:"min,omitempty" yaml:"min,omitempty"`
	Max  string `json:"max,omitempty" yaml:"max,omitempty"`
}
