// Package manifest provides the catalog of partitioned tables: their
// partitioning specs, range partition directories and spec history.
package manifest

// CreatePartitionedTablesSQL creates the table registry. Every write to a table's
// partitioning bumps its version.
const CreatePartitionedTablesSQL = `
CREATE TABLE IF NOT EXISTS partitioned_tables (
    table_id TEXT PRIMARY KEY,
    strategy TEXT NOT NULL,
    key_expr TEXT NOT NULL,
    key_kind TEXT NOT NULL,
    hash_func TEXT,
    hash_partitions INTEGER NOT NULL DEFAULT 0,
    auto_create INTEGER NOT NULL DEFAULT 0,
    interval TEXT,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateRangePartitionsSQL creates the range directory. position is the
// partition's index in boundary order; a NULL bound is unbounded.
const CreateRangePartitionsSQL = `
CREATE TABLE IF NOT EXISTS range_partitions (
    table_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    min_value TEXT,
    max_value TEXT,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (table_id, position),
    UNIQUE (table_id, name),
    FOREIGN KEY (table_id) REFERENCES partitioned_tables(table_id) ON DELETE CASCADE
)`

// CreateSpecVersionsSQL creates the spec history. Each committed version of a
// table definition is kept as JSON.
const CreateSpecVersionsSQL = `
CREATE TABLE IF NOT EXISTS spec_versions (
    table_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    change TEXT NOT NULL,
    def_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (table_id, version)
)`

// CreateSpecVersionsIndexSQL supports history cleanup by age.
const CreateSpecVersionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_spec_versions_created ON spec_versions(created_at)`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	return []string{
		CreatePartitionedTablesSQL,
		CreateRangePartitionsSQL,
		CreateSpecVersionsSQL,
		CreateSpecVersionsIndexSQL,
	}
}
