package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/pkg/types"
)

// Catalog manages partitioned table definitions in the catalog database.
type Catalog interface {
	SpecReader

	// RegisterTable adds a new partitioned table at version 1.
	RegisterTable(ctx context.Context, def types.TableDef) (*partition.Spec, error)

	// AddRangePartition inserts one range partition in boundary order.
	AddRangePartition(ctx context.Context, tableID string, rd types.RangeDef) (*partition.Spec, error)

	// UpdateTable applies fn to the stored definition and commits the result
	// as the next version. When expectVersion is positive and does not match
	// the stored version, it fails with WRITE_CONFLICT.
	UpdateTable(ctx context.Context, tableID string, expectVersion int64, change notify.ChangeType, fn func(*types.TableDef) error) (*partition.Spec, error)

	// DropTable removes a table and its partition directory.
	DropTable(ctx context.Context, tableID string) error

	// ListTables returns every table definition, ordered by table id.
	ListTables(ctx context.Context) ([]types.TableDef, error)

	// GetTableDef returns the stored definition of one table.
	GetTableDef(ctx context.Context, tableID string) (*types.TableDef, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	logger   *zap.Logger
	notifier *notify.Notifier
}

// Option configures a SQLiteCatalog.
type Option func(*SQLiteCatalog)

// WithLogger sets the catalog's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *SQLiteCatalog) { c.logger = logger }
}

// WithNotifier publishes every committed change to n.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *SQLiteCatalog) { c.notifier = n }
}

// NewCatalog creates a new SQLite-based catalog at dbPath. The path must name a
// file: reads and writes use separate connections.
func NewCatalog(dbPath string, opts ...Option) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	catalog := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(catalog)
	}

	if err := catalog.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes both connections.
func (c *SQLiteCatalog) Close() error {
	rerr := c.readDB.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return rerr
}

func notPartitioned(tableID string) error {
	return errors.NewCatalogError(errors.CodeNotPartitioned,
		fmt.Sprintf("table %q is not partitioned", tableID), nil)
}

// RegisterTable adds a new partitioned table. The stored definition is the
// normalized form of def at version 1.
func (c *SQLiteCatalog) RegisterTable(ctx context.Context, def types.TableDef) (*partition.Spec, error) {
	def.Version = 1
	spec, err := partition.FromDef(def)
	if err != nil {
		return nil, err
	}
	norm := spec.Def()

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM partitioned_tables WHERE table_id = ?", norm.TableID).Scan(&exists)
	if err == nil {
		return nil, errors.NewCatalogError(errors.CodeTableExists,
			fmt.Sprintf("table %q is already registered", norm.TableID), nil)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("manifest: failed to check table: %w", err)
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO partitioned_tables (
			table_id, strategy, key_expr, key_kind, hash_func, hash_partitions,
			auto_create, interval, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		norm.TableID, string(norm.Strategy), norm.KeyExpr, string(norm.KeyKind),
		nullString(string(norm.HashFunc)), norm.HashPartitions,
		norm.AutoCreate, nullString(norm.Interval), norm.Version, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to insert table: %w", err)
	}
	if err := writeRanges(ctx, tx, norm, now); err != nil {
		return nil, err
	}
	if err := recordVersion(ctx, tx, norm, notify.TableRegistered, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	c.logger.Info("table registered",
		zap.String("table", norm.TableID),
		zap.String("strategy", string(norm.Strategy)),
		zap.Int("partitions", spec.NumPartitions()))
	c.publish(notify.TableRegistered, norm.TableID, norm.Version)
	return spec, nil
}

// AddRangePartition inserts rd at its place in boundary order. An empty
// rd.Name gets a generated one.
func (c *SQLiteCatalog) AddRangePartition(ctx context.Context, tableID string, rd types.RangeDef) (*partition.Spec, error) {
	return c.UpdateTable(ctx, tableID, 0, notify.PartitionsAdded, func(def *types.TableDef) error {
		return InsertRange(def, rd)
	})
}

// UpdateTable is the single write path for existing tables. fn runs inside the
// write transaction; the result is validated before it is committed.
func (c *SQLiteCatalog) UpdateTable(ctx context.Context, tableID string, expectVersion int64, change notify.ChangeType, fn func(*types.TableDef) error) (*partition.Spec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	def, err := loadDef(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if expectVersion > 0 && def.Version != expectVersion {
		return nil, errors.NewCatalogError(errors.CodeWriteConflict,
			fmt.Sprintf("table %q is at version %d, expected %d", tableID, def.Version, expectVersion), nil)
	}

	prev := def.Version
	if err := fn(def); err != nil {
		return nil, err
	}
	def.TableID = tableID
	def.Version = prev + 1

	spec, err := partition.FromDef(*def)
	if err != nil {
		return nil, err
	}
	norm := spec.Def()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		UPDATE partitioned_tables SET
			strategy = ?, key_expr = ?, key_kind = ?, hash_func = ?, hash_partitions = ?,
			auto_create = ?, interval = ?, version = ?, updated_at = ?
		WHERE table_id = ? AND version = ?`,
		string(norm.Strategy), norm.KeyExpr, string(norm.KeyKind),
		nullString(string(norm.HashFunc)), norm.HashPartitions,
		norm.AutoCreate, nullString(norm.Interval), norm.Version, now,
		tableID, prev,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to update table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM range_partitions WHERE table_id = ?", tableID); err != nil {
		return nil, fmt.Errorf("manifest: failed to clear range partitions: %w", err)
	}
	if err := writeRanges(ctx, tx, norm, now); err != nil {
		return nil, err
	}
	if err := recordVersion(ctx, tx, norm, change, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	c.logger.Info("table updated",
		zap.String("table", tableID),
		zap.Stringer("change", change),
		zap.Int64("version", norm.Version),
		zap.Int("partitions", spec.NumPartitions()))
	c.publish(change, tableID, norm.Version)
	return spec, nil
}

// DropTable removes a table, its partitions and its history.
func (c *SQLiteCatalog) DropTable(ctx context.Context, tableID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM partitioned_tables WHERE table_id = ?", tableID)
	if err != nil {
		return fmt.Errorf("manifest: failed to delete table: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notPartitioned(tableID)
	}
	for _, stmt := range []string{
		"DELETE FROM range_partitions WHERE table_id = ?",
		"DELETE FROM spec_versions WHERE table_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, tableID); err != nil {
			return fmt.Errorf("manifest: failed to drop table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	c.logger.Info("table dropped", zap.String("table", tableID))
	c.publish(notify.TableDropped, tableID, 0)
	return nil
}

// ListTables returns every table definition, ordered by table id.
func (c *SQLiteCatalog) ListTables(ctx context.Context) ([]types.TableDef, error) {
	rows, err := c.readDB.QueryContext(ctx, "SELECT table_id FROM partitioned_tables ORDER BY table_id")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list tables: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("manifest: failed to scan table id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to list tables: %w", err)
	}

	defs := make([]types.TableDef, 0, len(ids))
	for _, id := range ids {
		def, err := loadDef(ctx, c.readDB, id)
		if err != nil {
			// Dropped between the two queries.
			if errors.HasCode(err, errors.CodeNotPartitioned) {
				continue
			}
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// GetTableDef returns the stored definition of tableID.
func (c *SQLiteCatalog) GetTableDef(ctx context.Context, tableID string) (*types.TableDef, error) {
	return loadDef(ctx, c.readDB, tableID)
}

// GetPartitioningSpec loads and validates the current snapshot of tableID.
func (c *SQLiteCatalog) GetPartitioningSpec(ctx context.Context, tableID string) (*partition.Spec, error) {
	def, err := loadDef(ctx, c.readDB, tableID)
	if err != nil {
		return nil, err
	}
	return partition.FromDef(*def)
}

func (c *SQLiteCatalog) publish(change notify.ChangeType, tableID string, version int64) {
	metrics.CatalogChanges.WithLabelValues(change.String()).Inc()
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(notify.Notification{Type: change, TableID: tableID, Version: version})
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func loadDef(ctx context.Context, q queryer, tableID string) (*types.TableDef, error) {
	var (
		def            types.TableDef
		strategy, kind string
		hashFunc, ival sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT table_id, strategy, key_expr, key_kind, hash_func, hash_partitions,
		       auto_create, interval, version
		FROM partitioned_tables WHERE table_id = ?`, tableID,
	).Scan(&def.TableID, &strategy, &def.KeyExpr, &kind, &hashFunc, &def.HashPartitions,
		&def.AutoCreate, &ival, &def.Version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notPartitioned(tableID)
		}
		return nil, fmt.Errorf("manifest: failed to load table %q: %w", tableID, err)
	}
	def.Strategy = types.PartitionStrategy(strategy)
	def.KeyKind = types.KeyKind(kind)
	def.HashFunc = types.HashFunc(hashFunc.String)
	def.Interval = ival.String

	rows, err := q.QueryContext(ctx, `
		SELECT name, min_value, max_value FROM range_partitions
		WHERE table_id = ? ORDER BY position`, tableID)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to load partitions of %q: %w", tableID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rd types.RangeDef
		var minV, maxV sql.NullString
		if err := rows.Scan(&rd.Name, &minV, &maxV); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan partition: %w", err)
		}
		rd.Min, rd.Max = minV.String, maxV.String
		def.Ranges = append(def.Ranges, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to load partitions of %q: %w", tableID, err)
	}
	return &def, nil
}

func writeRanges(ctx context.Context, tx *sql.Tx, def types.TableDef, now int64) error {
	if len(def.Ranges) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO range_partitions (table_id, position, name, min_value, max_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: failed to prepare partition insert: %w", err)
	}
	defer stmt.Close()

	for i, rd := range def.Ranges {
		if _, err := stmt.ExecContext(ctx, def.TableID, i, rd.Name, nullString(rd.Min), nullString(rd.Max), now); err != nil {
			return fmt.Errorf("manifest: failed to insert partition %q: %w", rd.Name, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertRange places rd into def.Ranges in boundary order, naming it when
// rd.Name is empty. Overlaps are left for validation to reject.
func InsertRange(def *types.TableDef, rd types.RangeDef) error {
	if def.Strategy != types.StrategyRange {
		return errors.NewInvalidSpec(fmt.Sprintf("table %q is not range partitioned", def.TableID))
	}
	kt, err := types.LookupKeyType(def.KeyKind)
	if err != nil {
		return errors.NewInvalidSpec(err.Error())
	}
	if rd.Name == "" {
		rd.Name = nextPartitionName(def)
	}

	pos := len(def.Ranges)
	if rd.Min == "" {
		pos = 0
	} else {
		v, err := kt.Parse(rd.Min)
		if err != nil {
			return errors.NewInvalidSpec(fmt.Sprintf("partition %q: min: %v", rd.Name, err))
		}
		pos = sort.Search(len(def.Ranges), func(i int) bool {
			if def.Ranges[i].Min == "" {
				return false
			}
			m, err := kt.Parse(def.Ranges[i].Min)
			return err == nil && kt.Compare(m, v) > 0
		})
	}

	def.Ranges = append(def.Ranges, types.RangeDef{})
	copy(def.Ranges[pos+1:], def.Ranges[pos:])
	def.Ranges[pos] = rd
	return nil
}

// nextPartitionName returns "<table>_p<n>" for the smallest unused n not below
// the current partition count.
func nextPartitionName(def *types.TableDef) string {
	return partitionNames(def, 1)[0]
}

// partitionNames returns k distinct names unused in def.
func partitionNames(def *types.TableDef, k int) []string {
	used := make(map[string]bool, len(def.Ranges))
	for _, rd := range def.Ranges {
		used[rd.Name] = true
	}
	names := make([]string, 0, k)
	for n := len(def.Ranges); len(names) < k; n++ {
		name := fmt.Sprintf("%s_p%d", def.TableID, n)
		if !used[name] {
			names = append(names, name)
		}
	}
	return names
}
