package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/pkg/types"
)

// SpecHistory reads the committed versions of table definitions.
type SpecHistory struct {
	db *sql.DB
}

// NewSpecHistory creates a history reader over the catalog's database.
func NewSpecHistory(catalog *SQLiteCatalog) *SpecHistory {
	return &SpecHistory{db: catalog.readDB}
}

// SpecVersionRecord is one stored version of a table definition.
type SpecVersionRecord struct {
	TableID   string
	Version   int64
	Change    string
	Def       types.TableDef
	CreatedAt time.Time
}

// recordVersion appends def to the history inside the caller's transaction.
func recordVersion(ctx context.Context, tx *sql.Tx, def types.TableDef, change notify.ChangeType, now int64) error {
	defJSON, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("spec_version: failed to marshal definition: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO spec_versions (table_id, version, change, def_json, created_at) VALUES (?, ?, ?, ?, ?)",
		def.TableID, def.Version, change.String(), string(defJSON), now,
	)
	if err != nil {
		return fmt.Errorf("spec_version: failed to insert version %d of %q: %w", def.Version, def.TableID, err)
	}
	return nil
}

// GetSpecVersion retrieves one version of tableID's definition.
func (h *SpecHistory) GetSpecVersion(ctx context.Context, tableID string, version int64) (*SpecVersionRecord, error) {
	rec := SpecVersionRecord{TableID: tableID, Version: version}
	var defJSON string
	var createdAtUnix int64

	err := h.db.QueryRowContext(ctx,
		"SELECT change, def_json, created_at FROM spec_versions WHERE table_id = ? AND version = ?",
		tableID, version,
	).Scan(&rec.Change, &defJSON, &createdAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("spec_version: version %d of %q not found", version, tableID)
		}
		return nil, fmt.Errorf("spec_version: failed to get version %d of %q: %w", version, tableID, err)
	}

	if err := json.Unmarshal([]byte(defJSON), &rec.Def); err != nil {
		return nil, fmt.Errorf("spec_version: failed to unmarshal version %d of %q: %w", version, tableID, err)
	}
	rec.CreatedAt = time.Unix(createdAtUnix, 0)
	return &rec, nil
}

// ListVersions returns all versions of tableID ordered by version number.
func (h *SpecHistory) ListVersions(ctx context.Context, tableID string) ([]SpecVersionRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		"SELECT version, change, def_json, created_at FROM spec_versions WHERE table_id = ? ORDER BY version ASC",
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("spec_version: failed to list versions: %w", err)
	}
	defer rows.Close()

	var records []SpecVersionRecord
	for rows.Next() {
		rec := SpecVersionRecord{TableID: tableID}
		var defJSON string
		var createdAtUnix int64

		if err := rows.Scan(&rec.Version, &rec.Change, &defJSON, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("spec_version: failed to scan version: %w", err)
		}
		if err := json.Unmarshal([]byte(defJSON), &rec.Def); err != nil {
			return nil, fmt.Errorf("spec_version: failed to unmarshal definition: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAtUnix, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("spec_version: error iterating versions: %w", err)
	}
	return records, nil
}

// AddedPartitions returns the range partitions present in newVersion but
// absent from oldVersion.
func (h *SpecHistory) AddedPartitions(ctx context.Context, tableID string, oldVersion, newVersion int64) ([]types.RangeDef, error) {
	oldRec, err := h.GetSpecVersion(ctx, tableID, oldVersion)
	if err != nil {
		return nil, err
	}
	newRec, err := h.GetSpecVersion(ctx, tableID, newVersion)
	if err != nil {
		return nil, err
	}

	old := make(map[string]bool, len(oldRec.Def.Ranges))
	for _, rd := range oldRec.Def.Ranges {
		old[rd.Name] = true
	}
	var added []types.RangeDef
	for _, rd := range newRec.Def.Ranges {
		if !old[rd.Name] {
			added = append(added, rd)
		}
	}
	return added, nil
}
