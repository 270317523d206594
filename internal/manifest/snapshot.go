package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/storage"
	"github.com/partwise/partwise/pkg/types"
)

// SnapshotPrefix is the object storage prefix of exported snapshots.
const SnapshotPrefix = "snapshots"

// snapshotFormat is bumped when the envelope changes incompatibly.
const snapshotFormat = 1

// Snapshot is the exported form of one table definition.
type Snapshot struct {
	Format     int            `json:"format"`
	ID         string         `json:"id"`
	ExportedAt time.Time      `json:"exported_at"`
	Def        types.TableDef `json:"def"`
}

// SnapshotPath returns snapshots/<table>/v<version>-<id>.json.sz.
func SnapshotPath(tableID string, version int64, id string) string {
	return path.Join(SnapshotPrefix, tableID, fmt.Sprintf("v%d-%s.json.sz", version, id))
}

// parseSnapshotPath extracts the table and version from a snapshot path.
func parseSnapshotPath(p string) (tableID string, version int64, ok bool) {
	rest := strings.TrimPrefix(p, SnapshotPrefix+"/")
	if rest == p {
		return "", 0, false
	}
	dir, file := path.Split(rest)
	tableID = strings.TrimSuffix(dir, "/")
	if tableID == "" || !strings.HasPrefix(file, "v") || !strings.HasSuffix(file, ".json.sz") {
		return "", 0, false
	}
	dash := strings.IndexByte(file, '-')
	if dash < 0 {
		return "", 0, false
	}
	version, err := strconv.ParseInt(file[1:dash], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return tableID, version, true
}

// ExportSnapshot writes the current definition of tableID to store and
// returns the object path.
func ExportSnapshot(ctx context.Context, catalog Catalog, store storage.ObjectStorage, tableID string) (string, error) {
	def, err := catalog.GetTableDef(ctx, tableID)
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		Format:     snapshotFormat,
		ID:         uuid.NewString(),
		ExportedAt: time.Now().UTC(),
		Def:        *def,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to marshal snapshot: %w", err)
	}

	objectPath := SnapshotPath(def.TableID, def.Version, snap.ID)
	if _, err := store.PutIfAbsent(ctx, objectPath, snappy.Encode(nil, raw)); err != nil {
		return "", errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("failed to export snapshot of %q", tableID), err)
	}
	return objectPath, nil
}

// ReadSnapshot loads and decodes one exported snapshot.
func ReadSnapshot(ctx context.Context, store storage.ObjectStorage, objectPath string) (*Snapshot, error) {
	data, err := store.Get(ctx, objectPath)
	if err != nil {
		code := errors.CodeDownloadFailed
		if err == storage.ErrObjectNotFound {
			code = errors.CodeObjectNotFound
		}
		return nil, errors.NewStorageError(code, fmt.Sprintf("failed to read snapshot %s", objectPath), err)
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("snapshot %s is not snappy encoded", objectPath), err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("snapshot %s is malformed", objectPath), err)
	}
	if snap.Format != snapshotFormat {
		return nil, errors.NewInvalidSpec(fmt.Sprintf("snapshot %s has unsupported format %d", objectPath, snap.Format))
	}
	return &snap, nil
}

// ImportSnapshot installs the definition stored at objectPath. A table that is
// not yet registered is registered; an existing table has its definition
// replaced and its version bumped.
func ImportSnapshot(ctx context.Context, catalog Catalog, store storage.ObjectStorage, objectPath string) (*partition.Spec, error) {
	snap, err := ReadSnapshot(ctx, store, objectPath)
	if err != nil {
		return nil, err
	}
	def := snap.Def

	// Validate before touching the catalog.
	if _, err := partition.FromDef(def); err != nil {
		return nil, err
	}

	_, err = catalog.GetTableDef(ctx, def.TableID)
	switch {
	case errors.HasCode(err, errors.CodeNotPartitioned):
		return catalog.RegisterTable(ctx, def)
	case err != nil:
		return nil, err
	}
	return catalog.UpdateTable(ctx, def.TableID, 0, notify.SnapshotImported, func(cur *types.TableDef) error {
		version := cur.Version
		*cur = def
		cur.Version = version
		return nil
	})
}

// LatestSnapshot returns the path of the highest-version snapshot of tableID.
func LatestSnapshot(ctx context.Context, store storage.ObjectStorage, tableID string) (string, int64, error) {
	objects, err := store.ListObjects(ctx, path.Join(SnapshotPrefix, tableID))
	if err != nil {
		return "", 0, errors.NewStorageError(errors.CodeDownloadFailed, "failed to list snapshots", err)
	}

	best, bestVersion := "", int64(-1)
	for _, obj := range objects {
		t, v, ok := parseSnapshotPath(obj)
		if !ok || t != tableID {
			continue
		}
		if v > bestVersion {
			best, bestVersion = obj, v
		}
	}
	if best == "" {
		return "", 0, errors.NewStorageError(errors.CodeObjectNotFound,
			fmt.Sprintf("no snapshot of %q", tableID), storage.ErrObjectNotFound)
	}
	return best, bestVersion, nil
}
