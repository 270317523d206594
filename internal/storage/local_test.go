package storage

import (
	"context"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	content := []byte("hello world")
	objectPath := "snapshots/events/v1.json.sz"

	etag, err := storage.Put(ctx, objectPath, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if etag == "" {
		t.Error("expected non-empty ETag")
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, objectPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// Deleting again is a no-op.
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_PutIfAbsent(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	if _, err := storage.PutIfAbsent(ctx, "a/b", []byte("one")); err != nil {
		t.Fatalf("first PutIfAbsent failed: %v", err)
	}
	if _, err := storage.PutIfAbsent(ctx, "a/b", []byte("two")); err != ErrPreconditionFailed {
		t.Errorf("expected ErrPreconditionFailed, got %v", err)
	}

	got, _ := storage.Get(ctx, "a/b")
	if string(got) != "one" {
		t.Errorf("object was overwritten: %q", got)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	if _, err := storage.Get(context.Background(), "nonexistent/object"); err != ErrObjectNotFound {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	for _, p := range []string{"snapshots/t/v2", "snapshots/t/v1", "snapshots/u/v1"} {
		if _, err := storage.Put(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Put(%s) failed: %v", p, err)
		}
	}

	got, err := storage.ListObjects(ctx, "snapshots/t")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(got) != 2 || got[0] != "snapshots/t/v1" || got[1] != "snapshots/t/v2" {
		t.Errorf("unexpected listing: %v", got)
	}

	none, err := storage.ListObjects(ctx, "missing")
	if err != nil || len(none) != 0 {
		t.Errorf("missing prefix: got %v, %v", none, err)
	}
}
