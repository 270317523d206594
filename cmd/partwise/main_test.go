package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const eventsYAML = `table_id: events
strategy: range
key_expr: id
key_kind: int
auto_create: true
interval: "10"
ranges:
  - {name: p0, min: "0", max: "10"}
  - {name: p1, min: "10", max: "20"}
`

func TestCLI_TableLifecycle(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "events.yaml")
	if err := os.WriteFile(file, []byte(eventsYAML), 0644); err != nil {
		t.Fatal(err)
	}
	data := filepath.Join(dir, "data")

	out, err := run(t, data, "table", "register", file)
	if err != nil || !strings.Contains(out, "registered events (version 1, 2 partitions)") {
		t.Fatalf("register: %v\n%s", err, out)
	}

	out, err = run(t, data, "plan", "SELECT * FROM events WHERE id >= 12")
	if err != nil || !strings.Contains(out, `"name": "p1"`) || strings.Contains(out, `"name": "p0"`) {
		t.Errorf("plan: %v\n%s", err, out)
	}

	out, err = run(t, data, "plan", "--rewrite", "-p", "3", "SELECT * FROM events WHERE id < $1")
	if err != nil || !strings.Contains(out, "-- p0") || strings.Contains(out, "-- p1") {
		t.Errorf("plan --rewrite: %v\n%s", err, out)
	}

	out, err = run(t, data, "route", "events", "--set", "id=25")
	if err != nil || !strings.Contains(out, `"spawned": 1`) {
		t.Errorf("route with spawn: %v\n%s", err, out)
	}

	out, err = run(t, data, "table", "list")
	if err != nil || !strings.Contains(out, "events") {
		t.Errorf("list: %v\n%s", err, out)
	}

	out, err = run(t, data, "table", "history", "events")
	if err != nil || !strings.Contains(out, "partitions_added") {
		t.Errorf("history: %v\n%s", err, out)
	}

	out, err = run(t, data, "snapshot", "export", "events")
	if err != nil || !strings.HasPrefix(out, "snapshots/events/v2-") {
		t.Errorf("export: %v\n%s", err, out)
	}

	if _, err := run(t, data, "snapshot", "reconcile"); err != nil {
		t.Errorf("reconcile after export should be clean: %v", err)
	}

	if _, err := run(t, data, "table", "drop", "events"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := run(t, data, "snapshot", "reconcile"); err == nil {
		t.Error("reconcile should report the orphaned snapshot")
	}

	out, err = run(t, data, "snapshot", "import", "--latest", "events")
	if err != nil || !strings.Contains(out, "imported events") {
		t.Errorf("import: %v\n%s", err, out)
	}
}

func TestBuildRow(t *testing.T) {
	row, err := buildRow(`{"id": 7, "name": "x"}`, []string{"score=1.5", "note=null"})
	if err != nil {
		t.Fatal(err)
	}
	if row["id"] != int64(7) || row["score"] != 1.5 || row["note"] != nil || row["name"] != "x" {
		t.Errorf("unexpected row %#v", row)
	}

	if _, err := buildRow("", nil); err == nil {
		t.Error("expected error for empty row")
	}
	if _, err := buildRow("", []string{"novalue"}); err == nil {
		t.Error("expected error for malformed --set")
	}
}
