// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package exports

import (
	"context"
	"strings"
	"testing"
)

func loadTable(t *testing.T, content string) *Table {
	t.Helper()
	table, err := Load(writeExports(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return table
}

func TestReconcileNoOpWithoutRootEntry(t *testing.T) {
	t.Parallel()

	// /data itself is not exported, so the subtree is unmanaged.
	table := loadTable(t, "/other\tclientX\n")
	Reconcile(table, "pool/data", "/data", []string{"pool/data/run1"}, nil, Incremental)

	changed, err := table.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if changed {
		t.Error("Reconcile mutated an unmanaged subtree")
	}
}

func TestReconcileIncrementalAddsChild(t *testing.T) {
	t.Parallel()

	table := loadTable(t, "/data\tclient1(rw)\n")
	Reconcile(table, "pool/data", "/data", []string{"pool/data/run1"}, nil, Incremental)

	clients, ok := table.Get("/data/run1")
	if !ok || clients != "client1(rw)" {
		t.Errorf("Get(/data/run1) = %q, %v; want inherited client1(rw)", clients, ok)
	}
}

func TestReconcileIncrementalNeverRemoves(t *testing.T) {
	t.Parallel()

	table := loadTable(t, "/data\tclient1\n/data/old\tclient1\n")
	Reconcile(table, "pool/data", "/data", []string{"pool/data/run1"}, nil, Incremental)

	if _, ok := table.Get("/data/old"); !ok {
		t.Error("incremental reconciliation removed an existing child export")
	}
}

func TestReconcileChildInheritsRootClients(t *testing.T) {
	t.Parallel()

	// A child whose specification drifted from the root's is rewritten
	// to inherit the root policy verbatim.
	table := loadTable(t, "/data\tclient1\n/data/run1\tsomeone-else\n")
	Reconcile(table, "pool/data", "/data", []string{"pool/data/run1"}, nil, Incremental)

	clients, _ := table.Get("/data/run1")
	if clients != "client1" {
		t.Errorf("Get(/data/run1) = %q, want client1", clients)
	}
}

func TestReconcileIgnoresNonDescendants(t *testing.T) {
	t.Parallel()

	table := loadTable(t, "/data\tclient1\n")
	Reconcile(table, "pool/data", "/data", []string{"pool/elsewhere/run1", "pool/data"}, nil, Incremental)

	changed, err := table.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if changed {
		t.Error("non-descendant filesystems produced export changes")
	}
}

func TestReconcileFullResync(t *testing.T) {
	t.Parallel()

	// From the migration protocol's acceptance example: /data/b is no
	// longer backed by a filesystem and must go; /data/a already
	// matches and must keep its exact line.
	table := loadTable(t, "/data\tclient1\n/data/a\tclient1\n/data/b\tclient2\n")
	Reconcile(table, "pool/data", "/data", nil, []string{"pool", "pool/data", "pool/data/a"}, FullResync)

	if _, ok := table.Get("/data/b"); ok {
		t.Error("/data/b survived full resync without a backing filesystem")
	}
	clients, ok := table.Get("/data/a")
	if !ok || clients != "client1" {
		t.Errorf("Get(/data/a) = %q, %v", clients, ok)
	}

	changed, err := table.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !changed {
		t.Fatal("full resync produced no commit")
	}
	want := "/data\tclient1\n/data/a\tclient1\n"
	if got := readFile(t, table.path); got != want {
		t.Errorf("committed file = %q, want %q", got, want)
	}
}

func TestReconcileFullResyncAddsMissingChildren(t *testing.T) {
	t.Parallel()

	table := loadTable(t, "/data\tclient1\n")
	Reconcile(table, "pool/data", "/data", nil,
		[]string{"pool/data/a", "pool/data/b"}, FullResync)

	for _, path := range []string{"/data/a", "/data/b"} {
		clients, ok := table.Get(path)
		if !ok || clients != "client1" {
			t.Errorf("Get(%s) = %q, %v", path, clients, ok)
		}
	}
}

func TestReconcileFullResyncLeavesForeignExports(t *testing.T) {
	t.Parallel()

	table := loadTable(t, "/data\tclient1\n/srv/media\tclientX\n")
	Reconcile(table, "pool/data", "/data", nil, []string{"pool/data"}, FullResync)

	if _, ok := table.Get("/srv/media"); !ok {
		t.Error("full resync removed an export outside the managed subtree")
	}
}

func TestModeString(t *testing.T) {
	t.Parallel()

	if Incremental.String() != "incremental" || FullResync.String() != "full-resync" {
		t.Errorf("Mode strings = %q, %q", Incremental.String(), FullResync.String())
	}
}

func TestExporterRefresh(t *testing.T) {
	t.Parallel()

	exporter := NewExporter("exportfs")
	var gotArgs []string
	exporter.run = func(ctx context.Context, args ...string) error {
		gotArgs = args
		return nil
	}

	if err := exporter.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "-r" {
		t.Errorf("Refresh ran %v, want [-r]", gotArgs)
	}
}

func TestExporterFailureCarriesStderr(t *testing.T) {
	t.Parallel()

	exporter := NewExporter("sh")
	err := exporter.run(context.Background(), "-c", "echo no exports >&2; exit 1")
	if err == nil {
		t.Fatal("expected error from failing exporter")
	}
	if !strings.Contains(err.Error(), "no exports") {
		t.Errorf("error = %q, want stderr text included", err)
	}
}
