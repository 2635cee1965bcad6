// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T, filter *regexp.Regexp, onMigrated OnMigrated) (*Router, *fakeStorage, string) {
	t.Helper()
	rootDir := t.TempDir()
	storage := newFakeStorage("pool/data", rootDir)
	engine := NewEngine(Config{
		RootFilesystem: "pool/data",
		RootDirectory:  rootDir,
		Storage:        storage,
		Copier:         &fakeCopier{},
		Logger:         discardLogger(),
	})
	return NewRouter(engine, filter, onMigrated, discardLogger()), storage, rootDir
}

func directoryCreate(name string) Event {
	return Event{Name: name, Kind: "IN_CREATE,IN_ISDIR"}
}

func TestRouteMigratesFreshDirectory(t *testing.T) {
	t.Parallel()

	var migrated string
	var inventory []string
	router, storage, rootDir := newTestRouter(t, nil,
		func(ctx context.Context, name string, all []string) error {
			migrated = name
			inventory = all
			return nil
		})
	seedDirectory(t, rootDir, "run1", 0755)

	if err := router.Route(context.Background(), directoryCreate("run1")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if migrated != "pool/data/run1" {
		t.Errorf("onMigrated got %q, want pool/data/run1", migrated)
	}
	found := false
	for _, name := range inventory {
		if name == "pool/data/run1" {
			found = true
		}
	}
	if !found {
		t.Errorf("onMigrated inventory %v missing the new filesystem", inventory)
	}
	if len(storage.ops) != 2 {
		t.Errorf("storage ops = %v", storage.ops)
	}
}

func TestRouteDuplicateDeliveryMigratesOnce(t *testing.T) {
	t.Parallel()

	router, storage, rootDir := newTestRouter(t, nil, nil)
	seedDirectory(t, rootDir, "run1", 0755)

	event := directoryCreate("run1")
	if err := router.Route(context.Background(), event); err != nil {
		t.Fatalf("first Route: %v", err)
	}
	if err := router.Route(context.Background(), event); err != nil {
		t.Fatalf("second Route: %v", err)
	}

	creates := 0
	for _, op := range storage.ops {
		if strings.HasPrefix(op, "create ") {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("%d staging creates across duplicate delivery, want exactly 1 (ops %v)", creates, storage.ops)
	}
}

func TestRouteExistingFilesystemIsNoOp(t *testing.T) {
	t.Parallel()

	router, storage, _ := newTestRouter(t, nil, nil)
	storage.filesystems = append(storage.filesystems, "pool/data/run1")

	if err := router.Route(context.Background(), directoryCreate("run1")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(storage.ops) != 0 {
		t.Errorf("storage ops = %v, want none for an already-migrated name", storage.ops)
	}
}

func TestRouteMarkerSuffixNeverStages(t *testing.T) {
	t.Parallel()

	router, storage, _ := newTestRouter(t, nil, nil)

	for _, name := range []string{
		"run1.staging.dyncreate",
		"run1.delete.dyncreate",
		"run1.keep.dyncreate",
	} {
		if err := router.Route(context.Background(), directoryCreate(name)); err != nil {
			t.Fatalf("Route(%s): %v", name, err)
		}
	}
	if len(storage.ops) != 0 {
		t.Errorf("marker-suffixed events reached storage: %v", storage.ops)
	}
}

func TestRouteIgnoresOtherEventKinds(t *testing.T) {
	t.Parallel()

	router, storage, rootDir := newTestRouter(t, nil, nil)
	seedDirectory(t, rootDir, "run1", 0755)

	for _, kind := range []string{"IN_CREATE", "IN_ISDIR", "IN_ATTRIB,IN_ISDIR", "IN_CLOSE_WRITE", ""} {
		if err := router.Route(context.Background(), Event{Name: "run1", Kind: kind}); err != nil {
			t.Fatalf("Route(kind %q): %v", kind, err)
		}
	}
	if len(storage.ops) != 0 {
		t.Errorf("non-directory-create events reached storage: %v", storage.ops)
	}
}

func TestRouteNameFilter(t *testing.T) {
	t.Parallel()

	router, storage, rootDir := newTestRouter(t, regexp.MustCompile(`^run[0-9]+$`), nil)
	seedDirectory(t, rootDir, "scratch", 0755)
	seedDirectory(t, rootDir, "run7", 0755)

	if err := router.Route(context.Background(), directoryCreate("scratch")); err != nil {
		t.Fatalf("Route(scratch): %v", err)
	}
	if len(storage.ops) != 0 {
		t.Errorf("filtered-out name reached storage: %v", storage.ops)
	}

	if err := router.Route(context.Background(), directoryCreate("run7")); err != nil {
		t.Fatalf("Route(run7): %v", err)
	}
	if len(storage.ops) != 2 {
		t.Errorf("matching name did not migrate: %v", storage.ops)
	}
}

func TestRouteSecondSightingFinalizes(t *testing.T) {
	t.Parallel()

	router, storage, rootDir := newTestRouter(t, nil, nil)
	storage.filesystems = append(storage.filesystems, "pool/data/run1")
	retained := seedDirectory(t, rootDir, "run1.delete.dyncreate", 0755)

	// The mount of the final filesystem shows up as a creation event
	// for the base name; the delete-marked original must go and
	// nothing else may happen.
	if err := router.Route(context.Background(), directoryCreate("run1")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if _, err := os.Stat(retained); !os.IsNotExist(err) {
		t.Errorf("delete-marked directory still present (err = %v)", err)
	}
	if len(storage.ops) != 0 {
		t.Errorf("finalize touched storage: %v", storage.ops)
	}
}

func TestRouteSecondSightingHonorsKeep(t *testing.T) {
	t.Parallel()

	router, _, rootDir := newTestRouter(t, nil, nil)
	kept := seedDirectory(t, rootDir, "run1.keep.dyncreate", 0755)

	if err := router.Route(context.Background(), directoryCreate("run1")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if _, err := os.Stat(filepath.Join(kept, "hello.txt")); err != nil {
		t.Errorf("keep-marked directory disturbed: %v", err)
	}
}

func TestIsDirectoryCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		want bool
	}{
		{"IN_CREATE,IN_ISDIR", true},
		{"IN_ISDIR,IN_CREATE", true},
		{"IN_CREATE|IN_ISDIR", true},
		{"IN_CREATE", false},
		{"IN_ISDIR", false},
		{"IN_MOVED_TO,IN_ISDIR", false},
		{"", false},
	}
	for _, test := range tests {
		if got := isDirectoryCreate(test.kind); got != test.want {
			t.Errorf("isDirectoryCreate(%q) = %v, want %v", test.kind, got, test.want)
		}
	}
}
