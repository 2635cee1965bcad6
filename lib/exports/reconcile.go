// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package exports

import (
	"github.com/tesujimath/zfs-dynamic-creator/lib/namemap"
)

// Mode selects how Reconcile derives the managed child export set.
type Mode int

const (
	// Incremental adds or updates entries only for the newly migrated
	// filesystems; nothing is removed.
	Incremental Mode = iota

	// FullResync recomputes the entire managed subtree from the
	// current filesystem inventory: every descendant of the root
	// filesystem becomes a child export, and any currently exported
	// descendant of the root directory not in that set is deleted.
	FullResync
)

func (m Mode) String() string {
	if m == FullResync {
		return "full-resync"
	}
	return "incremental"
}

// Reconcile aligns the table's child exports under rootDir with the
// migrated filesystems under rootFs. The root directory's own entry is
// the opt-in signal: if rootDir is not itself exported, the subtree is
// not under export management and Reconcile does nothing. Every
// managed child export inherits rootDir's client specification
// verbatim — children never carry a custom access policy.
//
// Mutations are in-memory only; the caller commits the table.
func Reconcile(table *Table, rootFs, rootDir string, newlyMigrated, allFilesystems []string, mode Mode) {
	clients, managed := table.Get(rootDir)
	if !managed {
		return
	}

	if mode == FullResync {
		desired := make(map[string]bool)
		for _, name := range allFilesystems {
			if namemap.IsStrictDescendant(name, rootFs) {
				desired[namemap.FilesystemToDirectory(name, rootFs, rootDir)] = true
			}
		}
		for _, exportPath := range table.Paths() {
			if namemap.IsStrictDescendant(exportPath, rootDir) && !desired[exportPath] {
				table.Delete(exportPath)
			}
		}
		// Second pass in inventory order so appended entries land in a
		// deterministic order.
		for _, name := range allFilesystems {
			if namemap.IsStrictDescendant(name, rootFs) {
				table.Update(namemap.FilesystemToDirectory(name, rootFs, rootDir), clients)
			}
		}
		return
	}

	for _, name := range newlyMigrated {
		if namemap.IsStrictDescendant(name, rootFs) {
			table.Update(namemap.FilesystemToDirectory(name, rootFs, rootDir), clients)
		}
	}
}
