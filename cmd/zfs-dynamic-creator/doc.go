// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Zfs-dynamic-creator converts a directory created beneath a managed
// root into a dedicated ZFS filesystem mounted at the same path, and
// keeps the NFS export table synchronized with the set of converted
// filesystems. It is designed to be invoked once per directory-watch
// event (incron or equivalent), which delivers the root filesystem,
// root directory, created name, and event descriptor as arguments:
//
//	zfs-dynamic-creator [flags] <root-fs> <root-dir> <name> <event>
//
// Invoked with only the two roots, it performs a full-resync export
// reconciliation against the current filesystem inventory, with no
// migration side effects:
//
//	zfs-dynamic-creator [flags] <root-fs> <root-dir>
//
// Files written into the directory between its creation and the
// watcher's delivery are preserved: the contents are mirror-copied
// into the staged filesystem before the swap, optionally after a
// quiescence delay (--delay) that gives concurrent writers time to
// finish. The watcher is responsible for serializing events for the
// same root; there is no internal locking.
//
// Runtime failures are reported through the log and the process exits
// zero — the watcher must not treat a failed event as fatal. Only a
// malformed invocation exits non-zero.
package main
