// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package namemap translates between the two parallel namespaces this
// tool keeps in correspondence: the ZFS filesystem tree and the
// directory tree it is mounted on. The translation is textual prefix
// substitution — every directory under the root directory has exactly
// one corresponding filesystem name under the root filesystem.
//
// The package also owns the marker-suffix grammar that encodes
// migration state in names on disk (the only durable store available
// across invocations). All suffix recognition goes through Parse;
// no other package inspects marker suffixes directly.
package namemap

import "strings"

// DirectoryToFilesystem maps a directory path to its filesystem name
// by replacing the rootDir prefix with rootFs. The result is undefined
// when dir does not start with rootDir — callers must only invoke this
// on known descendants (or rootDir itself).
func DirectoryToFilesystem(dir, rootFs, rootDir string) string {
	return rootFs + strings.TrimPrefix(dir, rootDir)
}

// FilesystemToDirectory is the inverse substitution: it maps a
// filesystem name to the directory path it mounts at.
func FilesystemToDirectory(name, rootFs, rootDir string) string {
	return rootDir + strings.TrimPrefix(name, rootFs)
}

// IsStrictDescendant reports whether candidate lies strictly below
// root in either namespace: true iff candidate begins with root + "/".
// A path is never a strict descendant of itself.
func IsStrictDescendant(candidate, root string) bool {
	return strings.HasPrefix(candidate, root+"/")
}
