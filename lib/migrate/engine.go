// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package migrate implements the staged-rename protocol that converts
// a freshly created directory into a dedicated filesystem mounted at
// the same path, and the event router that drives it.
//
// The protocol for one directory runs stage, copy, swap, and a later
// finalize triggered by a second creation event:
//
//  1. Create a filesystem under the staging marker name. The storage
//     engine mounts it beside the original directory.
//  2. Mirror-copy the directory's current contents into the staged
//     mount, catching files written during the detection window. A
//     copy failure is logged and the swap proceeds with whatever was
//     staged — a documented best-effort outcome, not an abort.
//  3. Propagate the original top-level owner, group, and permission
//     bits onto the staged mount explicitly; the copy tool is not
//     trusted for the destination root itself.
//  4. Rename the original directory to the pending-delete marker name,
//     vacating the path, then rename the filesystem from the staging
//     name to the final name. The engine mounts it at the vacated path
//     as a side effect. Order matters: the directory must be out of
//     the way before the filesystem claims the mount path.
//  5. The vacated original is retained for operator recovery. When the
//     mount shows up as a second creation event for the same base
//     name, Finalize removes it — unless an operator has renamed it to
//     the keep marker, in which case it is left untouched.
//
// There is no locking and no retry. Correctness during the copy relies
// on an externally guaranteed quiescent window; concurrent writes
// during or after it can be lost or duplicated. This is an accepted
// limitation of the design.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tesujimath/zfs-dynamic-creator/lib/clock"
	"github.com/tesujimath/zfs-dynamic-creator/lib/namemap"
)

// Storage is the subset of the storage engine the protocol needs.
// *zfs.Engine satisfies it.
type Storage interface {
	List(ctx context.Context) ([]string, error)
	Create(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
}

// Mirrorer performs the recursive, attribute-preserving,
// delete-reconciling copy. *rsync.Copier satisfies it.
type Mirrorer interface {
	Mirror(ctx context.Context, srcDir, dstDir string) error
}

// Config carries the collaborators and settings for an Engine.
type Config struct {
	// RootFilesystem and RootDirectory are the corresponding roots of
	// the two namespaces. All migrations occur strictly beneath both.
	RootFilesystem string
	RootDirectory  string

	Storage Storage
	Copier  Mirrorer

	// Delay is the quiescence window honored between observing a new
	// directory and beginning to stage it, giving concurrent writers
	// time to finish. Zero disables the pause.
	Delay time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine runs the migration protocol for directories beneath one
// root pair.
type Engine struct {
	rootFs  string
	rootDir string
	storage Storage
	copier  Mirrorer
	delay   time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// NewEngine returns an Engine for the given configuration.
func NewEngine(cfg Config) *Engine {
	engine := &Engine{
		rootFs:  cfg.RootFilesystem,
		rootDir: cfg.RootDirectory,
		storage: cfg.Storage,
		copier:  cfg.Copier,
		delay:   cfg.Delay,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	return engine
}

// Migrate runs the stage, copy, and swap sequence for the named
// directory and returns the final filesystem name on success. The
// caller is responsible for the idempotency and reentrancy checks;
// Migrate assumes the name is fresh.
func (e *Engine) Migrate(ctx context.Context, name string) (string, error) {
	directory := filepath.Join(e.rootDir, name)
	filesystem := namemap.DirectoryToFilesystem(directory, e.rootFs, e.rootDir)

	if e.delay > 0 {
		e.logger.Debug("waiting out quiescence window",
			"directory", directory, "delay", e.delay)
		e.clock.Sleep(e.delay)
	}

	stagingFilesystem := namemap.StagingName(filesystem)
	stagingDirectory := namemap.StagingName(directory)
	if err := e.storage.Create(ctx, stagingFilesystem); err != nil {
		return "", fmt.Errorf("staging %s: %w", directory, err)
	}
	e.logger.Debug("staged filesystem created", "filesystem", stagingFilesystem)

	if err := e.copier.Mirror(ctx, directory, stagingDirectory); err != nil {
		// Files staged before the failure are still in place, so the
		// swap proceeds with a possibly incomplete set. Accepted
		// behavior: visible in logs, not fatal.
		e.logger.Error("copy into staged filesystem failed, continuing with partial contents",
			"directory", directory, "error", err)
	}

	if err := propagateTopLevel(directory, stagingDirectory); err != nil {
		return "", fmt.Errorf("staging %s: %w", directory, err)
	}

	deleteDirectory := namemap.DeleteName(directory)
	if err := os.Rename(directory, deleteDirectory); err != nil {
		return "", fmt.Errorf("vacating %s: %w", directory, err)
	}
	if err := e.storage.Rename(ctx, stagingFilesystem, filesystem); err != nil {
		return "", fmt.Errorf("swapping %s into place: %w", filesystem, err)
	}

	e.logger.Info("directory migrated to filesystem",
		"directory", directory, "filesystem", filesystem,
		"retained", deleteDirectory)
	return filesystem, nil
}

// propagateTopLevel copies owner, group, and permission bits from the
// original directory onto the staged one. The copy tool's attribute
// handling covers the tree below but not the destination root, which
// existed before the copy as a fresh mount owned by root.
func propagateTopLevel(directory, stagingDirectory string) error {
	var stat unix.Stat_t
	if err := unix.Stat(directory, &stat); err != nil {
		return fmt.Errorf("stat %s: %w", directory, err)
	}
	if err := os.Chown(stagingDirectory, int(stat.Uid), int(stat.Gid)); err != nil {
		return fmt.Errorf("chown %s: %w", stagingDirectory, err)
	}
	// Raw numeric chmod: os.Chmod drops numeric setuid/setgid/sticky
	// bits, it only honors its symbolic Mode equivalents.
	if err := unix.Chmod(stagingDirectory, stat.Mode&0o7777); err != nil {
		return fmt.Errorf("chmod %s: %w", stagingDirectory, err)
	}
	return nil
}

// PendingFinalize reports whether a vacated original exists for the
// named directory, meaning a creation event for this name is the
// secondary sighting generated by the protocol's own swap rather than
// a fresh directory.
func (e *Engine) PendingFinalize(name string) bool {
	directory := filepath.Join(e.rootDir, name)
	for _, marked := range []string{namemap.DeleteName(directory), namemap.KeepName(directory)} {
		if _, err := os.Lstat(marked); err == nil {
			return true
		}
	}
	return false
}

// Finalize handles the second sighting of a migrated name. A
// keep-marked original is left untouched — the keep marker is placed
// by an operator out of band and this check is its only consumer. A
// delete-marked original is recursively removed. With neither present
// there is nothing to do.
func (e *Engine) Finalize(ctx context.Context, name string) error {
	directory := filepath.Join(e.rootDir, name)

	keepDirectory := namemap.KeepName(directory)
	if _, err := os.Lstat(keepDirectory); err == nil {
		e.logger.Info("vacated original preserved by keep marker", "directory", keepDirectory)
		return nil
	}

	deleteDirectory := namemap.DeleteName(directory)
	if _, err := os.Lstat(deleteDirectory); err == nil {
		if err := os.RemoveAll(deleteDirectory); err != nil {
			return fmt.Errorf("finalizing %s: %w", directory, err)
		}
		e.logger.Info("removed vacated original", "directory", deleteDirectory)
		return nil
	}

	e.logger.Debug("nothing to finalize", "directory", directory)
	return nil
}
