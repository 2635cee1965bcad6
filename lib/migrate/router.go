// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tesujimath/zfs-dynamic-creator/lib/namemap"
)

// Event is one creation event delivered by the external trigger
// source (an inotify-style watcher observing the root directory).
type Event struct {
	// Name is the created name within the root directory, without any
	// leading path.
	Name string

	// Kind is the watcher's event descriptor, a comma-separated flag
	// list such as "IN_CREATE,IN_ISDIR". Only directory-creation
	// events are acted on.
	Kind string
}

// OnMigrated is called after a successful migration with the new
// filesystem name and the full inventory including it, so export
// reconciliation can run against current state.
type OnMigrated func(ctx context.Context, migrated string, allFilesystems []string) error

// Router classifies one creation event and dispatches it to migration
// or finalization. Routing is what makes the protocol safe to drive
// from raw watcher events: duplicate deliveries become no-ops, and the
// protocol's own renames are never mistaken for fresh directories.
type Router struct {
	engine     *Engine
	filter     *regexp.Regexp
	logger     *slog.Logger
	onMigrated OnMigrated
}

// NewRouter returns a Router for the engine. filter may be nil to
// accept all names; onMigrated may be nil when no export
// reconciliation is wanted.
func NewRouter(engine *Engine, filter *regexp.Regexp, onMigrated OnMigrated, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		engine:     engine,
		filter:     filter,
		logger:     logger,
		onMigrated: onMigrated,
	}
}

// Route processes exactly one event. The classification order is
// load-bearing:
//
//  1. Only directory-creation kinds proceed; everything else is
//     logged and dropped.
//  2. The optional name filter must match.
//  3. Names carrying a marker suffix are the protocol's own rename
//     traffic and are dropped before any other check, which is what
//     makes the protocol reentrant against the events its renames
//     generate.
//  4. An unmarked name with a vacated original on disk is the
//     secondary sighting of a completed swap and goes to Finalize.
//  5. An unmarked name whose filesystem already exists is a duplicate
//     delivery and is dropped (idempotency).
//  6. Anything left is a fresh directory: migrate it, then hand the
//     result to export reconciliation.
func (r *Router) Route(ctx context.Context, event Event) error {
	if !isDirectoryCreate(event.Kind) {
		r.logger.Debug("ignoring event of uninteresting kind",
			"name", event.Name, "kind", event.Kind)
		return nil
	}

	if r.filter != nil && !r.filter.MatchString(event.Name) {
		r.logger.Debug("name does not match filter",
			"name", event.Name, "filter", r.filter.String())
		return nil
	}

	if _, state := namemap.Parse(event.Name); state != namemap.StateNone {
		r.logger.Debug("ignoring own rename traffic",
			"name", event.Name, "state", state.String())
		return nil
	}

	if r.engine.PendingFinalize(event.Name) {
		return r.engine.Finalize(ctx, event.Name)
	}

	inventory, err := r.engine.storage.List(ctx)
	if err != nil {
		return err
	}
	filesystem := namemap.DirectoryToFilesystem(
		r.engine.rootDir+"/"+event.Name, r.engine.rootFs, r.engine.rootDir)
	for _, existing := range inventory {
		if existing == filesystem {
			r.logger.Debug("filesystem already exists, nothing to do",
				"filesystem", filesystem)
			return nil
		}
	}

	migrated, err := r.engine.Migrate(ctx, event.Name)
	if err != nil {
		return err
	}
	if r.onMigrated != nil {
		return r.onMigrated(ctx, migrated, append(inventory, migrated))
	}
	return nil
}

// isDirectoryCreate reports whether the event descriptor names a
// directory-creation event.
func isDirectoryCreate(kind string) bool {
	hasCreate, hasDirectory := false, false
	for _, flag := range strings.FieldsFunc(kind, func(r rune) bool {
		return r == ',' || r == '|' || r == ' '
	}) {
		switch flag {
		case "IN_CREATE":
			hasCreate = true
		case "IN_ISDIR":
			hasDirectory = true
		}
	}
	return hasCreate && hasDirectory
}
