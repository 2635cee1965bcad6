// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package namemap

import "strings"

// ownedMarker is the base suffix identifying a name as tool-owned.
// Every transient name the migration protocol creates ends in it, so
// the event router can recognize its own rename traffic and never
// treat it as a fresh directory.
const ownedMarker = ".dyncreate"

// State is the migration state a name encodes through its marker
// suffix. Only transient states are representable — a name with no
// marker is either unmigrated or fully migrated, which the caller
// distinguishes by consulting the filesystem inventory.
type State int

const (
	// StateNone means the name carries no marker suffix.
	StateNone State = iota

	// StateStaging tags the filesystem and directory that hold the
	// mid-copy contents before the swap.
	StateStaging

	// StatePendingDelete tags the vacated original directory, retained
	// after the swap until a second creation event finalizes it.
	StatePendingDelete

	// StateKeep tags a vacated original that an operator has marked
	// for preservation. Nothing in this tool creates keep names; the
	// finalize check is their only consumer.
	StateKeep
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStaging:
		return "staging"
	case StatePendingDelete:
		return "pending-delete"
	case StateKeep:
		return "keep"
	}
	return "unknown"
}

// stateMarkers maps each transient state to its full suffix. Ordered
// so Parse checks the longest-lived markers first; the suffixes are
// mutually exclusive so order does not affect the result.
var stateMarkers = []struct {
	state  State
	suffix string
}{
	{StateStaging, ".staging" + ownedMarker},
	{StatePendingDelete, ".delete" + ownedMarker},
	{StateKeep, ".keep" + ownedMarker},
}

// Parse splits a name (a directory path, a bare directory name, or a
// filesystem name) into its base and the state its suffix encodes.
// This is the single recognition point for marker suffixes.
func Parse(name string) (base string, state State) {
	for _, marker := range stateMarkers {
		if strings.HasSuffix(name, marker.suffix) {
			return strings.TrimSuffix(name, marker.suffix), marker.state
		}
	}
	// A bare owned marker with no state tag should never occur, but a
	// name carrying it is still tool-owned and must not migrate.
	if strings.HasSuffix(name, ownedMarker) {
		return strings.TrimSuffix(name, ownedMarker), StateStaging
	}
	return name, StateNone
}

// StagingName returns the staging-tagged form of base.
func StagingName(base string) string {
	return base + ".staging" + ownedMarker
}

// DeleteName returns the pending-delete-tagged form of base.
func DeleteName(base string) string {
	return base + ".delete" + ownedMarker
}

// KeepName returns the keep-tagged form of base.
func KeepName(base string) string {
	return base + ".keep" + ownedMarker
}
