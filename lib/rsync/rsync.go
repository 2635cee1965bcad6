// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package rsync wraps the recursive copy tool used to stage directory
// contents into a freshly created filesystem. The copy is
// attribute-preserving and delete-reconciling: the destination is made
// to mirror the source exactly, including removal of anything at the
// destination not present at the source.
//
// A failed copy is reported as a *CopyError. By protocol policy the
// caller logs it and proceeds with the swap anyway — whatever was
// copied before the failure is still staged, so this is a best-effort
// partial-copy outcome rather than a hard abort.
package rsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CopyError reports a copy-tool run that exited non-zero.
type CopyError struct {
	Source      string
	Destination string

	// ExitCode is the tool's exit status, or -1 when it failed to
	// start.
	ExitCode int

	// Stderr is the captured diagnostic output, trimmed.
	Stderr string
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("rsync %s -> %s: exit status %d (stderr: %s)",
		e.Source, e.Destination, e.ExitCode, e.Stderr)
}

type runFunc func(ctx context.Context, args ...string) error

// Copier runs mirror copies through a specific rsync binary.
type Copier struct {
	binary string
	run    runFunc
}

// New returns a Copier running the given binary (normally "rsync").
func New(binary string) *Copier {
	copier := &Copier{binary: binary}
	copier.run = copier.execRun
	return copier
}

func (c *Copier) execRun(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.binary, args...)
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		exitCode := -1
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		}
		// Source and destination are the last two arguments.
		source, destination := "", ""
		if len(args) >= 2 {
			source = args[len(args)-2]
			destination = args[len(args)-1]
		}
		return &CopyError{
			Source:      source,
			Destination: destination,
			ExitCode:    exitCode,
			Stderr:      strings.TrimSpace(stderr.String()),
		}
	}
	return nil
}

// Mirror copies the contents of srcDir into dstDir, preserving
// attributes and hard links and deleting anything at the destination
// not present at the source. The trailing slash on the source makes
// rsync copy contents rather than the directory itself.
func (c *Copier) Mirror(ctx context.Context, srcDir, dstDir string) error {
	return c.run(ctx, "-aH", "--delete", srcDir+"/", dstDir)
}
