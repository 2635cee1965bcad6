// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package zfs provides typed access to the zfs CLI for the three
// operations the migration protocol needs: listing filesystems,
// creating a filesystem, and renaming one. Each call is a blocking
// external command; a non-zero exit is reported as a *CommandError
// carrying the exit code and captured stderr, and is always fatal to
// the current event — there are no retries.
//
// The inventory is never cached: every invocation re-lists so it
// observes the current, authoritative filesystem state rather than
// drifting from changes made outside this tool.
package zfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError reports a storage-engine command that exited non-zero.
type CommandError struct {
	// Args are the zfs arguments, without the binary name.
	Args []string

	// ExitCode is the command's exit status, or -1 when the command
	// failed to start.
	ExitCode int

	// Stderr is the captured diagnostic output, trimmed.
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("zfs %s: exit status %d (stderr: %s)",
		strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

// runFunc executes one zfs command and returns its stdout. Injected
// in tests; production uses the exec-backed default.
type runFunc func(ctx context.Context, args ...string) (string, error)

// Engine runs storage-engine commands through a specific zfs binary.
type Engine struct {
	binary string
	run    runFunc
}

// New returns an Engine running the given binary (normally "zfs",
// resolved via PATH, or an absolute path from configuration).
func New(binary string) *Engine {
	engine := &Engine{binary: binary}
	engine.run = engine.execRun
	return engine
}

// execRun executes the zfs binary, capturing stdout and stderr
// separately so diagnostics can be attached to the error.
func (e *Engine) execRun(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, e.binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		exitCode := -1
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		}
		return "", &CommandError{
			Args:     args,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.String(), nil
}

// List enumerates all filesystem names known to the storage engine,
// one per element, in the engine's own order.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	output, err := e.run(ctx, "list", "-H", "-o", "name")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Create creates the named filesystem. The engine mounts it at its
// inherited mountpoint as a side effect.
func (e *Engine) Create(ctx context.Context, name string) error {
	_, err := e.run(ctx, "create", name)
	return err
}

// Rename renames a filesystem. The engine remounts it at the new
// name's mountpoint as a side effect, which is what the migration
// protocol relies on to claim the vacated directory path.
func (e *Engine) Rename(ctx context.Context, oldName, newName string) error {
	_, err := e.run(ctx, "rename", oldName, newName)
	return err
}
