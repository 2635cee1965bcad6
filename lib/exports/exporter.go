// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package exports

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type runFunc func(ctx context.Context, args ...string) error

// Exporter triggers the NFS server's re-export after a committed
// table change. It is invoked only when Commit actually replaced the
// file; an unchanged table never causes a re-export.
type Exporter struct {
	binary string
	run    runFunc
}

// NewExporter returns an Exporter running the given binary (normally
// "exportfs").
func NewExporter(binary string) *Exporter {
	exporter := &Exporter{binary: binary}
	exporter.run = exporter.execRun
	return exporter
}

func (e *Exporter) execRun(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, e.binary, args...)
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return fmt.Errorf("%s %s: %w (stderr: %s)",
			e.binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Refresh re-exports all directories, synchronizing the NFS server
// with the committed table.
func (e *Exporter) Refresh(ctx context.Context) error {
	return e.run(ctx, "-r")
}
