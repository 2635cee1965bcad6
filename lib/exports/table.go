// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package exports maintains the NFS export table for migrated
// filesystems. The table file is line-oriented: one export point and
// client specification per line, with #-prefixed comments, blank
// lines, and anything else passed through byte-for-byte.
//
// The table is an explicit resource handle: load once per invocation,
// mutate in memory, commit once. Commit writes through a temporary
// sibling file and renames it over the original only when the content
// actually changed, so an interrupted commit leaves the original file
// untouched and an unchanged table causes no rewrite and no re-export.
package exports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// line is one line of the loaded file. Lines that parsed as export
// entries carry their path; everything else is opaque and preserved
// verbatim at its original position.
type line struct {
	text string
	path string
}

// entry is the current in-memory value for one export path.
type entry struct {
	clients string

	// lineIndex is the position of the entry's original line, or -1
	// for entries added after load.
	lineIndex int

	deleted bool
	changed bool
}

// Table is the in-memory snapshot of one export file.
type Table struct {
	path  string
	lines []line

	entries map[string]*entry

	// appended records insertion order for entries added after load,
	// so commits are deterministic.
	appended []string
}

// Load reads and parses the export file at path. A missing file loads
// as an empty table; committing it later creates the file only if
// entries were added.
func Load(path string) (*Table, error) {
	table := &Table{
		path:    path,
		entries: make(map[string]*entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, fmt.Errorf("reading export table %s: %w", path, err)
	}

	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return table, nil
	}
	for _, text := range strings.Split(content, "\n") {
		exportPath, clients, ok := parseEntry(text)
		if !ok {
			table.lines = append(table.lines, line{text: text})
			continue
		}
		if _, duplicate := table.entries[exportPath]; duplicate {
			// A duplicate export point is malformed input; keep the
			// later line verbatim and manage only the first.
			table.lines = append(table.lines, line{text: text})
			continue
		}
		table.entries[exportPath] = &entry{
			clients:   clients,
			lineIndex: len(table.lines),
		}
		table.lines = append(table.lines, line{text: text, path: exportPath})
	}
	return table, nil
}

// parseEntry splits one line into export path and client
// specification. Comments, blank lines, and lines without both fields
// do not parse.
func parseEntry(text string) (exportPath, clients string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	fields := strings.SplitN(trimmed, "\t", 2)
	if len(fields) < 2 {
		fields = strings.SplitN(trimmed, " ", 2)
	}
	if len(fields) < 2 {
		return "", "", false
	}
	clients = strings.TrimSpace(fields[1])
	if clients == "" {
		return "", "", false
	}
	return fields[0], clients, true
}

// Get returns the client specification for an export path.
func (t *Table) Get(exportPath string) (clients string, ok bool) {
	e, ok := t.entries[exportPath]
	if !ok || e.deleted {
		return "", false
	}
	return e.clients, true
}

// Paths returns all live export paths, original-file order first and
// then appended entries in insertion order.
func (t *Table) Paths() []string {
	var paths []string
	for _, l := range t.lines {
		if l.path == "" {
			continue
		}
		if e := t.entries[l.path]; e != nil && !e.deleted {
			paths = append(paths, l.path)
		}
	}
	for _, p := range t.appended {
		if e := t.entries[p]; e != nil && !e.deleted && e.lineIndex == -1 {
			paths = append(paths, p)
		}
	}
	return paths
}

// Update sets the client specification for an export path, adding the
// entry if absent. In-memory only; nothing reaches disk until Commit.
func (t *Table) Update(exportPath, clients string) {
	if e, ok := t.entries[exportPath]; ok {
		if e.deleted {
			e.deleted = false
			e.changed = true
		}
		if e.clients != clients {
			e.clients = clients
			e.changed = true
		}
		return
	}
	t.entries[exportPath] = &entry{
		clients:   clients,
		lineIndex: -1,
		changed:   true,
	}
	t.appended = append(t.appended, exportPath)
}

// Delete removes an export path. In-memory only. Deleting an absent
// path is a no-op.
func (t *Table) Delete(exportPath string) {
	if e, ok := t.entries[exportPath]; ok && !e.deleted {
		e.deleted = true
		e.changed = true
	}
}

// Commit writes the table back to its file if anything changed.
// Unchanged entries keep their original text and position, changed
// entries are rewritten in place, new entries are appended after the
// original content, and deleted entries are omitted. The write goes
// through a temporary sibling file replaced atomically over the
// original; if the content is unchanged the temporary file is
// discarded and changed is false.
func (t *Table) Commit() (changed bool, err error) {
	var rendered []string
	for _, l := range t.lines {
		if l.path == "" {
			rendered = append(rendered, l.text)
			continue
		}
		e := t.entries[l.path]
		switch {
		case e.deleted:
		case e.changed:
			rendered = append(rendered, formatEntry(l.path, e.clients))
		default:
			rendered = append(rendered, l.text)
		}
	}
	for _, p := range t.appended {
		if e := t.entries[p]; !e.deleted && e.lineIndex == -1 {
			rendered = append(rendered, formatEntry(p, e.clients))
		}
	}

	content := strings.Join(rendered, "\n")
	if content != "" {
		content += "\n"
	}

	original, err := os.ReadFile(t.path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("re-reading export table %s: %w", t.path, err)
	}
	if string(original) == content {
		return false, nil
	}

	directory := filepath.Dir(t.path)
	temporary, err := os.CreateTemp(directory, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return false, fmt.Errorf("creating temporary export table in %s: %w", directory, err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.WriteString(content); err != nil {
		temporary.Close()
		return false, fmt.Errorf("writing temporary export table: %w", err)
	}
	if err := temporary.Chmod(0644); err != nil {
		temporary.Close()
		return false, fmt.Errorf("setting export table mode: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return false, fmt.Errorf("closing temporary export table: %w", err)
	}
	if err := os.Rename(temporaryPath, t.path); err != nil {
		return false, fmt.Errorf("replacing export table %s: %w", t.path, err)
	}
	return true, nil
}

func formatEntry(exportPath, clients string) string {
	return exportPath + "\t" + clients
}
