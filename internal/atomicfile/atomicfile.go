// Package atomicfile centralizes the temp-file-plus-rename discipline used
// by every durable JSON store in the control plane (§9 Design Notes:
// "File-scoped JSON I/O scattered across modules"). Readers of a file
// written this way never observe a partially-written snapshot: a writer
// renders the full document to a temp file in the same directory, fsyncs
// it, then renames it over the target path, which is atomic on POSIX
// filesystems.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON atomically writes v as indented JSON to path. It creates the
// parent directory if needed and never leaves a partially-written file at
// path: writers either succeed completely or leave the previous content
// untouched.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicfile: marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	return Write(path, data)
}

// Write atomically writes data to path using the temp-file-plus-rename
// discipline. The temp file is created in the same directory as path so the
// final rename is guaranteed to be on the same filesystem.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	// Best-effort cleanup; if the rename below succeeds this is a no-op
	// because the file no longer exists at tmpPath.
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: write temp %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: sync temp %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile: close temp %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("atomicfile: chmod temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicfile: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals the JSON document at path into v. Callers
// that need stale-tolerant reads of a file owned by another process (§5
// Shared-resource policy) should treat os.IsNotExist(err) as "no data yet"
// rather than an error.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("atomicfile: unmarshal %s: %w", path, err)
	}
	return nil
}
