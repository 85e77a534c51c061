// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore reads artifacts from <root>/<run_id>/artifacts/<name>.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (f *FileStore) dir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(f.root, runID, "artifacts"), nil
}

// GetArtifact implements Reader.
func (f *FileStore) GetArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	dir, err := f.dir(runID)
	if err != nil {
		return nil, err
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, clean)) //nolint:gosec // confined to the run directory above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s/%s: %w", runID, name, ErrNotFound)
	}
	return data, err
}

// ListArtifacts implements Reader. Directories are listed, not descended.
func (f *FileStore) ListArtifacts(ctx context.Context, runID string) ([]ArtifactInfo, error) {
	dir, err := f.dir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	out := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		info := ArtifactInfo{Path: e.Name(), IsDir: e.IsDir()}
		if fi, err := e.Info(); err == nil && !e.IsDir() {
			info.FileSize = fi.Size()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
