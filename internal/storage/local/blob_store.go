// Package local archives generated artifacts under a directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Config captures the parameters for the local archive.
type Config struct {
	// BaseDir is the root directory for archived artifacts.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore copies artifacts into BaseDir on an afero filesystem.
type BlobStore struct {
	fs      afero.Fs
	baseDir string
}

// New prepares BaseDir on fs and verifies it is writable. A nil fs uses the
// operating system filesystem.
func New(fs afero.Fs, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	baseDir := filepath.Clean(cfg.BaseDir)

	info, err := fs.Stat(baseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := fs.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", baseDir)
	}

	probe, err := afero.TempFile(fs, baseDir, ".writable-")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := fs.Remove(name); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}
	return &BlobStore{fs: fs, baseDir: baseDir}, nil
}

// PutObject streams r to BaseDir/path and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	fullPath := filepath.Join(s.baseDir, path)
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the archive directory", path)
	}
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	f, err := s.fs.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fullPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", fullPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", fullPath, err)
	}
	return "file://" + fullPath, nil
}
