package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mkovach/fieldsync/internal/apperr"
)

// Mirror implements Store on the local filesystem copy of the
// repository. It backs offline browsing and is kept fresh by
// write-through after every successful remote put.
type Mirror struct {
	root string // absolute path to the mirror directory
}

// NewMirror creates a Mirror rooted at the given directory.
// The directory must already exist.
func NewMirror(root string) (*Mirror, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("mirror: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror: root is not a directory: %s", abs)
	}
	return &Mirror{root: abs}, nil
}

// Root returns the absolute mirror root (watched by the index watcher).
func (m *Mirror) Root() string { return m.root }

// safePath resolves a relative path against the mirror root and rejects
// any result that escapes it (directory traversal).
func (m *Mirror) safePath(rel string) (string, error) {
	if rel == "" {
		return m.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("mirror: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(m.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("mirror: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, m.root+string(os.PathSeparator)) && abs != m.root {
		return "", fmt.Errorf("mirror: path escapes mirror root: %s", rel)
	}
	return abs, nil
}

// Get reads a mirrored document; the token is its content checksum.
func (m *Mirror) Get(_ context.Context, path string) (*Document, error) {
	abs, err := m.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("mirror: read %s: %w", path, err)
	}
	return &Document{Content: data, Token: Checksum(data)}, nil
}

// Put writes a document with compare-and-swap on the checksum token.
func (m *Mirror) Put(_ context.Context, path string, content []byte, token, _ string) (string, error) {
	abs, err := m.safePath(path)
	if err != nil {
		return "", err
	}
	existing, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if token == "" {
			return "", apperr.ErrAlreadyExists
		}
		if token != Checksum(existing) {
			return "", apperr.ErrVersionConflict
		}
	case errors.Is(err, os.ErrNotExist):
		if token != "" {
			return "", apperr.ErrNotFound
		}
	default:
		return "", fmt.Errorf("mirror: read %s: %w", path, err)
	}
	if err := m.writeAtomic(abs, content); err != nil {
		return "", err
	}
	return Checksum(content), nil
}

// Write unconditionally replaces a mirrored document (write-through
// after a successful remote put, and bulk session fetch).
func (m *Mirror) Write(path string, content []byte) error {
	abs, err := m.safePath(path)
	if err != nil {
		return err
	}
	return m.writeAtomic(abs, content)
}

// writeAtomic writes content via tmp file → fsync → rename.
func (m *Mirror) writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mirror: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fieldsync-tmp-*")
	if err != nil {
		return fmt.Errorf("mirror: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("mirror: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("mirror: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mirror: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("mirror: rename: %w", err)
	}
	success = true
	return nil
}

// List returns the sorted file names directly inside dir.
func (m *Mirror) List(_ context.Context, dir string) ([]string, error) {
	base, err := m.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("mirror: list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Walk returns metadata for every file under dir (relative to root),
// used by the index to detect changed site notes cheaply.
func (m *Mirror) Walk(dir string) ([]FileMeta, error) {
	base, err := m.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []FileMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(m.root, p)
		out = append(out, FileMeta{
			Path:      filepath.ToSlash(rel),
			Token:     Checksum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: walk: %w", err)
	}
	return out, nil
}
