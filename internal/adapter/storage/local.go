// Package storage keeps uploaded inputs and produced videos on the local
// filesystem under two directories.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/faceswap/internal/domain"
)

// ErrInvalidName is returned for result names that try to leave the results directory.
var ErrInvalidName = errors.New("invalid file name")

type LocalStorage struct {
	uploadDir  string
	resultsDir string
}

var _ domain.FileStore = (*LocalStorage)(nil)

func NewLocalStorage(uploadDir, resultsDir string) (*LocalStorage, error) {
	for _, dir := range []string{uploadDir, resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &LocalStorage{uploadDir: uploadDir, resultsDir: resultsDir}, nil
}

// SaveUpload stores r under a fresh unique name that keeps the extension of
// originalName, and returns the stored file's path.
func (ls *LocalStorage) SaveUpload(ctx context.Context, r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	fullPath := filepath.Join(ls.uploadDir, uuid.NewString()+ext)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, contextReader{ctx: ctx, r: r}); err != nil {
		_ = dst.Close()
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return fullPath, nil
}

// RemoveUpload deletes a file previously returned by SaveUpload.
func (ls *LocalStorage) RemoveUpload(path string) error {
	rel, err := filepath.Rel(ls.uploadDir, path)
	if err != nil || rel == "." || rel != filepath.Base(rel) || strings.HasPrefix(rel, "..") {
		return ErrInvalidName
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}

// ResultPath resolves a result name to its path. The name must be a plain
// file name inside the results directory and the file must exist.
func (ls *LocalStorage) ResultPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", ErrInvalidName
	}

	fullPath := filepath.Join(ls.resultsDir, name)
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", fmt.Errorf("result %q: %w", name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("result %q: %w", name, fs.ErrNotExist)
	}
	return fullPath, nil
}

// RemoveOlderThan deletes uploads and results last modified before cutoff.
func (ls *LocalStorage) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	var errs []error
	for _, dir := range []string{ls.uploadDir, ls.resultsDir} {
		n, err := removeOlderThan(ctx, dir, cutoff)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func removeOlderThan(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "Failed to remove expired file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// contextReader stops a long copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
