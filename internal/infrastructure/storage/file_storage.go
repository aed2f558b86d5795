package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"go.uber.org/zap"
)

// LocalFileStorage writes export files under a single base directory.
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates storage rooted at baseDir
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{baseDir: baseDir, logger: logger}
}

// Save writes content to rel and returns the full path. The file is
// written next to its target and renamed into place, so a reader never
// sees a partial export.
func (s *LocalFileStorage) Save(ctx context.Context, rel string, content []byte) (string, error) {
	target, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Failed to create export directory", zap.String("dir", dir), zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := writeAtomic(dir, target, content); err != nil {
		s.logger.Error("Failed to write export", zap.String("path", target), zap.Error(err))
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}

	s.logger.Debug("Export written", zap.String("path", target), zap.Int("bytes", len(content)))
	return target, nil
}

// resolve joins rel onto the base directory and rejects anything that
// lands outside it.
func (s *LocalFileStorage) resolve(rel string) (string, error) {
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	target := filepath.Join(base, rel)
	if target == base || !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", rel)
	}
	return target, nil
}

func writeAtomic(dir, target string, content []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}

	if _, err := tmp.Write(content); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, target); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

var _ port.FileStorage = (*LocalFileStorage)(nil)
