package memory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CreateFile writes content to path, creating parent directories and
// overwriting any existing file.
func (s *Store) CreateFile(path, content string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := s.checkWriteBudget(abs, int64(len(content))); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// CreateDir creates a directory (and parents). Idempotent.
func (s *Store) CreateDir(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// ReadFile returns the content of a file in the store.
func (s *Store) ReadFile(path string) (string, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("file does not exist: %s", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// UpdateFile replaces the first occurrence of old with new in the file at
// path. It fails when the file is missing or old does not occur.
func (s *Store) UpdateFile(path, old, new string) error {
	content, err := s.ReadFile(path)
	if err != nil {
		return err
	}
	idx := strings.Index(content, old)
	if idx < 0 {
		return fmt.Errorf("content to replace not found in %s", path)
	}
	updated := content[:idx] + new + content[idx+len(old):]
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := s.checkWriteBudget(abs, int64(len(updated))); err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// DeleteFile removes a file. It reports false (not an error) when the file
// does not exist, so agents can delete defensively.
func (s *Store) DeleteFile(path string) (bool, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, nil
	}
	if info.IsDir() {
		return false, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if err := os.Remove(abs); err != nil {
		return false, fmt.Errorf("deleting file: %w", err)
	}
	return true, nil
}

// FileExists reports whether path names a regular file in the store.
func (s *Store) FileExists(path string) bool {
	abs, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path names a directory in the store.
func (s *Store) DirExists(path string) bool {
	abs, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

// Size returns the size of a file in bytes, or the recursive sum for a
// directory. Unlike the other readers it returns an error for a missing
// path.
func (s *Store) Size(path string) (int64, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("path does not exist: %s", path)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	return dirSize(abs)
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sizing directory: %w", err)
	}
	return total, nil
}

// checkWriteBudget enforces the store's size limits for a write of n bytes
// at abs. The existing file's size is credited back since writes replace.
func (s *Store) checkWriteBudget(abs string, n int64) error {
	if s.limits.FileSize > 0 && n > s.limits.FileSize {
		return fmt.Errorf("file size %d exceeds limit %d", n, s.limits.FileSize)
	}
	var existing int64
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		existing = info.Size()
	}
	if s.limits.DirSize > 0 {
		if used, err := dirSize(filepath.Dir(abs)); err == nil && used-existing+n > s.limits.DirSize {
			return fmt.Errorf("directory size would exceed limit %d", s.limits.DirSize)
		}
	}
	if s.limits.StoreSize > 0 {
		if used, err := dirSize(s.root); err == nil && used-existing+n > s.limits.StoreSize {
			return fmt.Errorf("memory store size would exceed limit %d", s.limits.StoreSize)
		}
	}
	return nil
}
