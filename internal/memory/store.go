// Package memory implements the markdown memory store the agent reads and
// writes: an Obsidian-style vault of .md files with [[wiki-link]]
// cross-references. All operations resolve against an explicit root — there
// is no working-directory coupling — and the store registers itself as the
// sandbox module "memory" so snippets call these operations by name.
package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/michaelbrown/recall/internal/sandbox"
)

// Size limits for a memory store. Oversized writes fail rather than letting a
// runaway agent flood the disk.
type Limits struct {
	FileSize  int64 // max bytes per file
	DirSize   int64 // max bytes per directory subtree
	StoreSize int64 // max bytes for the whole store
}

// DefaultLimits returns the standard limits: 1 MiB per file, 10 MiB per
// directory, 100 MiB per store.
func DefaultLimits() Limits {
	return Limits{
		FileSize:  1 << 20,
		DirSize:   10 << 20,
		StoreSize: 100 << 20,
	}
}

// Store is a memory vault rooted at one directory.
type Store struct {
	root   string
	guard  *sandbox.Guard
	limits Limits
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLimits(dir, DefaultLimits())
}

// NewStoreWithLimits is NewStore with explicit size limits.
func NewStoreWithLimits(dir string, limits Limits) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("memory root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving memory root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving memory root: %w", err)
	}
	guard, err := sandbox.NewGuard(resolved)
	if err != nil {
		return nil, fmt.Errorf("guarding memory root: %w", err)
	}
	return &Store{root: resolved, guard: guard, limits: limits}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a caller path into the store. Relative paths are joined to the
// root; the result is canonicalized through the sandbox guard (symlinks and
// relative components resolved) so a link planted inside the vault cannot
// reach outside it.
func (s *Store) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}
	resolved, err := s.guard.Check(abs)
	if err != nil {
		return "", fmt.Errorf("path is outside the memory root: %s", path)
	}
	return resolved, nil
}

// Limits returns the store's write limits.
func (s *Store) Limits() Limits {
	return s.limits
}

const seedUserFile = `# User Information
- user_name:
- location:

## Relationships

`

// Seed lays down the vault skeleton (user.md plus an entities/ directory) if
// the store has never been used. Existing content is left untouched.
func (s *Store) Seed() error {
	userPath := filepath.Join(s.root, "user.md")
	if _, err := os.Stat(userPath); err == nil {
		return nil
	}
	if err := os.WriteFile(userPath, []byte(seedUserFile), 0o644); err != nil {
		return fmt.Errorf("seeding user.md: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(s.root, "entities"), 0o755); err != nil {
		return fmt.Errorf("seeding entities dir: %w", err)
	}
	return nil
}
