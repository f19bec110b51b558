package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard confines filesystem access to one directory subtree. A nil or
// unrestricted Guard allows everything (trusted-caller mode).
type Guard struct {
	root string // canonical absolute root; empty = unrestricted
}

// NewGuard builds a guard for the given directory. The directory must exist:
// a guard over a typo'd path would otherwise silently deny everything.
func NewGuard(root string) (*Guard, error) {
	if root == "" {
		return &Guard{}, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving allowed path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving allowed path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("allowed path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("allowed path is not a directory: %s", root)
	}
	return &Guard{root: resolved}, nil
}

// Restricted reports whether the guard confines access at all.
func (g *Guard) Restricted() bool {
	return g != nil && g.root != ""
}

// Check canonicalizes path and returns it if it falls inside the allowed
// subtree. Symlinks and relative components are resolved first so a snippet
// cannot escape via "../" or a planted link.
func (g *Guard) Check(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	resolved, err := canonicalize(abs)
	if err != nil {
		return "", err
	}
	if !g.Restricted() {
		return resolved, nil
	}
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("permission denied: %s is outside the allowed path %s", path, g.root)
	}
	return resolved, nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of an
// absolute path and rejoins the nonexistent remainder, so targets that don't
// exist yet (files about to be created) still canonicalize correctly.
func canonicalize(abs string) (string, error) {
	dir := abs
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolving path: %w", err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
	}
}
