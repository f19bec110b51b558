package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListFiles renders the store as a tree, directories first, hidden entries
// skipped. The root line is always "./" so an empty store still renders.
func (s *Store) ListFiles() (string, error) {
	var b strings.Builder
	b.WriteString("./\n")
	if err := writeTree(&b, s.root, ""); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeTree(b *strings.Builder, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	visible := entries[:0]
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			visible = append(visible, e)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return visible[i].Name() < visible[j].Name()
	})

	for i, e := range visible {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(visible)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		if e.IsDir() {
			fmt.Fprintf(b, "%s%s%s/\n", prefix, connector, e.Name())
			if err := writeTree(b, filepath.Join(dir, e.Name()), childPrefix); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(b, "%s%s%s\n", prefix, connector, e.Name())
		}
	}
	return nil
}
