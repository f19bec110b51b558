package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// wikiLink matches [[target]] and [[target|label]] references.
var wikiLink = regexp.MustCompile(`^\[\[([^\]|]+)(?:\|[^\]]*)?\]\]$`)

// GoToLink resolves a cross-reference and returns the content of the file it
// points at. The reference may be a wiki link ([[entities/alice]] or
// [[entities/alice.md]], optionally with a |label) resolved relative to the
// store root, or a plain path.
func (s *Store) GoToLink(ref string) (string, error) {
	target := strings.TrimSpace(ref)
	if m := wikiLink.FindStringSubmatch(target); m != nil {
		target = strings.TrimSpace(m[1])
	}
	if target == "" {
		return "", fmt.Errorf("empty link reference: %q", ref)
	}

	if content, err := s.ReadFile(target); err == nil {
		return content, nil
	}
	// Obsidian links usually omit the extension.
	if !strings.HasSuffix(target, ".md") {
		if content, err := s.ReadFile(target + ".md"); err == nil {
			return content, nil
		}
	}
	return "", fmt.Errorf("link target not found: %s", ref)
}
