package tools

import (
	"os"
	"path/filepath"
	"strings"
)

// accessDenied is the uniform message for paths outside the allow-list.
const accessDenied = "Access denied"

// PathGuard enforces the filesystem tool allow-list.
type PathGuard struct {
	roots []string
}

// NewPathGuard resolves and cleans the allowed roots. ~ expands to the
// user's home directory.
func NewPathGuard(roots []string) *PathGuard {
	g := &PathGuard{}
	for _, r := range roots {
		if r == "" {
			continue
		}
		if strings.HasPrefix(r, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				r = filepath.Join(home, strings.TrimPrefix(r, "~"))
			}
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		g.roots = append(g.roots, filepath.Clean(abs))
	}
	return g
}

// Resolve expands and cleans the path and checks it against the allow-list.
// The returned ok is false for anything outside the roots, including
// traversal attempts.
func (g *PathGuard) Resolve(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	abs = filepath.Clean(abs)

	for _, root := range g.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, true
		}
	}
	return "", false
}
