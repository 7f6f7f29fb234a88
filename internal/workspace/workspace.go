// Package workspace hands out per-invocation scratch directories.
//
// Every invocation gets its own directory under a shared root, so two events for
// objects with the same file name never touch each other's files. Everything the
// invocation writes lives inside that directory and is removed with it.
package workspace

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const dirPattern = "optimize-*"

// fallbackName is used when an object key has no usable base name.
const fallbackName = "source"

type Workspace struct {
	dir string
}

// New creates a fresh directory under root. An empty root means os.TempDir().
func New(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, dirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns a location inside the workspace for the base name of key.
// Directory components and traversal segments in key are discarded.
func (w *Workspace) Path(key string) string {
	return filepath.Join(w.dir, SafeName(key))
}

// SafeName reduces an object key to a file name that is safe to join under a
// directory, keeping its extension.
func SafeName(key string) string {
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return fallbackName
	}
	return base
}
