package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Release removes the workspace and everything in it. Calling it again, or on a
// directory somebody already removed, is a no-op.
func (w *Workspace) Release() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %q: %w", w.dir, err)
	}
	return nil
}

// Remove deletes a single file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}
