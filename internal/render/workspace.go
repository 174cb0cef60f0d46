package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is a private scratch directory for one render. Close removes it
// with everything inside.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under root (the system temp
// directory when root is empty).
func NewWorkspace(root string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "card-render-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// UniqueName returns a random hex name with the given suffix.
func (w *Workspace) UniqueName(suffix string) string {
	return randomHex() + suffix
}

// WriteFile stores data under name and returns its full path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}

// WithWorkspace runs fn inside a new workspace and always removes it.
func WithWorkspace(root string, fn func(ws *Workspace) error) error {
	ws, err := NewWorkspace(root)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ws)
}

func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
