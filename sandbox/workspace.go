package sandbox

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const workspacePrefix = "codejudge-exec-"

// Workspace is the ephemeral directory owned by one in-flight execution.
type Workspace struct {
	dir string
	fs  FileSystem
}

// Dir returns the absolute path of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// WriteFile writes a file directly under the workspace and returns its path.
// Names containing path separators are rejected.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", invalidSource("invalid file name %q", name)
	}
	path := filepath.Join(w.dir, name)
	if err := w.fs.WriteFile(path, data, FilePermission); err != nil {
		return "", ioFailure("write "+name, err)
	}
	return path, nil
}

// WorkspaceManager creates and destroys workspaces under a root directory.
type WorkspaceManager struct {
	logger *zap.Logger
	root   string
	fs     FileSystem
}

// NewWorkspaceManager creates a manager rooted at root (the OS temp
// directory when empty).
func NewWorkspaceManager(logger *zap.Logger, root string, fs FileSystem) *WorkspaceManager {
	if root == "" {
		root = os.TempDir()
	}
	if fs == nil {
		fs = RealFileSystem{}
	}
	return &WorkspaceManager{logger: logger, root: root, fs: fs}
}

// Root returns the directory workspaces are created under.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Acquire creates a fresh, uniquely named workspace.
func (m *WorkspaceManager) Acquire() (*Workspace, error) {
	dir := filepath.Join(m.root, workspacePrefix+uuid.NewString())
	if err := m.fs.Mkdir(dir, DirPermission); err != nil {
		return nil, ioFailure("create workspace", err)
	}
	return &Workspace{dir: dir, fs: m.fs}, nil
}

// Release removes the workspace tree. Failures are logged and swallowed.
func (m *WorkspaceManager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := m.fs.RemoveAll(ws.dir); err != nil {
		m.logger.Warn("failed to remove workspace", zap.String("path", ws.dir), zap.Error(err))
	}
}

// With runs fn inside a new workspace and releases it on every exit path,
// including panics.
func (m *WorkspaceManager) With(fn func(ws *Workspace) error) error {
	ws, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(ws)

	return fn(ws)
}
