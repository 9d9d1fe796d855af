package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWorkspaceManagerRealFileSystem(t *testing.T) {
	root := t.TempDir()
	manager := NewWorkspaceManager(zaptest.NewLogger(t), root, nil)

	ws, err := manager.Acquire()
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(ws.Dir()))
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir()), workspacePrefix))

	info, err := os.Stat(ws.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(DirPermission), info.Mode().Perm())

	path, err := ws.WriteFile("main.py", []byte("print(1)"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(data))

	manager.Release(ws)
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspaceManagerUniqueness(t *testing.T) {
	root := t.TempDir()
	manager := NewWorkspaceManager(zaptest.NewLogger(t), root, nil)

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		ws, err := manager.Acquire()
		require.NoError(t, err)
		_, dup := seen[ws.Dir()]
		require.False(t, dup, "duplicate workspace %s", ws.Dir())
		seen[ws.Dir()] = struct{}{}
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestWorkspaceManagerDefaultRoot(t *testing.T) {
	manager := NewWorkspaceManager(zaptest.NewLogger(t), "", nil)
	assert.Equal(t, os.TempDir(), manager.Root())
}

func TestWorkspaceWriteFileRejectsPaths(t *testing.T) {
	fs := &MockFileSystem{}
	manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)
	ws, err := manager.Acquire()
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape.py", "dir/main.py", "/etc/passwd"} {
		t.Run(name, func(t *testing.T) {
			_, err := ws.WriteFile(name, []byte("x"))
			require.ErrorIs(t, err, ErrInvalidSource)
		})
	}
	assert.Empty(t, fs.written)
}

func TestWorkspaceManagerWith(t *testing.T) {
	t.Run("ReleasesOnSuccess", func(t *testing.T) {
		fs := &MockFileSystem{}
		manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)

		var dir string
		err := manager.With(func(ws *Workspace) error {
			dir = ws.Dir()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{dir}, fs.removed)
	})

	t.Run("ReleasesOnError", func(t *testing.T) {
		fs := &MockFileSystem{}
		manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)
		boom := errors.New("boom")

		err := manager.With(func(*Workspace) error { return boom })
		require.ErrorIs(t, err, boom)
		assert.Len(t, fs.removed, 1)
	})

	t.Run("ReleasesOnPanic", func(t *testing.T) {
		fs := &MockFileSystem{}
		manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)

		assert.Panics(t, func() {
			_ = manager.With(func(*Workspace) error { panic("backend bug") })
		})
		assert.Len(t, fs.removed, 1)
	})

	t.Run("CleanupFailureIsSwallowed", func(t *testing.T) {
		fs := &MockFileSystem{removeAllErr: errors.New("busy")}
		manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)

		err := manager.With(func(*Workspace) error { return nil })
		require.NoError(t, err)
		assert.Len(t, fs.removed, 1)
	})

	t.Run("AcquireFailure", func(t *testing.T) {
		fs := &MockFileSystem{mkdirErr: errors.New("no space")}
		manager := NewWorkspaceManager(zaptest.NewLogger(t), testRoot, fs)

		called := false
		err := manager.With(func(*Workspace) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, ErrIOFailure)
		assert.False(t, called)
		assert.Empty(t, fs.removed)
	})
}
