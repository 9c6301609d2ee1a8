package agentmux

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchWorkspace(t *testing.T) {
	c, err := New(&Options{AutoStart: boolPtr(false)})
	require.NoError(t, err)

	s := c.registerSession("s1", nil, nil)
	s.workspacePath = t.TempDir()

	paths := make(chan string, 8)
	stop, err := s.WatchWorkspace(func(path string) {
		paths <- path
	})
	require.NoError(t, err)
	defer stop()

	checkpoint := filepath.Join(s.WorkspacePath(), "checkpoint.json")
	require.NoError(t, os.WriteFile(checkpoint, []byte(`{}`), 0o644))

	select {
	case path := <-paths:
		assert.Equal(t, checkpoint, path)
	case <-time.After(5 * time.Second):
		t.Fatal("workspace change not observed")
	}
}

func TestWatchWorkspaceStop(t *testing.T) {
	c, err := New(&Options{AutoStart: boolPtr(false)})
	require.NoError(t, err)

	s := c.registerSession("s1", nil, nil)
	s.workspacePath = t.TempDir()

	stop, err := s.WatchWorkspace(func(string) {})
	require.NoError(t, err)

	// Stopping twice must not panic.
	stop()
	stop()
}
