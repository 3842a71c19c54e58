package dirtree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsExternalChanges(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("sub/existing.txt", []byte("x")))
	w, err := tree.Watch()
	require.NoError(t, err)

	changes := make(chan string, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(path string) { changes <- path })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(tree.Base(), "sub", "existing.txt"), []byte("y"), 0o644))
	require.NoError(t, tree.SetFile("new.txt", []byte("n")))

	want := map[string]bool{"sub/existing.txt": false, "new.txt": false}
	timeout := time.After(5 * time.Second)
	for !want["sub/existing.txt"] || !want["new.txt"] {
		select {
		case p := <-changes:
			assert.NotContains(t, p, ".mimic-tmp-", "temp files must be filtered")
			if _, ok := want[p]; ok {
				want[p] = true
			}
		case <-timeout:
			t.Fatalf("timed out waiting for changes, got %v", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_Close(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	w, err := tree.Watch()
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
