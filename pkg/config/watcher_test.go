package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		onChange func(*Adjustments)
	}{
		{"empty path", "", func(*Adjustments) {}},
		{"nil callback", "taskserve.yaml", nil},
		{"missing directory", filepath.Join(t.TempDir(), "absent", "taskserve.yaml"), func(*Adjustments) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWatcher(tt.path, nil, tt.onChange)
			assert.Error(t, err)
		})
	}
}

func startWatcher(t *testing.T, path string) <-chan *Adjustments {
	t.Helper()

	changes := make(chan *Adjustments, 8)
	w, err := NewWatcher(path, nil, func(adj *Adjustments) { changes <- adj })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return changes
}

func TestWatcher_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: 2\n"), 0o644))

	changes := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("threads: 7\n"), 0o644))

	// a slow write may surface the truncated file first
	deadline := time.After(2 * time.Second)
	for {
		select {
		case adj := <-changes:
			if adj.Threads == 7 {
				return
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}

func TestWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: 2\n"), 0o644))

	changes := startWatcher(t, path)

	tmp := filepath.Join(dir, "taskserve.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("threads: 5\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case adj := <-changes:
		assert.Equal(t, 5, adj.Threads)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after rename")
	}
}

func TestWatcher_InvalidFileKeepsSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: 2\n"), 0o644))

	changes := startWatcher(t, path)

	tmp := filepath.Join(dir, "taskserve.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("threads: 0\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	select {
	case adj := <-changes:
		t.Fatalf("invalid settings were delivered: %+v", adj)
	case <-time.After(100 * time.Millisecond):
	}

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("threads: 9\n"), 0o644))
	select {
	case adj := <-changes:
		t.Fatalf("unrelated file triggered a reload: %+v", adj)
	case <-time.After(100 * time.Millisecond):
	}
}
