package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher writes an initial config and runs a watcher on it until the
// test ends.
func startWatcher(t *testing.T, debounce time.Duration, onChange func(context.Context) error) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "toolgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":8180\"\n"), 0o644))

	w := NewWatcher(path, onChange)
	w.SetDebounce(debounce)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})

	// fsnotify needs a moment before the directory watch is live.
	time.Sleep(100 * time.Millisecond)
	return path
}

func TestWatcher_DirectWrite(t *testing.T) {
	var calls atomic.Int32
	path := startWatcher(t, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":9000\"\n"), 0o644))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_AtomicSave(t *testing.T) {
	var calls atomic.Int32
	path := startWatcher(t, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("server:\n  listen: \":9001\"\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MultipleWritesDebounced(t *testing.T) {
	var calls atomic.Int32
	path := startWatcher(t, 150*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	var calls atomic.Int32
	path := startWatcher(t, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o644))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_KeepsWatchingAfterFailedReload(t *testing.T) {
	var calls atomic.Int32
	path := startWatcher(t, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("invalid config")
	})

	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "toolgate.yaml"), func(context.Context) error { return nil })
	err := w.Watch(context.Background())
	assert.Error(t, err)
}
