package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/store"
)

func TestWatcher_FiresOnceAfterQuietPeriodFollowingWrite(t *testing.T) {
	root := t.TempDir()
	_, err := store.Open(root)
	require.NoError(t, err)

	var fired int32
	w, err := New(root, 60*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	layout := store.NewLayout(root)
	sessionDir := filepath.Join(layout.SessionsDir(), "s1")
	require.NoError(t, os.MkdirAll(sessionDir, 0755))

	// Allow the watcher's Create handler to pick up the new directory
	// before writing into it.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "chunks.jsonl"), []byte(`{}`+"\n"), 0644))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	_, err := store.Open(root)
	require.NoError(t, err)

	w, err := New(root, 50*time.Millisecond, func() {})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
