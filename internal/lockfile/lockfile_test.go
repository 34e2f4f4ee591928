package lockfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.xlsx.lock")
	l, err := Acquire(path, time.Hour)
	require.NoError(t, err)

	_, err = Acquire(path, time.Hour)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	l2, err := Acquire(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	l, err := Acquire(path, time.Hour)
	require.NoError(t, err)
	defer l.Release()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pid":`)
}

func TestHeartbeat_RefreshesMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	l, err := Acquire(path, time.Hour)
	require.NoError(t, err)
	old := time.Now().Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	l.Heartbeat(10 * time.Millisecond)
	assert.Eventually(t, func() bool {
		fi, err := os.Stat(path)
		return err == nil && fi.ModTime().After(old.Add(time.Minute))
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Release())
}
