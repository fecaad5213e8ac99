package partialrestart_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/partialrestart"
)

func TestAcquireCreatesFileAndLocksIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existence-0000000000000001-00016")

	m, err := partialrestart.Acquire(path)
	require.NoError(t, err)
	defer m.Release()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestIsStaleFalseWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage-0000000000000002-00001")

	m, err := partialrestart.Acquire(path)
	require.NoError(t, err)
	defer m.Release()

	stale, err := partialrestart.IsStale(path)
	require.NoError(t, err)
	require.False(t, stale, "marker held by this live process must not be reported stale")
}

func TestIsStaleTrueAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existence-0000000000000003-00002")

	m, err := partialrestart.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, m.Release())

	// Release removes the file; a removed marker is not "stale", it is
	// simply absent. Re-create it manually without a lock to simulate a
	// leftover file from a process that crashed before ever locking it.
	require.NoError(t, os.WriteFile(path, []byte("123"), 0644))

	stale, err := partialrestart.IsStale(path)
	require.NoError(t, err)
	require.True(t, stale)
}

func TestIsStaleFalseForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existence-missing")
	stale, err := partialrestart.IsStale(path)
	require.NoError(t, err)
	require.False(t, stale)
}

func TestAcquireSharedAllowsMultipleHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage-0000000000000004-00003")

	first, err := partialrestart.AcquireShared(path)
	require.NoError(t, err)

	second, err := partialrestart.AcquireShared(path)
	require.NoError(t, err)

	require.NoError(t, first.Release())
	// second still holds the lock; the marker file must survive.
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, second.Release())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "marker should be removed once the last shared holder releases")
}
