package shm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/shm"
)

func TestAllocatePublishAcquireRelease(t *testing.T) {
	c := shm.NewEventDataControl(4, 2, 4, true)

	idx, err := c.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, c.PublishSlot(idx, c.NextTimestamp()))
	require.EqualValues(t, 0, c.OutstandingAllocations())

	logIdx, err := c.LogSet.Register()
	require.NoError(t, err)

	acquired, err := c.AcquireNewest(logIdx, 0, 1)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	require.Equal(t, idx, acquired[0].Index)

	require.NoError(t, c.ReleaseSlot(logIdx, idx))
}

func TestAllocatePicksOldestTimestamp(t *testing.T) {
	// Scenario S4: three published slots with timestamps {10, 20, 30} and
	// refcount 0 — the next allocate returns the slot with timestamp 10.
	c := shm.NewEventDataControl(3, 1, 4, true)

	indices := make([]int, 3)
	for i := range indices {
		idx, err := c.AllocateSlot()
		require.NoError(t, err)
		indices[i] = idx
	}
	require.NoError(t, c.PublishSlot(indices[0], 30))
	require.NoError(t, c.PublishSlot(indices[1], 10))
	require.NoError(t, c.PublishSlot(indices[2], 20))

	next, err := c.AllocateSlot()
	require.NoError(t, err)
	require.Equal(t, indices[1], next)
}

func TestAllocationFailsWhenExhaustedAndEnforced(t *testing.T) {
	c := shm.NewEventDataControl(1, 1, 4, true)
	idx, err := c.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, c.PublishSlot(idx, c.NextTimestamp()))

	logIdx, err := c.LogSet.Register()
	require.NoError(t, err)
	_, err = c.AcquireNewest(logIdx, 0, 1)
	require.NoError(t, err)

	_, err = c.AllocateSlot()
	require.Error(t, err)
}

func TestMaxConcurrentAllocationsEnforced(t *testing.T) {
	c := shm.NewEventDataControl(4, 1, 1, true)
	_, err := c.AllocateSlot()
	require.NoError(t, err)

	_, err = c.AllocateSlot()
	require.Error(t, err)
}

func TestRollbackAfterCrashReleasesCompletedAcquire(t *testing.T) {
	// Scenario S5: a consumer acquires a reference to slot with timestamp
	// 30, writes begin=true,end=true, then terminates. Recovery decrements
	// the refcount, clears both bits; the slot is re-allocatable.
	c := shm.NewEventDataControl(2, 1, 4, true)
	idx, err := c.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, c.PublishSlot(idx, 30))

	logIdx, err := c.LogSet.Register()
	require.NoError(t, err)
	acquired, err := c.AcquireNewest(logIdx, 0, 1)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	require.EqualValues(t, 1, c.Slots[idx].GetReferenceCount())

	// Simulate crash: subscriber never released. Recovery agent rolls back.
	c.RollbackTransactions(c.LogSet.Log(logIdx))
	require.EqualValues(t, 0, c.Slots[idx].GetReferenceCount())

	next, err := c.AllocateSlot()
	require.NoError(t, err)
	require.Equal(t, idx, next)
}

func TestRollbackLeavesIncompleteAcquireUnchanged(t *testing.T) {
	c := shm.NewEventDataControl(2, 1, 4, true)
	idx, err := c.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, c.PublishSlot(idx, 5))

	logIdx, err := c.LogSet.Register()
	require.NoError(t, err)
	log := c.LogSet.Log(logIdx)
	// Simulate a crash between begin and end: begin=true, end=false, but
	// the refcount was never actually incremented.
	log.BeginAcquire(idx)

	c.RollbackTransactions(log)
	require.EqualValues(t, 0, c.Slots[idx].GetReferenceCount())
	begin, end := log.Get(idx)
	require.False(t, begin)
	require.False(t, end)
}

func TestAcquireOrdersByTimestampDescSlotAsc(t *testing.T) {
	c := shm.NewEventDataControl(3, 1, 4, true)
	i0, _ := c.AllocateSlot()
	i1, _ := c.AllocateSlot()
	i2, _ := c.AllocateSlot()
	require.NoError(t, c.PublishSlot(i0, 10))
	require.NoError(t, c.PublishSlot(i1, 10))
	require.NoError(t, c.PublishSlot(i2, 5))

	logIdx, _ := c.LogSet.Register()
	acquired, err := c.AcquireNewest(logIdx, 0, 3)
	require.NoError(t, err)
	require.Len(t, acquired, 3)
	// Timestamp 10 first (tie broken by slot index ascending), then 5.
	require.Equal(t, uint32(10), acquired[0].Timestamp)
	require.Equal(t, uint32(10), acquired[1].Timestamp)
	require.True(t, acquired[0].Index < acquired[1].Index)
	require.Equal(t, uint32(5), acquired[2].Timestamp)
}

func TestRollbackStaleLogsSkipsLiveSubscribers(t *testing.T) {
	c := shm.NewEventDataControl(2, 2, 4, true)
	idx, _ := c.AllocateSlot()
	require.NoError(t, c.PublishSlot(idx, 1))

	liveIdx, _ := c.LogSet.Register()
	deadIdx, _ := c.LogSet.Register()

	_, err := c.AcquireNewest(liveIdx, 0, 1)
	require.NoError(t, err)
	_, err = c.AcquireNewest(deadIdx, 0, 1)
	require.NoError(t, err) // both subscribers may hold a reference to the same slot

	c.RollbackStaleLogs(func(logIndex int) bool { return logIndex == liveIdx })

	require.True(t, c.LogSet.IsClaimed(liveIdx))
	require.False(t, c.LogSet.IsClaimed(deadIdx))
}
