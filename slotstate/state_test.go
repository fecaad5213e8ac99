package slotstate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/slotstate"
)

func TestNewIsInvalid(t *testing.T) {
	w := slotstate.New()
	require.True(t, w.IsInvalid())
	require.False(t, w.IsInWriting())
	require.False(t, w.IsUsed())
}

func TestMarkInWritingIsUsedNotReadable(t *testing.T) {
	w := slotstate.New()
	w.MarkInWriting()
	require.True(t, w.IsInWriting())
	require.True(t, w.IsUsed())
	require.False(t, w.IsTimestampBetween(0, ^uint32(0)))
}

func TestPublishThenAcquireRelease(t *testing.T) {
	w := slotstate.New()
	w.MarkInWriting()
	w.SetTimestamp(42)

	require.Equal(t, uint32(42), w.GetTimestamp())
	require.Equal(t, uint32(0), w.GetReferenceCount())
	require.False(t, w.IsUsed())
	require.True(t, w.IsTimestampBetween(0, 100))
	require.False(t, w.IsTimestampBetween(42, 100))
	require.False(t, w.IsTimestampBetween(0, 42))

	require.True(t, w.TryAcquire())
	require.Equal(t, uint32(1), w.GetReferenceCount())
	require.Equal(t, uint32(42), w.GetTimestamp())
	require.True(t, w.IsUsed())

	require.True(t, w.TryRelease())
	require.Equal(t, uint32(0), w.GetReferenceCount())
	require.False(t, w.IsUsed())
}

func TestTryAllocateRaceLoses(t *testing.T) {
	w := slotstate.New()
	w.SetTimestamp(1)
	w.SetReferenceCount(1)

	// Not allocatable while refcount > 0.
	require.False(t, w.IsAllocatable())
	require.False(t, w.TryAllocate())

	require.True(t, w.TryRelease())
	require.True(t, w.IsAllocatable())
	require.True(t, w.TryAllocate())
	require.True(t, w.IsInWriting())

	// A second allocate attempt must fail: it's already IN_WRITING.
	require.False(t, w.TryAllocate())
}

func TestMarkInvalidResetsEverything(t *testing.T) {
	w := slotstate.New()
	w.MarkInWriting()
	w.SetTimestamp(7)
	w.MarkInvalid()
	require.True(t, w.IsInvalid())
	require.Equal(t, uint32(0), w.GetTimestamp())
	require.Equal(t, uint32(0), w.GetReferenceCount())
}

func TestReleaseOnZeroRefcountFails(t *testing.T) {
	w := slotstate.New()
	w.SetTimestamp(3)
	require.False(t, w.TryRelease())
}

func TestAcquireOnInvalidFails(t *testing.T) {
	w := slotstate.New()
	require.False(t, w.TryAcquire())
}

func TestSetReferenceCountPreservesTimestamp(t *testing.T) {
	w := slotstate.New()
	w.SetTimestamp(99)
	w.SetReferenceCount(5)
	require.Equal(t, uint32(99), w.GetTimestamp())
	require.Equal(t, uint32(5), w.GetReferenceCount())
}
