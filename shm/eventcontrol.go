package shm

import (
	"fmt"
	"sort"
	"sync/atomic"

	mwerrors "github.com/eclipse-score/inc-mw-com-sub004/errors"
	"github.com/eclipse-score/inc-mw-com-sub004/slotstate"
	"github.com/eclipse-score/inc-mw-com-sub004/translog"
)

// controlRegionBytes returns the byte span NewEventDataControlAt places
// after one event's controlHeaderOverhead header: the slot state words
// followed by the transaction log set.
func controlRegionBytes(numSlots, maxSubscribers int) int {
	return numSlots*slotstate.Size + translog.LogSetByteSize(maxSubscribers, numSlots)
}

// maxAllocateRetries bounds how many full slot-array scans allocate_slot
// performs when enforce_max_samples is false, before giving up (spec §4.2
// "Failure modes": "otherwise retry up to an implementation-defined
// bound").
const maxAllocateRetries = 8

// maxTimestamp is used as the open upper bound for IsTimestampBetween when
// scanning for "newer than last seen".
const maxTimestamp = ^uint32(0)

// EventDataControl is the per-event ordered sequence of slot state words
// plus its transaction-log set and allocation metadata (spec §3 "Event
// data control", §4.2). It owns the lock-free single-writer/many-reader
// slot allocation and reference protocol.
type EventDataControl struct {
	Slots    []*slotstate.Word
	LogSet   *translog.LogSet
	NumSlots int

	MaxSubscribers           int
	MaxConcurrentAllocations int
	EnforceMaxSamples        bool

	lastTimestamp        atomic.Uint32
	outstandingAllocates atomic.Int32
}

// NewEventDataControl allocates numSlots Words on the Go heap (the
// standalone/testing constructor; NewEventDataControlAt places the words
// inside a shared segment instead).
func NewEventDataControl(numSlots, maxSubscribers, maxConcurrentAllocations int, enforceMaxSamples bool) *EventDataControl {
	slots := make([]*slotstate.Word, numSlots)
	for i := range slots {
		slots[i] = slotstate.New()
	}
	return &EventDataControl{
		Slots:                    slots,
		LogSet:                   translog.NewLogSet(maxSubscribers, numSlots),
		NumSlots:                 numSlots,
		MaxSubscribers:           maxSubscribers,
		MaxConcurrentAllocations: maxConcurrentAllocations,
		EnforceMaxSamples:        enforceMaxSamples,
	}
}

// NewEventDataControlAt builds an EventDataControl whose slot state words
// and transaction log set both live inside seg at consecutive offsets,
// starting after a controlHeaderOverhead-byte header at base (so no slot
// word ever sits at NilOffset), and are visible to and mutable by every process
// that maps seg (spec §9 "Offset pointers") — in particular so the
// producer can roll back a crashed consumer's begin/end bits, which only
// works if both processes see the same log bytes (spec §3 "Transaction
// logs within the control segment").
func NewEventDataControlAt(seg *Segment, base OffsetPtr, numSlots, maxSubscribers, maxConcurrentAllocations int, enforceMaxSamples bool) (*EventDataControl, error) {
	need := controlHeaderOverhead + controlRegionBytes(numSlots, maxSubscribers)
	if int(base)+need > seg.Len() {
		return nil, fmt.Errorf("shm: event data control of %d bytes at offset %d exceeds segment length %d", need, base, seg.Len())
	}
	base += OffsetPtr(controlHeaderOverhead)
	slots := make([]*slotstate.Word, numSlots)
	for i := 0; i < numSlots; i++ {
		ptr := seg.Resolve(base + OffsetPtr(i*slotstate.Size))
		slots[i] = slotstate.FromPointer(ptr)
	}
	logSetOffset := base + OffsetPtr(numSlots*slotstate.Size)
	logSet := translog.NewLogSetAt(seg.Resolve(logSetOffset), maxSubscribers, numSlots)
	return &EventDataControl{
		Slots:                    slots,
		LogSet:                   logSet,
		NumSlots:                 numSlots,
		MaxSubscribers:           maxSubscribers,
		MaxConcurrentAllocations: maxConcurrentAllocations,
		EnforceMaxSamples:        enforceMaxSamples,
	}, nil
}

// NextTimestamp returns the next monotonic timestamp for this event,
// starting at 1 (spec §4.5 "send": "Assign a fresh monotonic timestamp
// (global per event, starting at 1)").
func (c *EventDataControl) NextTimestamp() uint32 {
	return c.lastTimestamp.Add(1)
}

// AllocateSlot runs the producer-side allocation algorithm (spec §4.2
// "Producer-side allocation"): scan for an allocatable slot (¬in_writing ∧
// refcount=0), prefer the oldest timestamp among candidates, CAS it to
// IN_WRITING.
func (c *EventDataControl) AllocateSlot() (int, error) {
	attempts := 1
	if !c.EnforceMaxSamples {
		attempts = maxAllocateRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if !c.reserveAllocation() {
			continue
		}
		idx, ok := c.tryAllocatePass()
		if ok {
			return idx, nil
		}
		c.outstandingAllocates.Add(-1)
	}
	return -1, mwerrors.New(mwerrors.SampleAllocationFailure, "no slot available for event (enforce_max_samples=%v)", c.EnforceMaxSamples)
}

// reserveAllocation atomically reserves one unit of the concurrent-
// allocation budget via a CAS loop, returning false without side effects
// if the budget is already exhausted. The reservation happens before
// tryAllocatePass's own CAS on the chosen slot, so invariant 3 (outstanding
// allocations never exceed max_concurrent_allocations) holds even when
// more than one producer-side goroutine calls AllocateSlot concurrently,
// not just under the single-writer discipline the wire protocol assumes.
func (c *EventDataControl) reserveAllocation() bool {
	for {
		cur := c.outstandingAllocates.Load()
		if cur >= int32(c.MaxConcurrentAllocations) {
			return false
		}
		if c.outstandingAllocates.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// tryAllocatePass performs one scan of the slot array, picking the
// allocatable slot with the oldest timestamp and attempting a single CAS
// on it. A CAS failure (lost race against another allocate — at-most-one
// writer discipline means this should be rare in a correct single-producer
// deployment, but the protocol remains correct even if multiple threads in
// the same producer process race) falls through to the next slot in the
// same pass rather than restarting immediately, matching §4.2 step 3 ("On
// failure, restart the scan at the next index").
func (c *EventDataControl) tryAllocatePass() (int, bool) {
	type candidate struct {
		idx int
		ts  uint32
	}
	var candidates []candidate
	for i, s := range c.Slots {
		if s.IsAllocatable() {
			candidates = append(candidates, candidate{idx: i, ts: s.GetTimestamp()})
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].ts < candidates[b].ts })
	for _, cand := range candidates {
		if c.Slots[cand.idx].TryAllocate() {
			return cand.idx, true
		}
	}
	return -1, false
}

// PublishSlot transitions a slot from IN_WRITING to (timestamp, refcount=0)
// with a release store (spec §4.2 "Publication"), and frees its
// concurrent-allocation budget.
func (c *EventDataControl) PublishSlot(index int, timestamp uint32) error {
	if index < 0 || index >= c.NumSlots {
		return fmt.Errorf("shm: slot index %d out of range", index)
	}
	if !c.Slots[index].IsInWriting() {
		return fmt.Errorf("shm: slot %d is not IN_WRITING", index)
	}
	c.Slots[index].SetTimestamp(timestamp)
	c.outstandingAllocates.Add(-1)
	return nil
}

// AbandonSlot reverts a slot from IN_WRITING back to INVALID without
// publishing, freeing its concurrent-allocation budget.
func (c *EventDataControl) AbandonSlot(index int) error {
	if index < 0 || index >= c.NumSlots {
		return fmt.Errorf("shm: slot index %d out of range", index)
	}
	c.Slots[index].MarkInvalid()
	c.outstandingAllocates.Add(-1)
	return nil
}

// Acquired pairs a slot index with the timestamp it was acquired at.
type Acquired struct {
	Index     int
	Timestamp uint32
}

// AcquireNewest runs the consumer-side reference-acquisition algorithm
// (spec §4.2 "Consumer-side reference acquisition") for the given
// subscriber's transaction log: find slots newer than lastSeen, acquire up
// to maxN of them ordered by timestamp descending (ties by slot index
// ascending), recording transaction-log intent around each CAS.
//
// If a CAS attempt loses its race, the begin bit written just before it is
// cleared immediately rather than left set: no crash occurred, so nothing
// should look stale to a future rollback (spec §4.2 leaves this case
// unspecified; see DESIGN.md).
func (c *EventDataControl) AcquireNewest(logIndex int, lastSeen uint32, maxN int) ([]Acquired, error) {
	if logIndex < 0 || logIndex >= c.LogSet.Capacity() {
		return nil, fmt.Errorf("shm: log index %d out of range", logIndex)
	}
	log := c.LogSet.Log(logIndex)

	type candidate struct {
		idx int
		ts  uint32
	}
	var candidates []candidate
	for i, s := range c.Slots {
		if s.IsTimestampBetween(lastSeen, maxTimestamp) {
			candidates = append(candidates, candidate{idx: i, ts: s.GetTimestamp()})
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].ts != candidates[b].ts {
			return candidates[a].ts > candidates[b].ts
		}
		return candidates[a].idx < candidates[b].idx
	})

	var out []Acquired
	for _, cand := range candidates {
		if len(out) >= maxN {
			break
		}
		log.BeginAcquire(cand.idx)
		if c.Slots[cand.idx].TryAcquire() {
			log.EndAcquire(cand.idx)
			out = append(out, Acquired{Index: cand.idx, Timestamp: cand.ts})
		} else {
			log.Clear(cand.idx)
		}
	}
	return out, nil
}

// ReleaseSlot runs the consumer-side release algorithm (spec §4.2
// "Release"): CAS-decrement the refcount, then clear both transaction-log
// bits for the slot.
func (c *EventDataControl) ReleaseSlot(logIndex, slotIndex int) error {
	if slotIndex < 0 || slotIndex >= c.NumSlots {
		return fmt.Errorf("shm: slot index %d out of range", slotIndex)
	}
	for !c.Slots[slotIndex].TryRelease() {
		if c.Slots[slotIndex].GetReferenceCount() == 0 {
			return fmt.Errorf("shm: release of slot %d with zero refcount", slotIndex)
		}
		// lost race against a concurrent acquire/release on the same slot by
		// another subscriber; retry.
	}
	c.LogSet.Log(logIndex).Clear(slotIndex)
	return nil
}

// RollbackTransactions runs spec §4.2 "Rollback": for every slot where
// begin=true, decrement the refcount if end=true (the increment
// completed and the owner crashed before releasing), or leave it
// unchanged if end=false (the increment never completed). Both cases
// clear the log entry afterwards.
func (c *EventDataControl) RollbackTransactions(log *translog.Log) {
	for _, idx := range log.StaleSlots() {
		_, end := log.EntryAt(idx)
		if end {
			for !c.Slots[idx].TryRelease() {
				if c.Slots[idx].GetReferenceCount() == 0 {
					break
				}
			}
		}
		log.Clear(idx)
	}
}

// RollbackStaleLogs iterates every claimed log in the event's log set and
// rolls back any whose owning subscriber isLive reports as dead, then
// reclaims the log slot (spec §4.3 "rollback_stale_logs").
func (c *EventDataControl) RollbackStaleLogs(isLive func(logIndex int) bool) {
	for _, idx := range c.LogSet.ClaimedIndices() {
		if isLive(idx) {
			continue
		}
		c.RollbackTransactions(c.LogSet.Log(idx))
		c.LogSet.Unregister(idx)
	}
}

// OutstandingAllocations reports the number of slots currently IN_WRITING
// for this event, for diagnostics and for the invariant-3 property test
// ("never exceed max_concurrent_allocations").
func (c *EventDataControl) OutstandingAllocations() int32 {
	return c.outstandingAllocates.Load()
}
