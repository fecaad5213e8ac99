package translog

import (
	"unsafe"

	mwerrors "github.com/eclipse-score/inc-mw-com-sub004/errors"
)

// LogSet is the fixed-capacity vector of transaction logs for one event,
// keyed by subscriber slot index (§3 "Transaction log set", §4.3). Capacity
// equals the deployment's max_subscribers plus one; the last index is
// reserved for the skeleton-side tracing subscriber.
//
// Which indices are claimed is itself tracked with a bitset rather than a
// mutex-guarded slice, so that Register/Unregister are race-safe when two
// separate consumer processes map the same control segment and race to
// claim a slot: a Go mutex only ever protects one process's view of its
// own heap, never memory shared across processes.
type LogSet struct {
	logs     []*Log
	claimed  *bitset
	capacity int
	// TracingIndex is the reserved index for the skeleton-side tracing
	// subscriber (§3, §11 "Skeleton-side tracing subscriber slot").
	TracingIndex int
}

// LogSetByteSize returns the shared-memory footprint of a LogSet for an
// event with the given max_subscribers and numSlots, for control-segment
// sizing.
func LogSetByteSize(maxSubscribers, numSlots int) int {
	capacity := maxSubscribers + 1
	return bitsetByteSize(capacity) + capacity*LogByteSize(numSlots)
}

// NewLogSet allocates a log set for an event with the given number of
// regular subscriber slots (max_subscribers) and numSlots samples to track
// per log, on the Go heap. One extra slot beyond maxSubscribers is reserved
// for tracing.
func NewLogSet(maxSubscribers int, numSlots int) *LogSet {
	capacity := maxSubscribers + 1
	logs := make([]*Log, capacity)
	for i := range logs {
		logs[i] = NewLog(numSlots)
	}
	return &LogSet{logs: logs, claimed: newBitset(capacity), capacity: capacity, TracingIndex: capacity - 1}
}

// NewLogSetAt reinterprets the LogSetByteSize(maxSubscribers, numSlots)
// bytes at p as a LogSet: the claimed bitmap first, then each log's bits
// consecutively, so the set is visible to and mutable by every process
// that maps the control segment at this offset (spec §9 "Offset
// pointers").
func NewLogSetAt(p unsafe.Pointer, maxSubscribers, numSlots int) *LogSet {
	capacity := maxSubscribers + 1
	claimedBytes := bitsetByteSize(capacity)
	logBytes := LogByteSize(numSlots)

	logs := make([]*Log, capacity)
	for i := 0; i < capacity; i++ {
		logs[i] = logAt(unsafe.Add(p, claimedBytes+i*logBytes), numSlots)
	}
	return &LogSet{logs: logs, claimed: bitsetAt(p, capacity), capacity: capacity, TracingIndex: capacity - 1}
}

// Register finds a free log slot and atomically claims it, returning its
// index. It fails with kMaxSubscribersExceeded once every regular slot
// (excluding the reserved tracing slot) is claimed.
func (ls *LogSet) Register() (int, error) {
	for i := 0; i < ls.TracingIndex; i++ {
		if ls.claimed.trySet(i) {
			return i, nil
		}
	}
	return -1, mwerrors.New(mwerrors.MaxSubscribersExceeded, "no free transaction log slot")
}

// RegisterTracing claims the reserved skeleton-side tracing slot.
func (ls *LogSet) RegisterTracing() error {
	if !ls.claimed.trySet(ls.TracingIndex) {
		return mwerrors.New(mwerrors.MaxSubscribersExceeded, "tracing slot already claimed")
	}
	return nil
}

// Unregister returns a claimed log slot to the free pool. The caller must
// have already cleared every entry in the log (normal unsubscribe path);
// rollback-then-unregister is how a crashed subscriber's slot is reclaimed.
func (ls *LogSet) Unregister(index int) {
	ls.claimed.clear(index)
}

// Log returns the transaction log at index.
func (ls *LogSet) Log(index int) *Log {
	return ls.logs[index]
}

// ClaimedIndices returns the indices currently claimed, used by the
// producer during partial-restart recovery to find logs that might belong
// to a dead subscriber.
func (ls *LogSet) ClaimedIndices() []int {
	return ls.claimed.indices(ls.capacity)
}

// IsClaimed reports whether index is currently claimed by a live or
// presumed-live owner.
func (ls *LogSet) IsClaimed(index int) bool {
	return ls.claimed.test(index)
}

// Capacity returns the total number of log slots, including the reserved
// tracing slot.
func (ls *LogSet) Capacity() int {
	return ls.capacity
}
