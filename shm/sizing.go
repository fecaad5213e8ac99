package shm

import (
	"github.com/eclipse-score/inc-mw-com-sub004/slotstate"
	"github.com/eclipse-score/inc-mw-com-sub004/translog"
)

// CalcMode selects how OfferService computes shared-memory segment sizes
// (spec §4.5 step 2, §11 "ShmSizeCalculationMode").
type CalcMode uint8

const (
	// Estimation uses a closed-form upper bound.
	Estimation CalcMode = iota
	// Simulation computes the exact usage from the byte sizes of the
	// structures, without Estimation's per-slot padding; no structures are
	// laid out in a scratch segment.
	Simulation
)

func (m CalcMode) String() string {
	if m == Simulation {
		return "kSimulation"
	}
	return "kEstimation"
}

// EventSizingConfig carries the per-event quantities the size calculation
// needs: number of sample slots, slot payload size, and max subscribers.
type EventSizingConfig struct {
	NumberOfSampleSlots int
	SampleSize          int
	MaxSubscribers      int
}

// controlHeaderOverhead is a fixed per-event overhead for control-segment
// bookkeeping (allocation counters, metadata) that both estimation and
// simulation must account for.
const controlHeaderOverhead = 64

// alignmentPaddingPerSlot is extra, conservative padding estimation adds
// per slot so that EstimatedSize never under-counts actual usage —
// guaranteeing the invariant estimated_size(config) >= simulated_size(config)
// (spec §8 "Boundary behaviors" / testable property 6).
const alignmentPaddingPerSlot = 8

// dataSegmentBytes returns the size of the data segment contribution for
// one event: (number of slots × slot size).
func dataSegmentBytes(cfg EventSizingConfig) int {
	return ByteSize(cfg.NumberOfSampleSlots, cfg.SampleSize)
}

// controlSegmentBytesSimulated returns the control-segment contribution
// for one event as NewEventDataControlAt places it: the fixed header, one
// slotstate.Word per slot, and the transaction log set's claimed bitmap
// and per-subscriber begin/end bitsets. It is computed from those sizes;
// nothing is laid out.
func controlSegmentBytesSimulated(cfg EventSizingConfig) int {
	slots := cfg.NumberOfSampleSlots * slotstate.Size
	logs := translog.LogSetByteSize(cfg.MaxSubscribers, cfg.NumberOfSampleSlots)
	return slots + logs + controlHeaderOverhead
}

// EstimatedSize returns the closed-form upper bound for the shared-memory
// footprint of one event (spec §4.5 step 2 "estimation").
func EstimatedSize(cfg EventSizingConfig) int {
	return dataSegmentBytes(cfg) + controlSegmentBytesSimulated(cfg) + cfg.NumberOfSampleSlots*alignmentPaddingPerSlot
}

// SimulatedSize returns the exact shared-memory footprint of one event
// (spec §4.5 step 2 "simulation"), computed from the same byte sizes
// NewEventDataStorage and NewEventDataControlAt use; it does not run event
// registration in a scratch segment. It is always <= EstimatedSize.
func SimulatedSize(cfg EventSizingConfig) int {
	return dataSegmentBytes(cfg) + controlSegmentBytesSimulated(cfg)
}

// TotalSize sums per-event sizes across a whole service instance for the
// requested calculation mode.
func TotalSize(mode CalcMode, cfgs []EventSizingConfig) int {
	total := 0
	for _, cfg := range cfgs {
		if mode == Simulation {
			total += SimulatedSize(cfg)
		} else {
			total += EstimatedSize(cfg)
		}
	}
	return total
}

// DataSegmentSize sums the data-segment contribution across every event,
// independent of calculation mode: the payload array's size never
// depends on estimation vs. simulation, only the control-segment
// bookkeeping does (spec §4.5 step 3 "one data segment").
func DataSegmentSize(cfgs []EventSizingConfig) int {
	total := 0
	for _, cfg := range cfgs {
		total += dataSegmentBytes(cfg)
	}
	return total
}

// ControlSegmentSize sums the control-segment contribution across every
// event for the requested calculation mode (spec §4.5 step 3 "one ...
// control segment").
func ControlSegmentSize(mode CalcMode, cfgs []EventSizingConfig) int {
	total := 0
	for _, cfg := range cfgs {
		total += controlSegmentBytesSimulated(cfg)
		if mode != Simulation {
			total += cfg.NumberOfSampleSlots * alignmentPaddingPerSlot
		}
	}
	return total
}
