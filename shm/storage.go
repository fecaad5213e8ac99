package shm

import "fmt"

// DataTypeMetaInfo describes the type of an event/field/method argument
// that is exchanged via shared memory (spec §3 "Event data storage", §9
// "Polymorphism", "Fingerprint field"). SizeOf/AlignOf let a generic proxy
// that has no compile-time knowledge of the event's Go type still index
// into the raw slot array; Fingerprint is reserved for future schema
// checking and today's consumers must preserve it on round-trip without
// interpreting it (spec §9).
type DataTypeMetaInfo struct {
	SizeOf      uint64
	AlignOf     uint8
	Fingerprint uint64
}

// EventDataStorage is the per-event raw byte array living in the data
// segment (spec §3 "Event data storage"): (numberOfSlots × slotSize) bytes,
// plus the type meta-info and an offset to the raw array. It is kept
// separate from the control segment so the control segment can stay
// read-write for mixed-criticality consumers while the data segment
// remains writer-only or read-only as required.
type EventDataStorage struct {
	MetaInfo DataTypeMetaInfo
	NumSlots int
	SlotSize int
	raw      []byte // view into the owning Segment's bytes at RawOffset
	RawOffset OffsetPtr
}

// NewEventDataStorage carves out a (numSlots × slotSize)-byte region
// starting at rawOffset within seg and returns a handle to it.
func NewEventDataStorage(seg *Segment, rawOffset OffsetPtr, numSlots, slotSize int, meta DataTypeMetaInfo) (*EventDataStorage, error) {
	total := numSlots * slotSize
	if int(rawOffset)+total > seg.Len() {
		return nil, fmt.Errorf("shm: event data storage of %d bytes at offset %d exceeds segment length %d", total, rawOffset, seg.Len())
	}
	return &EventDataStorage{
		MetaInfo:  meta,
		NumSlots:  numSlots,
		SlotSize:  slotSize,
		raw:       seg.Bytes()[rawOffset : int(rawOffset)+total],
		RawOffset: rawOffset,
	}, nil
}

// ByteSize returns the number of bytes required by numSlots slots of
// slotSize bytes — the quantity §4.5 step 2's size calculation sums across
// events.
func ByteSize(numSlots, slotSize int) int {
	return numSlots * slotSize
}

// SlotBytes returns a mutable view of the payload bytes for slot index.
// Only the producer (single writer) should write through it.
func (s *EventDataStorage) SlotBytes(index int) ([]byte, error) {
	if index < 0 || index >= s.NumSlots {
		return nil, fmt.Errorf("shm: slot index %d out of range [0,%d)", index, s.NumSlots)
	}
	start := index * s.SlotSize
	return s.raw[start : start+s.SlotSize], nil
}

// ReadSlot returns a copy of the payload bytes for slot index, safe for a
// consumer to retain after releasing its reference.
func (s *EventDataStorage) ReadSlot(index int) ([]byte, error) {
	b, err := s.SlotBytes(index)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// WriteSlot copies payload into slot index. len(payload) must equal
// SlotSize.
func (s *EventDataStorage) WriteSlot(index int, payload []byte) error {
	b, err := s.SlotBytes(index)
	if err != nil {
		return err
	}
	if len(payload) != s.SlotSize {
		return fmt.Errorf("shm: payload length %d does not match slot size %d", len(payload), s.SlotSize)
	}
	copy(b, payload)
	return nil
}
