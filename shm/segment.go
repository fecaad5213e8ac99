// Package shm places the shared-memory data structures described in spec
// §3/§4.2 and provides the offset-pointer/arena abstraction from §9: a
// Segment is backed by an mmap'd file and every structure inside it is
// addressed by a byte offset from the segment's base rather than by a raw
// pointer, since the same segment maps to different virtual addresses in
// different processes.
//
// Grounded on the teacher's own mmap discipline
// (_examples/AlephTX-aleph-tx/feeder/shm/matrix.go, seqlock.go), generalized
// from a single fixed struct to an arena that can host an arbitrary number
// of per-event slot arrays, and ported from the stdlib syscall package to
// golang.org/x/sys/unix.
package shm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GenericDir is the directory backing shared segments on a generic Linux
// system (spec §6 "Shared-memory backing files").
const GenericDir = "/dev/shm/"

// QNXDir is the directory backing shared segments on QNX.
const QNXDir = "/dev/shmem/"

// Segment is one mmap'd shared-memory backing file.
type Segment struct {
	path     string
	file     *os.File
	data     []byte
	writable bool
	// BoundsChecked enables the optional bounds-checking mode from §9,
	// turned on when the owning process runs at ASIL-B.
	BoundsChecked bool
}

// Create creates (or truncates) and maps a new segment of the given size,
// owned by the current (producer) process. perm controls who else may open
// it for writing; the caller chooses it per segment, since the data
// segment and the control segment(s) have different access rules (spec
// §4.5 step 4).
func Create(path string, size int, perm os.FileMode) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Segment{path: path, file: f, data: data, writable: true}, nil
}

// Open maps an existing segment. writable selects PROT_READ|PROT_WRITE vs.
// PROT_READ only, matching the consumer's "map data read-only, control
// read-write" ownership rule (spec §3 "Ownership").
func Open(path string, writable bool) (*Segment, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Segment{path: path, file: f, data: data, writable: writable}, nil
}

// Path returns the backing file path.
func (s *Segment) Path() string { return s.path }

// Len returns the segment size in bytes.
func (s *Segment) Len() int { return len(s.data) }

// Bytes exposes the raw mapped region. Callers outside this package should
// prefer OffsetPtr-based accessors; Bytes exists for data-segment payload
// copies.
func (s *Segment) Bytes() []byte { return s.data }

// Base returns the unsafe base address of the mapped region.
func (s *Segment) Base() unsafe.Pointer {
	if len(s.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&s.data[0])
}

// Close unmaps the segment and closes the backing file descriptor. It does
// not remove the backing file; use Unlink for that (producer-only, spec
// §4.5 step 6 / §3 "Ownership").
func (s *Segment) Close() error {
	var errs []error
	if err := unix.Munmap(s.data); err != nil {
		errs = append(errs, err)
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shm: close %s: %v", s.path, errs)
	}
	return nil
}

// Unlink removes the backing file. Only the producer process that created
// the segment should call this, and only after every subscriber's
// reference count on every slot has dropped to zero (spec §4.5
// "stop_offer").
func (s *Segment) Unlink() error {
	return os.Remove(s.path)
}

// OffsetPtr is a byte offset from a Segment's base address. It remains
// valid across processes that have mapped the same segment, unlike a raw
// pointer (spec §9 "Offset pointers").
type OffsetPtr uintptr

// NilOffset denotes "no object", mirroring a null pointer. Offset 0 is
// reserved for this purpose; real payloads are always placed after a
// non-zero header region.
const NilOffset OffsetPtr = 0

// OffsetOf computes the OffsetPtr of p relative to the segment's base.
func (s *Segment) OffsetOf(p unsafe.Pointer) OffsetPtr {
	return OffsetPtr(uintptr(p) - uintptr(s.Base()))
}

// Resolve turns an OffsetPtr back into a usable pointer within this
// segment. In BoundsChecked mode it panics rather than returning an
// out-of-range pointer, since the caller is ASIL-B and an out-of-bounds
// dereference must never pass silently.
func (s *Segment) Resolve(o OffsetPtr) unsafe.Pointer {
	if o == NilOffset {
		return nil
	}
	if s.BoundsChecked && (uintptr(o) >= uintptr(len(s.data))) {
		panic(fmt.Sprintf("shm: offset %d out of bounds for segment %s of length %d", o, s.path, len(s.data)))
	}
	return unsafe.Pointer(uintptr(s.Base()) + uintptr(o))
}
