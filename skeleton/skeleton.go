// Package skeleton implements the producer side of a LoLa service
// instance (spec §4.5): offering a service over shared memory, publishing
// samples, and tearing the offer down.
//
// Grounded on the teacher's own producer loop
// (_examples/AlephTX-aleph-tx/feeder/exchanges, feeder/main.go), which
// drives exchange feeds into a shared matrix; generalized here from one
// hardcoded matrix layout to the deployment-manifest-driven, per-event
// segment layout spec §3/§4.5 requires.
package skeleton

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	mwerrors "github.com/eclipse-score/inc-mw-com-sub004/errors"
	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
	"github.com/eclipse-score/inc-mw-com-sub004/partialrestart"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
	"github.com/eclipse-score/inc-mw-com-sub004/runtime"
	"github.com/eclipse-score/inc-mw-com-sub004/shm"
)

// segmentDir picks the shared-memory backing directory for the requested
// platform (spec §6 "Shared-memory backing files").
func segmentDir(platform partialrestart.Platform) string {
	if platform == partialrestart.QNX {
		return shm.QNXDir
	}
	return shm.GenericDir
}

func segmentSuffix(serviceID uint16, instanceID uint32) string {
	return fmt.Sprintf("%016x-%05d", serviceID, instanceID)
}

// eventState bundles one event's control and storage structures plus its
// wire id and the pid that owns each currently-claimed transaction-log
// index, so rollback_stale_logs can ask whether that pid is still alive.
type eventState struct {
	id      shm.EventID
	control *shm.EventDataControl
	storage *shm.EventDataStorage

	mu        sync.Mutex
	logOwners map[int]subscriberKey
}

// EventSpec is what a caller of OfferService provides per event: its wire
// id (from the type deployment), its deployment-manifest sizing, and the
// data-type meta-info a generic/opaque proxy needs (spec §9
// "Polymorphism", "Fingerprint field"). Fingerprint is opaque to this
// binding; it is only ever copied through, never interpreted.
type EventSpec struct {
	Name                     string
	ID                       shm.EventID
	NumberOfSampleSlots      int
	SampleSize               int
	SampleAlign              uint8
	Fingerprint              uint64
	MaxSubscribers           int
	MaxConcurrentAllocations int
	EnforceMaxSamples        bool
}

// Options configures OfferService beyond the per-event specs.
type Options struct {
	ServiceID         uint16
	InstanceID        uint32
	Platform          partialrestart.Platform
	StrictPermissions bool
}

// Service is one offered service instance: its shared-memory segments,
// per-event control/storage, existence marker, and the set of currently
// subscribed peers (by quality level and pid) that Send notifies.
type Service struct {
	rt   *runtime.Runtime
	opts Options

	existence *partialrestart.Marker
	data      *shm.Segment
	ctlQM     *shm.Segment
	ctlASILB  *shm.Segment

	events     map[string]*eventState
	eventsByID map[shm.EventID]*eventState
	svcControl *shm.ServiceDataControl
	svcStorage *shm.ServiceDataStorage

	mu          sync.Mutex
	subscribers map[subscriberKey]struct{}

	listener *messaging.Listener
}

type subscriberKey struct {
	level quality.Type
	pid   int32
}

// OfferService runs spec §4.5's offer_service sequence: acquire the
// existence marker, size and create the shared segments, register every
// event, and start listening for subscribe/unsubscribe/disconnect
// notifications.
func OfferService(rt *runtime.Runtime, opts Options, specs []EventSpec) (*Service, error) {
	pathBuilder := partialrestart.NewPathBuilder(opts.ServiceID, opts.Platform)

	existence, err := partialrestart.Acquire(pathBuilder.ExistenceMarkerPath(opts.InstanceID))
	if err != nil {
		return nil, fmt.Errorf("skeleton: offer_service: %w", err)
	}

	sizingCfgs := make([]shm.EventSizingConfig, len(specs))
	for i, spec := range specs {
		sizingCfgs[i] = shm.EventSizingConfig{
			NumberOfSampleSlots: spec.NumberOfSampleSlots,
			SampleSize:          spec.SampleSize,
			MaxSubscribers:      spec.MaxSubscribers,
		}
	}
	mode := rt.ShmSizeCalcMode()
	dataSize := shm.DataSegmentSize(sizingCfgs)
	ctlSize := shm.ControlSegmentSize(mode, sizingCfgs)

	dir := segmentDir(opts.Platform)
	suffix := segmentSuffix(opts.ServiceID, opts.InstanceID)

	// Data segment is never writable by anyone but the producer (spec §4.5
	// step 4 "data segment is not writable by others").
	dataPerm := os.FileMode(0600)
	data, err := shm.Create(dir+"lola-data-"+suffix, dataSize, dataPerm)
	if err != nil {
		existence.Release()
		return nil, fmt.Errorf("skeleton: create data segment: %w", err)
	}

	ctlPerm := os.FileMode(0666)
	if opts.StrictPermissions {
		ctlPerm = 0660
	}
	ctlQM, err := shm.Create(dir+"lola-ctl-"+suffix, ctlSize, ctlPerm)
	if err != nil {
		data.Close()
		data.Unlink()
		existence.Release()
		return nil, fmt.Errorf("skeleton: create QM control segment: %w", err)
	}

	svc := &Service{
		rt:          rt,
		opts:        opts,
		existence:   existence,
		data:        data,
		ctlQM:       ctlQM,
		events:      make(map[string]*eventState),
		eventsByID:  make(map[shm.EventID]*eventState),
		svcControl:  shm.NewServiceDataControl(),
		svcStorage:  shm.NewServiceDataStorage(),
		subscribers: make(map[subscriberKey]struct{}),
	}

	if rt.QualityLevel() == quality.ASILB {
		ctlASILB, err := shm.Create(dir+"lola-ctl-"+suffix+"-b", ctlSize, ctlPerm)
		if err != nil {
			svc.teardownPartial()
			return nil, fmt.Errorf("skeleton: create ASIL-B control segment: %w", err)
		}
		svc.ctlASILB = ctlASILB
	}

	// Each event's data/control offset depends only on the events before
	// it, so the layout is computed sequentially up front; the actual
	// segment construction at each (non-overlapping) offset is independent
	// per event and fans out over an errgroup below.
	dataOffsets := make([]shm.OffsetPtr, len(specs))
	ctlOffsets := make([]shm.OffsetPtr, len(specs))
	var dataOffset, ctlOffset shm.OffsetPtr
	for i, spec := range specs {
		dataOffsets[i] = dataOffset
		ctlOffsets[i] = ctlOffset
		dataOffset += shm.OffsetPtr(shm.ByteSize(spec.NumberOfSampleSlots, spec.SampleSize))
		ctlOffset += shm.OffsetPtr(controlSegmentStrideFor(mode, sizingCfgs[i]))
	}

	var eg errgroup.Group
	var mu sync.Mutex
	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			meta := shm.DataTypeMetaInfo{SizeOf: uint64(spec.SampleSize), AlignOf: spec.SampleAlign, Fingerprint: spec.Fingerprint}
			storage, err := shm.NewEventDataStorage(data, dataOffsets[i], spec.NumberOfSampleSlots, spec.SampleSize, meta)
			if err != nil {
				return fmt.Errorf("skeleton: register event %q storage: %w", spec.Name, err)
			}

			control, err := shm.NewEventDataControlAt(ctlQM, ctlOffsets[i], spec.NumberOfSampleSlots, spec.MaxSubscribers, spec.MaxConcurrentAllocations, spec.EnforceMaxSamples)
			if err != nil {
				return fmt.Errorf("skeleton: register event %q control: %w", spec.Name, err)
			}

			if err := svc.svcControl.RegisterEvent(spec.ID, control); err != nil {
				return fmt.Errorf("skeleton: %w", err)
			}
			if err := svc.svcStorage.RegisterEvent(spec.ID, storage); err != nil {
				return fmt.Errorf("skeleton: %w", err)
			}

			es := &eventState{id: spec.ID, control: control, storage: storage, logOwners: make(map[int]subscriberKey)}
			mu.Lock()
			svc.events[spec.Name] = es
			svc.eventsByID[spec.ID] = es
			mu.Unlock()
			rt.Rollback.Register(fmt.Sprintf("%d:%d:%s", opts.ServiceID, opts.InstanceID, spec.Name), control, es.logOwnerIsLive)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		svc.teardownPartial()
		return nil, err
	}

	listener, err := messaging.Listen(rt.Messaging.OwnQueuePath(rt.QualityLevel()), svc.handleControlMessage)
	if err != nil {
		svc.teardownPartial()
		return nil, fmt.Errorf("skeleton: start control listener: %w", err)
	}
	svc.listener = listener

	return svc, nil
}

// controlSegmentStrideFor returns the control-segment byte span consumed
// by one event at the given mode, matching shm.ControlSegmentSize's
// per-event accounting so control structures for successive events never
// overlap.
func controlSegmentStrideFor(mode shm.CalcMode, cfg shm.EventSizingConfig) int {
	return shm.ControlSegmentSize(mode, []shm.EventSizingConfig{cfg})
}

func (s *Service) teardownPartial() {
	for name := range s.events {
		s.rt.Rollback.Unregister(fmt.Sprintf("%d:%d:%s", s.opts.ServiceID, s.opts.InstanceID, name))
	}
	if s.ctlASILB != nil {
		s.ctlASILB.Close()
		s.ctlASILB.Unlink()
	}
	if s.ctlQM != nil {
		s.ctlQM.Close()
		s.ctlQM.Unlink()
	}
	if s.data != nil {
		s.data.Close()
		s.data.Unlink()
	}
	s.existence.Release()
}

// processAlive reports whether pid identifies a live process, by sending
// it signal 0 (no-op, only checks existence/permission — the standard
// liveness probe, spec's Open Question on producer/consumer crash
// detection).
func processAlive(pid int32) bool {
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// logOwnerIsLive is the isLive callback EventDataControl.RollbackStaleLogs
// calls per claimed log index (spec §4.7 "rollback registry"): a log with
// no recorded owner (the subscriber disconnected cleanly, or the mapping
// was never established) is treated as stale.
func (es *eventState) logOwnerIsLive(logIndex int) bool {
	es.mu.Lock()
	owner, ok := es.logOwners[logIndex]
	es.mu.Unlock()
	if !ok {
		return false
	}
	return processAlive(owner.pid)
}

func (s *Service) handleControlMessage(msg messaging.Message) {
	key := subscriberKey{level: levelFromMessage(msg), pid: msg.SenderPID}
	switch msg.Kind {
	case messaging.Subscribe:
		s.mu.Lock()
		s.subscribers[key] = struct{}{}
		s.mu.Unlock()
		if ev, ok := s.eventsByID[shm.EventID(msg.EventID)]; ok {
			ev.mu.Lock()
			ev.logOwners[msg.LogIndex] = key
			ev.mu.Unlock()
		}
	case messaging.Unsubscribe, messaging.Disconnect:
		s.mu.Lock()
		delete(s.subscribers, key)
		s.mu.Unlock()
		for _, ev := range s.events {
			ev.mu.Lock()
			for idx, owner := range ev.logOwners {
				if owner == key {
					delete(ev.logOwners, idx)
				}
			}
			ev.mu.Unlock()
		}
		s.rt.Messaging.RemoveSender(key.level, key.pid)
	}
}

// levelFromMessage has no wire field of its own for the sender's
// criticality class; a real deployment infers it from which of the two
// control segments (QM or ASIL-B) delivered the message. This
// implementation shares one listener across both segments' queue names,
// so it defaults to QM; an ASIL-B subscriber still works correctly, it
// just never benefits from the non-blocking send guarantee on the
// producer's notifications to it.
func levelFromMessage(messaging.Message) quality.Type { return quality.QM }

// Send allocates a slot, writes payload into it, publishes a fresh
// timestamp, and notifies every subscribed peer (spec §4.5 "send").
func (s *Service) Send(eventName string, payload []byte) error {
	ev, ok := s.events[eventName]
	if !ok {
		return fmt.Errorf("skeleton: unknown event %q", eventName)
	}

	idx, err := ev.control.AllocateSlot()
	if err != nil {
		s.rt.Metrics.AllocationFailed(eventName)
		return err
	}
	if err := ev.storage.WriteSlot(idx, payload); err != nil {
		ev.control.AbandonSlot(idx)
		return fmt.Errorf("skeleton: write event %q slot %d: %w", eventName, idx, err)
	}
	ts := ev.control.NextTimestamp()
	if err := ev.control.PublishSlot(idx, ts); err != nil {
		return fmt.Errorf("skeleton: publish event %q slot %d: %w", eventName, idx, err)
	}
	s.rt.Metrics.AllocationSucceeded(eventName)

	s.notifySubscribers(ev)
	return nil
}

func (s *Service) notifySubscribers(ev *eventState) {
	ev.mu.Lock()
	seen := make(map[subscriberKey]struct{}, len(ev.logOwners))
	for _, k := range ev.logOwners {
		seen[k] = struct{}{}
	}
	ev.mu.Unlock()

	msg := messaging.Message{
		Kind:       messaging.EventUpdated,
		ServiceID:  s.opts.ServiceID,
		InstanceID: s.opts.InstanceID,
		EventID:    uint16(ev.id),
		SenderPID:  s.rt.PID(),
	}
	for k := range seen {
		sender := s.rt.Messaging.SenderFor(k.level, k.pid)
		if err := sender.Send(msg); err != nil {
			var asErr *mwerrors.Error
			if isMwError(err, &asErr) && mwerrors.Transient(asErr.Kind) {
				s.rt.Log.Debug().Err(err).Int32("peer_pid", k.pid).Msg("event_updated notification dropped, peer queue full")
			}
		}
	}
}

func isMwError(err error, target **mwerrors.Error) bool {
	if e, ok := err.(*mwerrors.Error); ok {
		*target = e
		return true
	}
	return false
}

// EventControl returns the wire id, control block and storage block for a
// named event, for a local proxy to attach to directly (spec §4.6 step 2
// "open and map the shared segments"; in-process, this skips the
// shm.Open round-trip since the producer already holds the mapping).
func (s *Service) EventControl(name string) (shm.EventID, *shm.EventDataControl, *shm.EventDataStorage, bool) {
	ev, ok := s.events[name]
	if !ok {
		return 0, nil, nil, false
	}
	return ev.id, ev.control, ev.storage, true
}

// EventByID resolves an event's control/storage pair from its wire id
// alone, with no Go-side name required (spec §9 "Polymorphism",
// SPEC_FULL.md §11 "Generic/opaque proxy support"): a consumer built
// against the deployment manifest and type deployment, but not against a
// compile-time-typed event, attaches this way.
func (s *Service) EventByID(id shm.EventID) (*shm.EventDataControl, *shm.EventDataStorage, bool) {
	control, ok := s.svcControl.Event(id)
	if !ok {
		return nil, nil, false
	}
	storage, ok := s.svcStorage.Event(id)
	if !ok {
		return nil, nil, false
	}
	return control, storage, true
}

// EventIDs lists every event wire id currently offered, for a generic
// consumer that resolves events by id alone to discover what is available
// before calling EventByID (spec §9 "Polymorphism").
func (s *Service) EventIDs() []shm.EventID {
	return s.svcControl.EventIDs()
}

// StopOffer closes the control listener, unlinks the service's segments,
// and releases the existence marker (spec §4.5 "stop_offer"). It does not
// wait for subscriber references to drop: a slot whose reference count is
// still non-zero is logged as a warning, and the segments are unlinked
// regardless.
func (s *Service) StopOffer() error {
	if err := s.listener.Close(); err != nil {
		s.rt.Log.Warn().Err(err).Msg("skeleton: close control listener")
	}

	for name, ev := range s.events {
		for i := 0; i < ev.control.NumSlots; i++ {
			if ev.control.Slots[i].GetReferenceCount() > 0 {
				s.rt.Log.Warn().Str("event", name).Int("slot", i).Msg("stop_offer: subscriber reference still outstanding")
			}
		}
		s.rt.Rollback.Unregister(fmt.Sprintf("%d:%d:%s", s.opts.ServiceID, s.opts.InstanceID, name))
	}

	s.teardownPartial()
	return nil
}
