// Package proxy implements the consumer side of a LoLa service instance
// (spec §4.6): attaching to an already-offered producer's shared memory,
// pulling new samples, and releasing them again.
//
// Grounded on the teacher's own subscriber loop shape
// (_examples/AlephTX-aleph-tx/feeder/exchanges — a consumer polling a
// shared resource and reacting to updates), generalized from polling a
// hardcoded matrix to the manifest-driven, per-event segment layout and
// transaction-log-backed reference protocol spec §3/§4.2/§4.6 require.
package proxy

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	mwerrors "github.com/eclipse-score/inc-mw-com-sub004/errors"
	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
	"github.com/eclipse-score/inc-mw-com-sub004/partialrestart"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
	"github.com/eclipse-score/inc-mw-com-sub004/runtime"
	"github.com/eclipse-score/inc-mw-com-sub004/shm"
)

// Handle identifies the service instance a Proxy attaches to: which
// producer process is offering it and at what criticality class, needed
// to address the right control-plane queue (spec §4.6 "from an opaque
// handle that locates the service instance"). Local-host discovery beyond
// this is out of scope (spec §1 Non-goals "dynamic discovery beyond the
// local host").
type Handle struct {
	ServiceID     uint16
	InstanceID    uint32
	ProducerPID   int32
	ProducerLevel quality.Type
	Platform      partialrestart.Platform
}

// EventHandle is the control/storage pair a caller resolves (from the
// segments it has already mapped via shm.Open) for one named event,
// handed to Attach. Offset bookkeeping inside the mapped segments is the
// caller's responsibility, mirroring skeleton's own ownership of segment
// layout on the producer side.
type EventHandle struct {
	ID      shm.EventID
	Control *shm.EventDataControl
	Storage *shm.EventDataStorage
}

// eventSubscription tracks one event this proxy has subscribed to: its
// control/storage handles, the log index this incarnation registered, and
// the per-event high-water mark get_new_samples advances.
type eventSubscription struct {
	mu       sync.Mutex
	id       shm.EventID
	control  *shm.EventDataControl
	storage  *shm.EventDataStorage
	logIndex int
	lastSeen uint32
}

// Proxy is one consumer's attachment to a service instance.
type Proxy struct {
	rt     *runtime.Runtime
	handle Handle

	usage *partialrestart.Marker

	mu     sync.Mutex
	events map[string]*eventSubscription
}

// Sample is a payload a consumer has acquired a reference to. Release
// drops the reference (spec §4.6 "On drop of a sample reference: release
// the slot"); Payload is a private copy, safe to retain past Release.
type Sample struct {
	proxy     *Proxy
	eventName string
	slotIndex int
	Timestamp uint32
	Payload   []byte

	released bool
}

// Release drops this sample's reference (spec §4.2 "Release"). Calling it
// more than once is a no-op.
func (s *Sample) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	return s.proxy.releaseSlot(s.eventName, s.slotIndex)
}

// Attach runs spec §4.6's construction sequence: take the shared
// usage-marker lock, register (and, if necessary, roll back) a
// transaction log for each named event, and send a subscribe control
// message for each to the producer.
func Attach(rt *runtime.Runtime, handle Handle, events map[string]EventHandle) (*Proxy, error) {
	pathBuilder := partialrestart.NewPathBuilder(handle.ServiceID, handle.Platform)

	usage, err := partialrestart.AcquireShared(pathBuilder.UsageMarkerPath(handle.InstanceID))
	if err != nil {
		return nil, fmt.Errorf("proxy: attach: %w", err)
	}

	p := &Proxy{rt: rt, handle: handle, usage: usage, events: make(map[string]*eventSubscription)}

	var eg errgroup.Group
	for name, eh := range events {
		name, eh := name, eh
		eg.Go(func() error { return p.subscribeLocked(name, eh) })
	}
	if err := eg.Wait(); err != nil {
		p.detachPartial()
		return nil, err
	}

	return p, nil
}

func (p *Proxy) subscribeLocked(name string, eh EventHandle) error {
	logIndex, err := eh.Control.LogSet.Register()
	if err != nil {
		return mwerrors.New(mwerrors.MaxSubscribersExceeded, "proxy: subscribe to %q: %v", name, err)
	}

	log := eh.Control.LogSet.Log(logIndex)
	if !log.IsEmpty() {
		// A prior incarnation of a subscriber claimed this same log index
		// and crashed before cleanly releasing it (spec §4.6 step 5).
		eh.Control.RollbackTransactions(log)
		p.rt.Metrics.RollbackPerformed(name)
	}

	sub := &eventSubscription{id: eh.ID, control: eh.Control, storage: eh.Storage, logIndex: logIndex}
	p.mu.Lock()
	p.events[name] = sub
	p.mu.Unlock()

	sender := p.rt.Messaging.SenderFor(p.handle.ProducerLevel, p.handle.ProducerPID)
	msg := messaging.Message{
		Kind:       messaging.Subscribe,
		ServiceID:  p.handle.ServiceID,
		InstanceID: p.handle.InstanceID,
		EventID:    uint16(eh.ID),
		SenderPID:  p.rt.PID(),
		LogIndex:   logIndex,
	}
	if err := sender.Send(msg); err != nil {
		return fmt.Errorf("proxy: send subscribe for %q: %w", name, err)
	}
	return nil
}

// GetNewSamples acquires up to maxN references to samples newer than this
// event's high-water mark, advancing the mark to the newest timestamp
// acquired (spec §4.6 "get_new_samples").
func (p *Proxy) GetNewSamples(eventName string, maxN int) ([]*Sample, error) {
	p.mu.Lock()
	sub, ok := p.events[eventName]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proxy: get_new_samples: unknown event %q", eventName)
	}

	sub.mu.Lock()
	lastSeen := sub.lastSeen
	sub.mu.Unlock()

	acquired, err := sub.control.AcquireNewest(sub.logIndex, lastSeen, maxN)
	if err != nil {
		return nil, err
	}

	samples := make([]*Sample, 0, len(acquired))
	var newest uint32
	for _, a := range acquired {
		payload, err := sub.storage.ReadSlot(a.Index)
		if err != nil {
			sub.control.ReleaseSlot(sub.logIndex, a.Index)
			continue
		}
		samples = append(samples, &Sample{proxy: p, eventName: eventName, slotIndex: a.Index, Timestamp: a.Timestamp, Payload: payload})
		if a.Timestamp > newest {
			newest = a.Timestamp
		}
		p.rt.Metrics.ReferenceAcquired(eventName)
	}

	if newest > 0 {
		sub.mu.Lock()
		if newest > sub.lastSeen {
			sub.lastSeen = newest
		}
		sub.mu.Unlock()
	}
	return samples, nil
}

func (p *Proxy) releaseSlot(eventName string, slotIndex int) error {
	p.mu.Lock()
	sub, ok := p.events[eventName]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("proxy: release: unknown event %q", eventName)
	}
	if err := sub.control.ReleaseSlot(sub.logIndex, slotIndex); err != nil {
		return err
	}
	p.rt.Metrics.ReferenceReleased(eventName)
	return nil
}

// unsubscribeLocked unregisters one event's transaction log and notifies
// the producer (spec §4.6 "On proxy destruction: unsubscribe via control
// messages ... unregister the transaction log").
func (p *Proxy) unsubscribeLocked(name string, sub *eventSubscription) {
	msg := messaging.Message{
		Kind:       messaging.Unsubscribe,
		ServiceID:  p.handle.ServiceID,
		InstanceID: p.handle.InstanceID,
		EventID:    uint16(sub.id),
		SenderPID:  p.rt.PID(),
		LogIndex:   sub.logIndex,
	}
	sender := p.rt.Messaging.SenderFor(p.handle.ProducerLevel, p.handle.ProducerPID)
	if err := sender.Send(msg); err != nil {
		p.rt.Log.Debug().Err(err).Str("event", name).Msg("proxy: unsubscribe notification not delivered")
	}
	sub.control.LogSet.Unregister(sub.logIndex)
}

func (p *Proxy) detachPartial() {
	p.mu.Lock()
	events := p.events
	p.events = nil
	p.mu.Unlock()
	for name, sub := range events {
		p.unsubscribeLocked(name, sub)
	}
	if p.usage != nil {
		p.usage.Release()
	}
}

// Detach runs spec §4.6's teardown sequence: unsubscribe every event,
// unregister its transaction log, and release the usage marker.
func (p *Proxy) Detach() error {
	p.detachPartial()
	return nil
}
