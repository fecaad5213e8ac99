package shm

import (
	"fmt"
	"sync"
)

// EventID identifies one event within a service type (spec §6 "Type
// deployment keys": events map name → 8-bit id — widened to uint16 here to
// leave headroom for fields, which share the same id space in practice).
type EventID uint16

// ServiceDataControl maps an event id to its EventDataControl. One
// instance lives inside each of the service's control segments (QM and,
// for an ASIL-B producer, also the -b segment); spec §3 "Service data
// control / storage".
type ServiceDataControl struct {
	mu     sync.RWMutex
	events map[EventID]*EventDataControl
}

// NewServiceDataControl constructs an empty control map.
func NewServiceDataControl() *ServiceDataControl {
	return &ServiceDataControl{events: make(map[EventID]*EventDataControl)}
}

// RegisterEvent installs the control structure for id, failing if one is
// already registered (an event may only be registered once per service
// instance lifetime, spec §4.5 step 5 "register_event").
func (s *ServiceDataControl) RegisterEvent(id EventID, control *EventDataControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[id]; exists {
		return fmt.Errorf("shm: event %d already registered", id)
	}
	s.events[id] = control
	return nil
}

// Event returns the control structure for id, or ok=false if unregistered.
func (s *ServiceDataControl) Event(id EventID) (*EventDataControl, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.events[id]
	return c, ok
}

// EventIDs returns every registered event id, in no particular order.
func (s *ServiceDataControl) EventIDs() []EventID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventID, 0, len(s.events))
	for id := range s.events {
		out = append(out, id)
	}
	return out
}

// ServiceDataStorage maps an event id to its EventDataStorage. Lives in the
// (single, writer-owned) data segment, separate from the control segment(s)
// (spec §3 "Service data control / storage").
type ServiceDataStorage struct {
	mu     sync.RWMutex
	events map[EventID]*EventDataStorage
}

// NewServiceDataStorage constructs an empty storage map.
func NewServiceDataStorage() *ServiceDataStorage {
	return &ServiceDataStorage{events: make(map[EventID]*EventDataStorage)}
}

// RegisterEvent installs the storage for id.
func (s *ServiceDataStorage) RegisterEvent(id EventID, storage *EventDataStorage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[id]; exists {
		return fmt.Errorf("shm: event %d storage already registered", id)
	}
	s.events[id] = storage
	return nil
}

// Event returns the storage for id, or ok=false if unregistered.
func (s *ServiceDataStorage) Event(id EventID) (*EventDataStorage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.events[id]
	return st, ok
}
