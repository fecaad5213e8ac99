package runtime

import (
	"sync"

	"github.com/eclipse-score/inc-mw-com-sub004/shm"
)

// registeredEvent is one service instance's event, tracked so the Runtime
// can run rollback_stale_logs (spec §4.3) on behalf of a crashed
// subscriber during partial-restart recovery.
type registeredEvent struct {
	control *shm.EventDataControl
	isLive  func(logIndex int) bool
}

// RollbackRegistry tracks every EventDataControl instantiated in this
// process (skeleton side, across however many service instances are
// offered) so a recovery sweep can roll back stale transaction logs left
// by subscribers that crashed without releasing their references (spec
// §4.7 "rollback registry", §4.5 step 5 / §4.6 step 5).
type RollbackRegistry struct {
	mu     sync.Mutex
	events map[string]registeredEvent
}

// NewRollbackRegistry constructs an empty registry.
func NewRollbackRegistry() *RollbackRegistry {
	return &RollbackRegistry{events: make(map[string]registeredEvent)}
}

// Register tracks control under key (typically "<service-id>:<instance-id>:<event-name>"),
// along with isLive, a callback the registry calls with each claimed log
// index to determine whether its owning subscriber is still alive.
func (r *RollbackRegistry) Register(key string, control *shm.EventDataControl, isLive func(logIndex int) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[key] = registeredEvent{control: control, isLive: isLive}
}

// Unregister drops key, e.g. once its service instance has stopped
// offering.
func (r *RollbackRegistry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, key)
}

// Sweep runs rollback_stale_logs (spec §4.3) against every registered
// event, reclaiming log slots held by subscribers that are no longer
// live.
func (r *RollbackRegistry) Sweep() {
	r.mu.Lock()
	snapshot := make([]registeredEvent, 0, len(r.events))
	for _, e := range r.events {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		e.control.RollbackStaleLogs(e.isLive)
	}
}
