package messaging

import (
	"os"
	"sync"

	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

// defaultNonBlockingQueueSize is the ring size a Control allocates for
// non-blocking senders when the caller doesn't configure one explicitly.
const defaultNonBlockingQueueSize = 16

// Control is the per-process message-passing facade (spec §4.4 "Per-process
// state"): it lazily constructs and caches one Sender per (quality level,
// peer pid), wrapping it in a NonBlockingSender whenever this process runs
// ASIL-B and the peer is QM. Grounded on
// _examples/original_source/mw/com/impl/bindings/lola/messaging/message_passing_control.{h,cpp}:
// two maps + two mutexes (one per criticality class), kept here as two
// sync.Maps with one mutex each; mapFor selects the pair for a quality
// level so the lookup and construction logic is written once.
type Control struct {
	ownLevel         quality.Type
	queueSize        int
	socketDir        string

	muQM   sync.Mutex
	sender sync.Map // map[int32]Sender, QM peers

	muASIL   sync.Mutex
	asilOnly sync.Map // map[int32]Sender, ASIL-B peers
}

// NewControl constructs a Control for a process running at ownLevel,
// whose own-process message queues are rooted at socketDir (a directory
// holding one Unix socket file per QueueName — substituting for the
// original's OS message-queue namespace, which Go does not expose
// directly). queueSize configures the ring used for non-blocking senders;
// 0 selects defaultNonBlockingQueueSize.
func NewControl(ownLevel quality.Type, socketDir string, queueSize int) *Control {
	if queueSize <= 0 {
		queueSize = defaultNonBlockingQueueSize
	}
	return &Control{ownLevel: ownLevel, queueSize: queueSize, socketDir: socketDir}
}

// NodeIdentifier returns this process's own node id (its pid), mirroring
// IMessagePassingControl::GetNodeIdentifier.
func (c *Control) NodeIdentifier() int32 {
	return int32(os.Getpid())
}

// OwnQueuePath returns the filesystem path of this process's own listening
// socket (spec §4.4 "Queue names"), rooted at the socketDir passed to
// NewControl.
func (c *Control) OwnQueuePath(own quality.Type) string {
	return c.socketDir + QueueName(own, c.NodeIdentifier())
}

// SenderFor returns the cached Sender targeting peerPID at the given
// quality level, constructing and caching one on first use (spec §4.4
// "Senders are lazily constructed and cached; creating a sender may
// block, so the factory is guarded by a class-specific mutex").
func (c *Control) SenderFor(level quality.Type, peerPID int32) Sender {
	mu, m := c.mapFor(level)
	if v, ok := m.Load(peerPID); ok {
		return v.(Sender)
	}

	mu.Lock()
	defer mu.Unlock()
	if v, ok := m.Load(peerPID); ok {
		return v.(Sender)
	}

	s := c.newSender(level, peerPID)
	m.Store(peerPID, s)
	return s
}

// RemoveSender drops and closes the cached sender for (level, peerPID),
// e.g. once a peer is known to have disconnected.
func (c *Control) RemoveSender(level quality.Type, peerPID int32) {
	_, m := c.mapFor(level)
	if v, ok := m.LoadAndDelete(peerPID); ok {
		_ = v.(Sender).Close()
	}
}

func (c *Control) mapFor(level quality.Type) (*sync.Mutex, *sync.Map) {
	if level == quality.ASILB {
		return &c.muASIL, &c.asilOnly
	}
	return &c.muQM, &c.sender
}

// newSender builds the raw socket sender for (level, peerPID) and wraps it
// in a NonBlockingSender exactly when the mixed-criticality rule applies:
// this process is ASIL-B, the target is QM, and the raw sender gives no
// native non-blocking guarantee (spec §4.4 "Mixed-criticality rule").
func (c *Control) newSender(level quality.Type, peerPID int32) Sender {
	name := c.socketDir + QueueName(level, peerPID)
	raw := NewSocketSender(name)

	if c.ownLevel == quality.ASILB && level == quality.QM && !raw.NonBlockingGuarantee() {
		return NewNonBlockingSender(raw, c.queueSize)
	}
	return raw
}
