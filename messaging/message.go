// Package messaging implements the side-channel control plane (spec §4.4):
// subscribe / unsubscribe / event-update / disconnect notifications
// exchanged between skeleton and proxy processes over OS message queues,
// plus the mixed-criticality non-blocking sender wrapper that keeps an
// ASIL-B sender from ever blocking on a QM peer.
//
// Grounded on _examples/original_source/mw/com/message_passing/non_blocking_sender.{h,cpp}
// for the wrapper's queue/executor discipline, and on
// _examples/original_source/mw/com/impl/bindings/lola/messaging/message_passing_control.{h,cpp}
// for the per-(quality,pid) sender cache. The transport itself is modeled
// on the teacher's Unix-socket publisher
// (_examples/AlephTX-aleph-tx/feeder/ipc/publisher.go), generalized from a
// single hardcoded socket path to the queue-name scheme spec §4.4 requires.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

// Kind enumerates the control notifications exchanged over the side
// channel (spec §4.4 "Purpose").
type Kind uint8

const (
	Subscribe Kind = iota
	Unsubscribe
	EventUpdated
	Disconnect
)

func (k Kind) String() string {
	switch k {
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	case EventUpdated:
		return "event_updated"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Message is the envelope carried over a message queue: which service
// instance and event the notification concerns, and the sending process's
// id so the receiver can route a reply.
type Message struct {
	Kind       Kind   `json:"kind"`
	ServiceID  uint16 `json:"service_id"`
	InstanceID uint32 `json:"instance_id"`
	EventID    uint16 `json:"event_id,omitempty"`
	SenderPID  int32  `json:"sender_pid"`
	// LogIndex is the transaction-log slot a Subscribe message's sender
	// registered for the named event (spec §4.3), so the producer can
	// correlate a log index with the subscriber process that owns it
	// during rollback_stale_logs (spec §4.7 "rollback registry").
	LogIndex int `json:"log_index,omitempty"`
}

// Encode serializes a Message for transport. Queues here are modeled as
// newline-delimited JSON, matching the teacher's publisher framing.
func (m Message) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("messaging: encode message: %w", err)
	}
	return append(raw, '\n'), nil
}

// Decode parses a Message previously produced by Encode (without its
// trailing newline).
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("messaging: decode message: %w", err)
	}
	return m, nil
}

// QueueName returns the literal OS message queue name for a given
// criticality level and peer process id (spec §4.4 "Queue names":
// "/LoLa_<peer-pid>_QM" or "_ASIL_B").
func QueueName(level quality.Type, peerPID int32) string {
	suffix := "QM"
	if level == quality.ASILB {
		suffix = "ASIL_B"
	}
	return fmt.Sprintf("/LoLa_%d_%s", peerPID, suffix)
}
