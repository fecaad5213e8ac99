package messaging

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Sender delivers control-plane Messages to one peer process. Send may
// legitimately block the caller unless NonBlockingGuarantee reports true
// (spec §4.4 "Mixed-criticality rule").
type Sender interface {
	Send(Message) error
	NonBlockingGuarantee() bool
	Close() error
}

// socketSender dials a Unix domain socket named after the target's
// message queue name and streams newline-delimited JSON messages to it.
// Grounded on _examples/AlephTX-aleph-tx/feeder/ipc/publisher.go's
// dial/reconnect/retry discipline, generalized from a single fixed path
// to one socket per (quality, peer-pid) pair via QueueName.
type socketSender struct {
	path string

	mu   sync.Mutex
	conn net.Conn
}

// NewSocketSender constructs a Sender that connects to the Unix socket at
// the given path. Dialing is best-effort and deferred to the first Send:
// the peer's receiver may not be listening yet when a sender is cached.
func NewSocketSender(path string) Sender {
	return &socketSender{path: path}
}

func (s *socketSender) dialLocked() error {
	conn, err := net.DialTimeout("unix", s.path, 200*time.Millisecond)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Send blocks for as long as the underlying socket write blocks — true
// for a socketSender in isolation; callers on the ASIL-B side must use
// NonBlockingSender to wrap one that targets a QM peer (spec §4.4).
func (s *socketSender) Send(msg Message) error {
	encoded, err := msg.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if s.conn == nil {
			if err := s.dialLocked(); err != nil {
				lastErr = err
				continue
			}
		}
		if _, err := s.conn.Write(encoded); err != nil {
			s.conn.Close()
			s.conn = nil
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("messaging: send to %s: %w", s.path, lastErr)
}

func (s *socketSender) NonBlockingGuarantee() bool { return false }

func (s *socketSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
