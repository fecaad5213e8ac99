package messaging_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mwerrors "github.com/eclipse-score/inc-mw-com-sub004/errors"
	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
)

// blockingSender's Send blocks until released, modeling scenario S6's
// "wrapped sender whose Send blocks for 10 seconds".
type blockingSender struct {
	mu      sync.Mutex
	release chan struct{}
	sent    []messaging.Message
}

func newBlockingSender() *blockingSender {
	return &blockingSender{release: make(chan struct{})}
}

func (b *blockingSender) Send(msg messaging.Message) error {
	<-b.release
	b.mu.Lock()
	b.sent = append(b.sent, msg)
	b.mu.Unlock()
	return nil
}

func (b *blockingSender) NonBlockingGuarantee() bool { return false }
func (b *blockingSender) Close() error               { return nil }

func TestNonBlockingSenderBoundsQueueSize(t *testing.T) {
	// Scenario S6: a wrapped sender that blocks and a ring of size 4 — four
	// enqueues succeed immediately, the fifth returns a transient failure.
	wrapped := newBlockingSender()
	sender := messaging.NewNonBlockingSender(wrapped, 4)
	defer func() {
		close(wrapped.release)
		sender.Close()
	}()

	// The worker pulls the first message off the queue and blocks
	// delivering it, but the in-flight count it holds for that message is
	// still counted against the ring, so exactly 4 sends succeed in total
	// and the 5th fails immediately rather than eventually.
	for i := 0; i < 4; i++ {
		require.NoError(t, sender.Send(messaging.Message{Kind: messaging.EventUpdated, EventID: uint16(i)}))
	}

	err := sender.Send(messaging.Message{Kind: messaging.EventUpdated, EventID: 99})
	require.Error(t, err)
	var mwErr *mwerrors.Error
	require.ErrorAs(t, err, &mwErr)
	require.Equal(t, mwerrors.SendQueueFull, mwErr.Kind)
}

func TestNonBlockingSenderNeverBlocksCaller(t *testing.T) {
	wrapped := newBlockingSender()
	sender := messaging.NewNonBlockingSender(wrapped, 4)
	defer func() {
		close(wrapped.release)
		sender.Close()
	}()

	done := make(chan struct{})
	go func() {
		_ = sender.Send(messaging.Message{Kind: messaging.Subscribe})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked the caller")
	}
}

func TestNonBlockingSenderPanicsAboveUpperLimit(t *testing.T) {
	wrapped := newBlockingSender()
	require.Panics(t, func() {
		messaging.NewNonBlockingSender(wrapped, messaging.QueueSizeUpperLimit+1)
	})
}

func TestNonBlockingSenderNonBlockingGuaranteeTrue(t *testing.T) {
	wrapped := newBlockingSender()
	sender := messaging.NewNonBlockingSender(wrapped, 2)
	defer func() {
		close(wrapped.release)
		sender.Close()
	}()
	require.True(t, sender.NonBlockingGuarantee())
}
