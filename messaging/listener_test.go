package messaging_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
)

func TestListenerDispatchesDecodedMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listener.sock")

	received := make(chan messaging.Message, 1)
	ln, err := messaging.Listen(path, func(m messaging.Message) {
		received <- m
	})
	require.NoError(t, err)
	defer ln.Close()

	sender := messaging.NewSocketSender(path)
	defer sender.Close()

	want := messaging.Message{Kind: messaging.Subscribe, ServiceID: 7, InstanceID: 1, EventID: 2, SenderPID: 99}
	require.NoError(t, sender.Send(want))

	select {
	case got := <-received:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listener.sock")

	_, err := messaging.Listen(path, func(messaging.Message) {})
	require.NoError(t, err)
	// Simulate a crash: the first listener is never closed, so its socket
	// file is still at path when Listen is called again below.

	second, err := messaging.Listen(path, func(messaging.Message) {})
	require.NoError(t, err)
	defer second.Close()
}
