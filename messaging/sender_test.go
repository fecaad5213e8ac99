package messaging_test

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
)

func TestSocketSenderDeliversMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()

	received := make(chan messaging.Message, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		msg, err := messaging.Decode(line[:len(line)-1])
		if err == nil {
			received <- msg
		}
	}()

	sender := messaging.NewSocketSender(path)
	defer sender.Close()

	want := messaging.Message{Kind: messaging.Subscribe, ServiceID: 1, InstanceID: 2, SenderPID: 3}
	require.NoError(t, sender.Send(want))

	select {
	case got := <-received:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestSocketSenderNonBlockingGuaranteeFalse(t *testing.T) {
	sender := messaging.NewSocketSender(filepath.Join(t.TempDir(), "sock"))
	require.False(t, sender.NonBlockingGuarantee())
}
