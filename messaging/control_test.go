package messaging_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

func listenOn(t *testing.T, path string) net.Listener {
	t.Helper()
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return l
}

func TestSenderForCachesByPeerAndLevel(t *testing.T) {
	dir := t.TempDir() + "/"
	listenOn(t, dir+messaging.QueueName(quality.QM, 1))

	c := messaging.NewControl(quality.QM, dir, 0)
	s1 := c.SenderFor(quality.QM, 1)
	s2 := c.SenderFor(quality.QM, 1)
	require.Same(t, s1, s2)
}

func TestSenderForWrapsWhenASILSendsToQM(t *testing.T) {
	dir := t.TempDir() + "/"
	listenOn(t, dir+messaging.QueueName(quality.QM, 2))

	c := messaging.NewControl(quality.ASILB, dir, 4)
	s := c.SenderFor(quality.QM, 2)
	require.True(t, s.NonBlockingGuarantee())
}

func TestSenderForDoesNotWrapASILToASIL(t *testing.T) {
	dir := t.TempDir() + "/"
	listenOn(t, dir+messaging.QueueName(quality.ASILB, 3))

	c := messaging.NewControl(quality.ASILB, dir, 4)
	s := c.SenderFor(quality.ASILB, 3)
	require.False(t, s.NonBlockingGuarantee())
}

func TestRemoveSenderDropsCacheEntry(t *testing.T) {
	dir := t.TempDir() + "/"
	listenOn(t, dir+messaging.QueueName(quality.QM, 5))

	c := messaging.NewControl(quality.QM, dir, 0)
	s1 := c.SenderFor(quality.QM, 5)
	c.RemoveSender(quality.QM, 5)
	s2 := c.SenderFor(quality.QM, 5)
	require.NotSame(t, s1, s2)
}

func TestNodeIdentifierIsOwnPID(t *testing.T) {
	c := messaging.NewControl(quality.QM, filepath.Join(t.TempDir()), 0)
	require.EqualValues(t, os.Getpid(), c.NodeIdentifier())
}
