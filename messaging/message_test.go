package messaging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

func TestQueueNameFormat(t *testing.T) {
	require.Equal(t, "/LoLa_4242_QM", messaging.QueueName(quality.QM, 4242))
	require.Equal(t, "/LoLa_4242_ASIL_B", messaging.QueueName(quality.ASILB, 4242))
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := messaging.Message{
		Kind:       messaging.EventUpdated,
		ServiceID:  0x1234,
		InstanceID: 16,
		EventID:    3,
		SenderPID:  777,
	}
	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := messaging.Decode(encoded[:len(encoded)-1])
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}
