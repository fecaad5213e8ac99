package skeleton_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
	"github.com/eclipse-score/inc-mw-com-sub004/partialrestart"
	"github.com/eclipse-score/inc-mw-com-sub004/runtime"
	"github.com/eclipse-score/inc-mw-com-sub004/shm"
	"github.com/eclipse-score/inc-mw-com-sub004/skeleton"
)

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	gcfg := config.GlobalConfiguration{
		ProcessQualityLevel: "QM",
		MinNumMessagesRx:    10,
		MinNumMessagesTx:    20,
		ShmSizeCalcMode:     config.ShmSizeCalcModeSimulation,
	}
	return runtime.New(gcfg, filepath.Join(t.TempDir(), "sockets"), runtime.NewLogger(false, 0), runtime.NoopCollector{})
}

func TestOfferServiceCreatesSegmentsAndSendPublishes(t *testing.T) {
	rt := newTestRuntime(t)

	opts := skeleton.Options{ServiceID: 0xBEEF, InstanceID: 42, Platform: partialrestart.Generic}
	specs := []skeleton.EventSpec{
		{Name: "speed", ID: 1, NumberOfSampleSlots: 4, SampleSize: 8, MaxSubscribers: 2, MaxConcurrentAllocations: 2, EnforceMaxSamples: true},
	}

	svc, err := skeleton.OfferService(rt, opts, specs)
	require.NoError(t, err)
	defer svc.StopOffer()

	payload := make([]byte, 8)
	copy(payload, "sample01")
	require.NoError(t, svc.Send("speed", payload))
	require.NoError(t, svc.Send("speed", payload))

	require.Error(t, svc.Send("unknown-event", payload))
}

func TestEventByIDResolvesSameControlAsEventControl(t *testing.T) {
	rt := newTestRuntime(t)

	opts := skeleton.Options{ServiceID: 0xD00D, InstanceID: 1, Platform: partialrestart.Generic}
	specs := []skeleton.EventSpec{
		{Name: "speed", ID: 7, NumberOfSampleSlots: 2, SampleSize: 4, MaxSubscribers: 1, MaxConcurrentAllocations: 1, EnforceMaxSamples: true},
	}
	svc, err := skeleton.OfferService(rt, opts, specs)
	require.NoError(t, err)
	defer svc.StopOffer()

	id, control, storage, ok := svc.EventControl("speed")
	require.True(t, ok)

	byID, byIDStorage, ok := svc.EventByID(id)
	require.True(t, ok)
	require.Same(t, control, byID)
	require.Same(t, storage, byIDStorage)

	_, _, ok = svc.EventByID(999)
	require.False(t, ok)

	require.Equal(t, []shm.EventID{7}, svc.EventIDs())
}

func TestOfferServiceRejectsDuplicateProducer(t *testing.T) {
	rt := newTestRuntime(t)

	opts := skeleton.Options{ServiceID: 0xCAFE, InstanceID: 7, Platform: partialrestart.Generic}
	specs := []skeleton.EventSpec{
		{Name: "e", ID: 1, NumberOfSampleSlots: 2, SampleSize: 4, MaxSubscribers: 1, MaxConcurrentAllocations: 1, EnforceMaxSamples: true},
	}

	first, err := skeleton.OfferService(rt, opts, specs)
	require.NoError(t, err)
	defer first.StopOffer()

	_, err = skeleton.OfferService(rt, opts, specs)
	require.Error(t, err)
}
