package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifestParsesHandEditedJSONC(t *testing.T) {
	path := writeFile(t, `{
		// deployment for the speed event
		"serializationVersion": 1,
		"instanceId": {"serviceId": 1, "instanceId": 16},
		"events": {
			"speed": {
				"numberOfSampleSlots": 4,
				"maxSubscribers": 2,
				"maxConcurrentAllocations": 1,
				"enforceMaxSamples": true,
			},
		},
	}`)

	m, err := config.LoadManifest(path)
	require.NoError(t, err)

	want := config.ServiceInstanceManifest{
		SerializationVersion: 1,
		InstanceID:           config.InstanceID{ServiceID: 1, InstanceID: 16},
		Events: map[string]config.EventInstanceDeployment{
			"speed": {NumberOfSampleSlots: 4, MaxSubscribers: 2, MaxConcurrentAllocations: 1, EnforceMaxSamples: true},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("parsed manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestRejectsUnsupportedVersion(t *testing.T) {
	path := writeFile(t, `{"serializationVersion": 99, "instanceId": {"serviceId": 1, "instanceId": 1}, "events": {}}`)
	_, err := config.LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsZeroSlotCount(t *testing.T) {
	path := writeFile(t, `{
		"serializationVersion": 1,
		"instanceId": {"serviceId": 1, "instanceId": 1},
		"events": {"speed": {"numberOfSampleSlots": 0, "maxConcurrentAllocations": 1}}
	}`)
	_, err := config.LoadManifest(path)
	require.Error(t, err)
}

func TestLoadTypeDeploymentRoundTrip(t *testing.T) {
	path := writeFile(t, `{"serviceId": 291, "events": {"speed": 1, "temperature": 2}}`)
	td, err := config.LoadTypeDeployment(path)
	require.NoError(t, err)
	require.EqualValues(t, 291, td.ServiceID)
	require.Equal(t, uint8(1), td.Events["speed"])
}
