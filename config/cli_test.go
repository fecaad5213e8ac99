package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
)

func TestParseCLIReturnsManifestPath(t *testing.T) {
	path, err := config.ParseCLI([]string{"-service_instance_manifest", "/etc/lola/manifest.json"})
	require.NoError(t, err)
	require.Equal(t, "/etc/lola/manifest.json", path)
}

func TestParseCLIFailsOnMissingFlag(t *testing.T) {
	_, err := config.ParseCLI(nil)
	require.Error(t, err)
}

func TestParseCLIFailsOnEmptyValue(t *testing.T) {
	_, err := config.ParseCLI([]string{"-service_instance_manifest", ""})
	require.Error(t, err)
}
