package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

func TestGlobalConfigurationDefaultsValidate(t *testing.T) {
	cfg, err := config.LoadGlobalConfiguration()
	require.NoError(t, err)
	require.Equal(t, config.DefaultMinNumMessagesRxQueue, cfg.MinNumMessagesRx)
	require.Equal(t, config.DefaultMinNumMessagesTxQueue, cfg.MinNumMessagesTx)
	require.Equal(t, quality.QM, cfg.QualityLevel())
}

func TestGlobalConfigurationASILOverride(t *testing.T) {
	t.Setenv("LOLA_PROCESS_QUALITY_LEVEL", "ASIL_B")
	cfg, err := config.LoadGlobalConfiguration()
	require.NoError(t, err)
	require.Equal(t, quality.ASILB, cfg.QualityLevel())
}

func TestGlobalConfigurationRejectsInvalidQualityLevel(t *testing.T) {
	t.Setenv("LOLA_PROCESS_QUALITY_LEVEL", "bogus")
	_, err := config.LoadGlobalConfiguration()
	require.Error(t, err)
}

func TestGlobalConfigurationRejectsInvalidShmMode(t *testing.T) {
	t.Setenv("LOLA_PROCESS_QUALITY_LEVEL", "QM")
	t.Setenv("LOLA_SHM_SIZE_CALC_MODE", "kBogus")
	_, err := config.LoadGlobalConfiguration()
	require.Error(t, err)
}
