package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/eclipse-score/inc-mw-com-sub004/quality"
)

// ShmSizeCalcMode mirrors original_source/mw/com/impl/configuration/shm_size_calc_mode.h's
// two-valued enum at the configuration layer; shm.CalcMode is its runtime
// counterpart (kept as a separate type so the config package doesn't
// import shm, avoiding a dependency cycle with shm's own use of config
// values at call sites).
type ShmSizeCalcMode string

const (
	ShmSizeCalcModeEstimation ShmSizeCalcMode = "kEstimation"
	ShmSizeCalcModeSimulation ShmSizeCalcMode = "kSimulation"
)

// DefaultMinNumMessagesRxQueue / DefaultMinNumMessagesTxQueue are the
// global configuration defaults for the messaging control plane's queue
// sizes (spec §6 "Global-config keys ... defaults 10 and 20").
const (
	DefaultMinNumMessagesRxQueue = 10
	DefaultMinNumMessagesTxQueue = 20
)

// GlobalConfiguration holds process-wide settings not tied to any single
// service instance (spec §6 "Global-config keys", §11
// "GlobalConfiguration"): process quality level, message queue sizes, and
// the shared-memory size calculation mode. Overridable via environment
// variables, grounded on
// _examples/adred-codev-ws_poc/ws/config.go's caarlos0/env + godotenv
// pattern, itself continuing the teacher's own environment-override style
// in feeder/main.go.
type GlobalConfiguration struct {
	ProcessQualityLevel string          `env:"LOLA_PROCESS_QUALITY_LEVEL" envDefault:"QM"`
	MinNumMessagesRx    int             `env:"LOLA_MIN_NUM_MESSAGES_RX_QUEUE" envDefault:"10"`
	MinNumMessagesTx    int             `env:"LOLA_MIN_NUM_MESSAGES_TX_QUEUE" envDefault:"20"`
	ShmSizeCalcMode     ShmSizeCalcMode `env:"LOLA_SHM_SIZE_CALC_MODE" envDefault:"kEstimation"`
	PartialRestartDir   string          `env:"LOLA_PARTIAL_RESTART_DIR"`
	ShmDir              string          `env:"LOLA_SHM_DIR"`
}

// LoadGlobalConfiguration optionally loads a local .env file (exactly as
// the teacher's feeder lists github.com/joho/godotenv as a dependency for
// local/dev bootstrapping) and then decodes the process environment into
// a GlobalConfiguration, applying the documented defaults for any unset
// variable.
func LoadGlobalConfiguration() (GlobalConfiguration, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is the expected case in production deployments;
		// only a malformed file (not "missing") should be surfaced.
		if !errors.Is(err, os.ErrNotExist) {
			return GlobalConfiguration{}, fmt.Errorf("config: load .env: %w", err)
		}
	}

	var cfg GlobalConfiguration
	if err := env.Parse(&cfg); err != nil {
		return GlobalConfiguration{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return GlobalConfiguration{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration with an unrecognized quality level or
// size-calc mode, both of which spec §7 treats as fatal configuration
// errors.
func (c GlobalConfiguration) Validate() error {
	switch c.ProcessQualityLevel {
	case "QM", "ASIL_B", "ASIL-B":
	default:
		return fmt.Errorf("config: invalid LOLA_PROCESS_QUALITY_LEVEL %q", c.ProcessQualityLevel)
	}
	switch c.ShmSizeCalcMode {
	case ShmSizeCalcModeEstimation, ShmSizeCalcModeSimulation:
	default:
		return fmt.Errorf("config: invalid LOLA_SHM_SIZE_CALC_MODE %q", c.ShmSizeCalcMode)
	}
	return nil
}

func (c GlobalConfiguration) qualityType() quality.Type {
	if c.ProcessQualityLevel == "ASIL_B" || c.ProcessQualityLevel == "ASIL-B" {
		return quality.ASILB
	}
	return quality.QM
}

// QualityLevel returns the parsed process quality level.
func (c GlobalConfiguration) QualityLevel() quality.Type { return c.qualityType() }
