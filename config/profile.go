package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RuntimeProfile carries operator tuning knobs that are not part of the
// deployment manifest: a shared-memory/partial-restart directory override
// for tests, default queue sizes, and the strict-permission toggle (spec
// §10.3). Parsed from TOML, directly continuing the teacher's own
// feeder/config/config.go use of pelletier/go-toml/v2 for config.toml.
type RuntimeProfile struct {
	ShmDirOverride            string `toml:"shm_dir_override"`
	PartialRestartDirOverride string `toml:"partial_restart_dir_override"`
	DefaultRxQueueSize        int    `toml:"default_rx_queue_size"`
	DefaultTxQueueSize        int    `toml:"default_tx_queue_size"`
	StrictPermissions         bool   `toml:"strict_permissions"`
}

// DefaultRuntimeProfile returns a profile with the spec's documented
// defaults (spec §6 "defaults 10 and 20").
func DefaultRuntimeProfile() RuntimeProfile {
	return RuntimeProfile{
		DefaultRxQueueSize: DefaultMinNumMessagesRxQueue,
		DefaultTxQueueSize: DefaultMinNumMessagesTxQueue,
	}
}

// LoadRuntimeProfile reads a runtime.toml at path, overlaying it onto
// DefaultRuntimeProfile. A missing file is not an error: the runtime
// profile is entirely optional operator tuning.
func LoadRuntimeProfile(path string) (RuntimeProfile, error) {
	profile := DefaultRuntimeProfile()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile, nil
		}
		return RuntimeProfile{}, fmt.Errorf("config: read runtime profile %s: %w", path, err)
	}

	if err := toml.Unmarshal(raw, &profile); err != nil {
		return RuntimeProfile{}, fmt.Errorf("config: parse runtime profile %s: %w", path, err)
	}
	return profile, nil
}
