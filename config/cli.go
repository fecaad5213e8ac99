package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ParseCLI parses the single required LoLa CLI flag (spec §6 "CLI": "A
// single required option on executables: -service_instance_manifest
// <path>. Absence or missing value is fatal."), grounded on
// _examples/calvinalkan-agent-task's pflag-based command parsing with
// fatal-on-missing-required-value semantics.
func ParseCLI(args []string) (manifestPath string, err error) {
	fs := pflag.NewFlagSet("lola", pflag.ContinueOnError)
	path := fs.String("service_instance_manifest", "", "path to the service instance deployment manifest")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("config: parse command line: %w", err)
	}
	if *path == "" {
		return "", fmt.Errorf("config: -service_instance_manifest is required")
	}
	return *path, nil
}
