// Package config parses the JSON deployment manifest (spec §6
// "Configuration (JSON manifests)"), the process-wide GlobalConfiguration
// (spec §11, grounded on original_source/.../global_configuration.h), and
// two ambient layers the teacher itself carries: a local, non-normative
// runtime profile (TOML, mirroring the teacher's feeder/config/config.go)
// and environment-variable overrides loaded the way feeder/main.go loads
// ALEPH_FEEDER_CONFIG/ALEPH_SHM.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// InstanceID identifies one deployed instance of a service type (spec §6
// "instanceId").
type InstanceID struct {
	ServiceID  uint16 `json:"serviceId"`
	InstanceID uint32 `json:"instanceId"`
}

// EventInstanceDeployment configures one event within a service-instance
// deployment (spec §6 "Event-instance keys").
type EventInstanceDeployment struct {
	NumberOfSampleSlots      int  `json:"numberOfSampleSlots"`
	MaxSubscribers           int  `json:"maxSubscribers"`
	MaxConcurrentAllocations int  `json:"maxConcurrentAllocations"`
	EnforceMaxSamples        bool `json:"enforceMaxSamples"`
}

// FieldInstanceDeployment configures one field within a service-instance
// deployment. Fields share the event slot/subscriber model (spec §6
// "fields").
type FieldInstanceDeployment struct {
	EventInstanceDeployment
}

// ServiceInstanceManifest is the top-level deployment manifest for one
// service instance (spec §6 "Recognized deployment keys").
type ServiceInstanceManifest struct {
	SerializationVersion int                                 `json:"serializationVersion"`
	InstanceID           InstanceID                           `json:"instanceId"`
	SharedMemorySize     int64                                `json:"sharedMemorySize,omitempty"`
	Events               map[string]EventInstanceDeployment   `json:"events"`
	Fields               map[string]FieldInstanceDeployment   `json:"fields,omitempty"`
	Strict               bool                                 `json:"strict,omitempty"`
	AllowedConsumer      map[string][]uint32                  `json:"allowedConsumer,omitempty"`
	AllowedProvider      map[string][]uint32                  `json:"allowedProvider,omitempty"`
}

// SupportedSerializationVersion is the only serializationVersion this
// binding accepts; any other value is a fatal configuration error (spec
// §7 "broken serialization versions are fatal").
const SupportedSerializationVersion = 1

// LoadManifest reads and parses the service instance manifest at path.
// Comments and trailing commas are tolerated (manifests are hand-edited by
// operators) via hujson.Standardize before strict JSON decoding, grounded
// on _examples/calvinalkan-agent-task/config.go's identical
// hujson.Standardize → json.Unmarshal pipeline.
func LoadManifest(path string) (ServiceInstanceManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ServiceInstanceManifest{}, fmt.Errorf("config: read manifest %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return ServiceInstanceManifest{}, fmt.Errorf("config: manifest %s is not valid JSONC: %w", path, err)
	}

	var m ServiceInstanceManifest
	if err := json.Unmarshal(standardized, &m); err != nil {
		return ServiceInstanceManifest{}, fmt.Errorf("config: manifest %s is not valid JSON: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return ServiceInstanceManifest{}, err
	}
	return m, nil
}

// Validate checks the manifest-level invariants spec §7 calls fatal:
// an unsupported serializationVersion, or an event with non-positive slot
// counts.
func (m ServiceInstanceManifest) Validate() error {
	if m.SerializationVersion != SupportedSerializationVersion {
		return fmt.Errorf("config: unsupported serializationVersion %d (want %d)", m.SerializationVersion, SupportedSerializationVersion)
	}
	for name, ev := range m.Events {
		if ev.NumberOfSampleSlots <= 0 {
			return fmt.Errorf("config: event %q: numberOfSampleSlots must be > 0", name)
		}
		if ev.MaxConcurrentAllocations <= 0 {
			return fmt.Errorf("config: event %q: maxConcurrentAllocations must be > 0", name)
		}
	}
	return nil
}

// TypeDeployment maps a service type's event/field names to their 8-bit
// wire ids (spec §6 "Type deployment keys").
type TypeDeployment struct {
	ServiceID uint16           `json:"serviceId"`
	Events    map[string]uint8 `json:"events"`
	Fields    map[string]uint8 `json:"fields,omitempty"`
}

// LoadTypeDeployment reads and parses a type-deployment manifest.
func LoadTypeDeployment(path string) (TypeDeployment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TypeDeployment{}, fmt.Errorf("config: read type deployment %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return TypeDeployment{}, fmt.Errorf("config: type deployment %s is not valid JSONC: %w", path, err)
	}
	var t TypeDeployment
	if err := json.Unmarshal(standardized, &t); err != nil {
		return TypeDeployment{}, fmt.Errorf("config: type deployment %s is not valid JSON: %w", path, err)
	}
	return t, nil
}
