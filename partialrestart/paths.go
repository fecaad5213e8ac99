// Package partialrestart builds the filesystem paths used to detect and
// recover from a service provider or consumer process crashing while
// holding shared-memory references (spec §3 "Partial restart", §4.5).
//
// Grounded on
// _examples/original_source/mw/com/impl/bindings/lola/partial_restart_path_builder.{h,cpp}
// and i_partial_restart_path_builder.h: a PathBuilder keyed by service id
// builds existence/usage marker paths per instance id. The directory-prefix
// split (kTmpPathPrefix/kLoLaDir/kPartialRestartDir in the original) is
// collapsed into a single Dir() func since Go has no equivalent to the
// original's compile-time __QNXNTO__ branch; QNX is selected at runtime via
// the Platform parameter instead.
package partialrestart

import (
	"fmt"
	"path/filepath"
)

// Platform selects which filesystem root and shared-memory directory
// convention is in effect (spec §6 "Shared-memory backing files").
type Platform uint8

const (
	Generic Platform = iota
	QNX
)

const (
	genericTmpPrefix = "/tmp/"
	qnxTmpPrefix     = "/tmp_discovery/"
	lolaDir          = "mw_com_lola"
	partialRestartDir = "partial_restart"

	existenceTag = "existence-"
	usageTag     = "usage-"
)

// PathBuilder generates partial-restart marker paths for one service id
// (spec §3 "Service instance existence and usage markers").
type PathBuilder struct {
	ServiceID uint16
	Platform  Platform
}

// NewPathBuilder constructs a PathBuilder for serviceID on the given
// platform.
func NewPathBuilder(serviceID uint16, platform Platform) *PathBuilder {
	return &PathBuilder{ServiceID: serviceID, Platform: platform}
}

// Dir returns the partial-restart directory, which must exist before any
// marker file is created (spec §4.5 step 1, scenario S3).
func (b *PathBuilder) Dir() string {
	prefix := genericTmpPrefix
	if b.Platform == QNX {
		prefix = qnxTmpPrefix
	}
	return filepath.Join(prefix, lolaDir, partialRestartDir) + "/"
}

// suffix formats "<service-id-16-hex>-<instance-id-5-dec>" with leading
// zeros preserved (spec §3, scenario S3: "hex width is 16, decimal width
// is 5").
func suffix(serviceID uint16, instanceID uint32) string {
	return fmt.Sprintf("%016x-%05d", serviceID, instanceID)
}

// ExistenceMarkerPath returns the path of the lock file a producer holds
// while offering the service instance.
func (b *PathBuilder) ExistenceMarkerPath(instanceID uint32) string {
	return b.Dir() + existenceTag + suffix(b.ServiceID, instanceID)
}

// UsageMarkerPath returns the path of the lock file a consumer holds while
// subscribed to the service instance.
func (b *PathBuilder) UsageMarkerPath(instanceID uint32) string {
	return b.Dir() + usageTag + suffix(b.ServiceID, instanceID)
}
