// Package errors enumerates the binding-level error kinds surfaced to
// LoLa callers (spec §7). Operational errors (allocation exhaustion, queue
// full) are returned for the caller to retry; configuration errors are
// fatal and the process that hits them is expected to terminate via
// rs/zerolog's Fatal level rather than propagate further.
package errors

import "fmt"

// Kind identifies one of the binding-level error categories.
type Kind int

const (
	// SampleAllocationFailure: no slot was available to allocate.
	SampleAllocationFailure Kind = iota
	// MaxSubscribersExceeded: the transaction-log set is full.
	MaxSubscribersExceeded
	// InvalidConfiguration: manifest malformed or absent.
	InvalidConfiguration
	// InvalidInstanceIdentifierString: a serialized handle couldn't be parsed.
	InvalidInstanceIdentifierString
	// BindingFailure: underlying service-discovery failed.
	BindingFailure
	// FindServiceHandlerFailure: discovery-control failure registering a handler.
	FindServiceHandlerFailure
	// InvalidHandle: a handle value didn't resolve to a known service instance.
	InvalidHandle
	// DisableTracePointInstance: tracing opted out for one instance (never
	// surfaced to the end user, recovered locally).
	DisableTracePointInstance
	// DisableAllTracePoints: tracing opted out globally (never surfaced,
	// recovered locally).
	DisableAllTracePoints
	// SendQueueFull: a non-blocking sender's ring buffer is at capacity;
	// the equivalent of EAGAIN / "temporarily unavailable" (spec §4.4
	// "Mixed-criticality rule").
	SendQueueFull
)

func (k Kind) String() string {
	switch k {
	case SampleAllocationFailure:
		return "kSampleAllocationFailure"
	case MaxSubscribersExceeded:
		return "kMaxSubscribersExceeded"
	case InvalidConfiguration:
		return "kInvalidConfiguration"
	case InvalidInstanceIdentifierString:
		return "kInvalidInstanceIdentifierString"
	case BindingFailure:
		return "kBindingFailure"
	case FindServiceHandlerFailure:
		return "kFindServiceHandlerFailure"
	case InvalidHandle:
		return "kInvalidHandle"
	case DisableTracePointInstance:
		return "kDisableTracePointInstance"
	case DisableAllTracePoints:
		return "kDisableAllTracePoints"
	case SendQueueFull:
		return "kSendQueueFull"
	default:
		return "kUnknown"
	}
}

// Error is a binding-level error carrying a Kind plus free-form context.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Transient reports whether callers may retry the operation that produced
// this error kind, as opposed to a fatal configuration error (§7
// propagation policy).
func Transient(k Kind) bool {
	switch k {
	case SampleAllocationFailure, MaxSubscribersExceeded, SendQueueFull:
		return true
	default:
		return false
	}
}
