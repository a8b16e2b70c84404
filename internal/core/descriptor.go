// Package core holds cross-cutting helpers shared by every service-shaped
// component in this module: lifecycle (Service), architectural placement
// (Descriptor/Layer), and tracing hooks (Tracer, ObservationHooks).
package core

import "context"

// Layer describes which slice of the broadcast scheduler a component
// belongs to: the messaging-platform transport, the posting engine and its
// schedulers, the persistence layer, or the process boundary that wires
// them together and exposes health/metrics (spec.md §4-§6's own module
// split, not a generic layered-architecture taxonomy).
type Layer string

const (
	LayerTransport Layer = "transport"
	LayerEngine    Layer = "engine"
	LayerStorage   Layer = "storage"
	LayerProcess   Layer = "process"
)

// Descriptor advertises a component's placement and capabilities. Purely
// informational: it never changes runtime behavior.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}

// Service is the shape of a lifecycle-managed component (Name/Start/Stop).
// The orchestrator, the ScheduledPublisher and the maintenance Loops each
// expose Name, but their start/stop methods have other signatures
// (ScheduledPublisher.Run, Loops.Start/Stop), so none of them satisfies it.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises a Descriptor.
type DescriptorProvider interface {
	Descriptor() Descriptor
}
