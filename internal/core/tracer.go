package core

import (
	"context"
	"time"
)

// Tracer starts a span around an operation and returns a finish callback
// taking the operation's terminal error (nil on success).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

// noopTracer discards every span.
type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// NoopTracer is the default Tracer for components constructed without one.
var NoopTracer Tracer = noopTracer{}

// ObservationHooks captures optional callbacks around an arbitrary operation,
// used where a full Tracer is more than a caller wants to implement.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

// NoopObservationHooks is the default, doing nothing.
var NoopObservationHooks = ObservationHooks{}

// StartObservation fires OnStart and returns a completion callback for OnComplete.
func StartObservation(ctx context.Context, hooks ObservationHooks, meta map[string]string) func(error) {
	if hooks.OnStart != nil {
		hooks.OnStart(ctx, meta)
	}
	start := time.Now()
	return func(err error) {
		if hooks.OnComplete != nil {
			hooks.OnComplete(ctx, meta, err, time.Since(start))
		}
	}
}
