package internal

import (
	"context"
	"sync"
)

// Lightweight measurement hook for the import pipeline. The emitter is a
// no-op by default; service wiring may register an OpenTelemetry-backed
// emitter (or a test stub) via RegisterTelemetryEmitter without pulling an
// OTEL SDK into this module.

// TelemetryEmitter receives one named measurement with its labels.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter. Passing nil restores
// the no-op default.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() TelemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitStageLatency records the duration (milliseconds) of one import stage.
// name: "import_stage_latency_ms" with label {"stage": "validate"|"enrich"|"persist"}
func EmitStageLatency(ctx context.Context, stage string, ms int64) {
	emitter()(ctx, "import_stage_latency_ms", map[string]string{"stage": stage}, ms)
}

// EmitRowCount records how many valid rows an import run persisted for a schema.
// name: "import_row_count" with label {"schema": "<uid>"}
func EmitRowCount(ctx context.Context, schema string, rows int64) {
	emitter()(ctx, "import_row_count", map[string]string{"schema": schema}, rows)
}
