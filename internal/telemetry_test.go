package internal

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/tabula"
)

type recordedMeasure struct {
	name   string
	labels map[string]string
	value  any
}

func TestImportEmitsStageTelemetry(t *testing.T) {
	var mu sync.Mutex
	var measures []recordedMeasure
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		mu.Lock()
		defer mu.Unlock()
		measures = append(measures, recordedMeasure{name: name, labels: labels, value: value})
	})
	defer RegisterTelemetryEmitter(nil)

	engine, _, _ := newTestEngine(t)
	csvData := []byte("name\nIndia\n")
	_, outcome, err := engine.ImportCSV(context.Background(), "api::country.country", csvData, tabula.ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Created)

	stages := map[string]bool{}
	var rowCount *recordedMeasure
	for i, m := range measures {
		switch m.name {
		case "import_stage_latency_ms":
			stages[m.labels["stage"]] = true
		case "import_row_count":
			rowCount = &measures[i]
		}
	}
	assert.True(t, stages["validate"])
	assert.True(t, stages["enrich"])
	assert.True(t, stages["persist"])
	require.NotNil(t, rowCount)
	assert.Equal(t, "api::country.country", rowCount.labels["schema"])
	assert.Equal(t, int64(1), rowCount.value)
}

func TestTelemetryDefaultEmitterIsNoop(t *testing.T) {
	RegisterTelemetryEmitter(nil)
	assert.NotPanics(t, func() {
		EmitStageLatency(context.Background(), "validate", 1)
		EmitRowCount(context.Background(), "api::country.country", 1)
	})
}
