package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StdoutModeStartsAndShutsDownCleanly(t *testing.T) {
	p, err := New("aipo-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "unit-test-span")
	span.SetAttribute("test_id", "t1")
	span.RecordError(nil)
	span.End()
	assert.NotNil(t, ctx)
}

func TestRecordMetric_RoutesByNameHeuristic(t *testing.T) {
	p, err := New("aipo-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.RecordMetric("adapter_call_duration_ms", 120.5, map[string]string{"adapter": "mock"})
	p.RecordMetric("tests_run_total", 1, map[string]string{"status": "passed"})

	assert.Contains(t, p.histograms, "adapter_call_duration_ms")
	assert.Contains(t, p.counters, "tests_run_total")
}

func TestNew_RejectsEmptyServiceName(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}

func TestShutdown_IsIdempotent(t *testing.T) {
	p, err := New("aipo-test", "")
	require.NoError(t, err)

	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}
