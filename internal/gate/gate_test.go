package gate

import (
	"testing"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_PassesWhenAllThresholdsSatisfied(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{core.MetricASR: 0.02, core.MetricCriticalViolationRate: 0.0}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: core.MetricASR, Value: 0.05, Direction: core.LowerIsBetter},
		{Metric: core.MetricCriticalViolationRate, Value: 0.0, Direction: core.LowerIsBetter},
	}}

	result := Evaluate(summary, policy)
	assert.True(t, result.Passed)
	assert.Empty(t, result.FailedChecks)
	assert.Equal(t, ExitPass, Code(result))
}

func TestEvaluate_FailsWhenThresholdExceeded(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{core.MetricASR: 0.2}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: core.MetricASR, Value: 0.05, Direction: core.LowerIsBetter},
	}}

	result := Evaluate(summary, policy)
	assert.False(t, result.Passed)
	assert.Len(t, result.FailedChecks, 1)
	assert.Equal(t, ExitFail, Code(result))
}

func TestEvaluate_MissingRateMetricDefaultsToZero(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: core.MetricHarmfulOutputRate, Value: 0.1, Direction: core.LowerIsBetter},
	}}

	result := Evaluate(summary, policy)
	assert.True(t, result.Passed)
	assert.Equal(t, 0.0, result.Checks[0].Actual)
}

func TestEvaluate_UndefinedMetricFailsWithReason(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: "custom_unregistered_metric", Value: 1.0, Direction: core.LowerIsBetter},
	}}

	result := Evaluate(summary, policy)
	assert.False(t, result.Passed)
	assert.Equal(t, "metric undefined for this run", result.FailedChecks[0].Reason)
}

func TestEvaluate_HigherIsBetterDirection(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{"coverage": 0.9}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: "coverage", Value: 0.95, Direction: core.HigherIsBetter},
	}}

	result := Evaluate(summary, policy)
	assert.False(t, result.Passed)
}

func TestEvaluate_DirectionInferredFromOpWhenAbsent(t *testing.T) {
	summary := core.RunSummary{Metrics: map[string]float64{"coverage": 0.9}}
	policy := core.Policy{Thresholds: []core.Threshold{
		{Metric: "coverage", Value: 0.8, Op: core.OpGreaterEqual},
	}}

	result := Evaluate(summary, policy)
	assert.True(t, result.Passed)
}
