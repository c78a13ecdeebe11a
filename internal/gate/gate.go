// Package gate implements GateEngine: compares a RunSummary's metrics
// against a Policy's thresholds and produces a pass/fail verdict with the
// specific checks that failed, per spec §4.12.
package gate

import (
	"fmt"
	"sort"

	"github.com/aipolab/aipo/internal/core"
)

// ExitCode is the process exit code GateEngine's caller should return.
type ExitCode int

const (
	ExitPass     ExitCode = 0
	ExitFail     ExitCode = 1
	ExitUsageErr ExitCode = 2
)

// CheckResult records one threshold's evaluation.
type CheckResult struct {
	Metric    string                  `json:"metric"`
	Op        core.ThresholdOp        `json:"op"`
	Direction core.ThresholdDirection `json:"direction"`
	Value     float64                 `json:"value"`
	Actual    float64                 `json:"actual"`
	Passed    bool                    `json:"passed"`
	Reason    string                  `json:"reason,omitempty"`
}

// Result is GateEngine's output: spec §4.12's GateResult{passed, reason, failed_checks[], metrics{}}.
type Result struct {
	Passed       bool               `json:"passed"`
	Reason       string             `json:"reason,omitempty"`
	FailedChecks []CheckResult      `json:"failed_checks,omitempty"`
	Checks       []CheckResult      `json:"checks"`
	Metrics      map[string]float64 `json:"metrics"`
}

// rateMetrics default to 0.0 when absent from the summary, per spec §4.12
// ("missing → 0.0 for rate metrics").
var rateMetrics = map[string]bool{
	core.MetricHarmfulOutputRate:       true,
	core.MetricCriticalViolationRate:   true,
	core.MetricToolPolicyViolationRate: true,
	core.MetricUtilityFailureRate:      true,
	core.MetricASR:                     true,
	core.MetricInfrastructureErrorRate: true,
}

// Evaluate compares summary.Metrics against policy.Thresholds and returns a
// Result. Thresholds named against a metric the summary never computed and
// that isn't a known rate metric fail outright with an explicit reason.
func Evaluate(summary core.RunSummary, policy core.Policy) Result {
	result := Result{Passed: true, Metrics: summary.Metrics}
	if result.Metrics == nil {
		result.Metrics = map[string]float64{}
	}

	for _, th := range policy.Thresholds {
		check := evaluateThreshold(th, summary.Metrics)
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
			result.FailedChecks = append(result.FailedChecks, check)
		}
	}

	sort.Slice(result.Checks, func(i, j int) bool { return result.Checks[i].Metric < result.Checks[j].Metric })

	if !result.Passed {
		result.Reason = fmt.Sprintf("%d threshold(s) failed", len(result.FailedChecks))
	}
	return result
}

func evaluateThreshold(th core.Threshold, metrics map[string]float64) CheckResult {
	check := CheckResult{Metric: th.Metric, Op: th.Op, Direction: th.Direction, Value: th.Value}

	actual, ok := metrics[th.Metric]
	if !ok {
		if !rateMetrics[th.Metric] {
			check.Passed = false
			check.Reason = "metric undefined for this run"
			return check
		}
		actual = 0.0
	}
	check.Actual = actual

	direction := th.Direction
	if direction == "" {
		direction = directionFromOp(th.Op)
	}

	switch direction {
	case core.LowerIsBetter:
		check.Passed = actual <= th.Value
	case core.HigherIsBetter:
		check.Passed = actual >= th.Value
	default:
		check.Passed = false
		check.Reason = fmt.Sprintf("unknown threshold direction %q", direction)
	}

	if !check.Passed && check.Reason == "" {
		check.Reason = fmt.Sprintf("%s=%.4f does not satisfy %s %.4f", th.Metric, actual, direction, th.Value)
	}
	return check
}

func directionFromOp(op core.ThresholdOp) core.ThresholdDirection {
	switch op {
	case core.OpGreaterEqual:
		return core.HigherIsBetter
	case core.OpLessEqual:
		return core.LowerIsBetter
	default:
		return core.LowerIsBetter
	}
}

// Code maps a Result to the process exit code spec §4.12 defines.
func Code(result Result) ExitCode {
	if result.Passed {
		return ExitPass
	}
	return ExitFail
}
