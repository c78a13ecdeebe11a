package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func casesOf(ids ...string) []core.TestCase {
	out := make([]core.TestCase, len(ids))
	for i, id := range ids {
		out[i] = core.TestCase{ID: id, Category: "c"}
	}
	return out
}

func TestRun_PreservesInputOrder(t *testing.T) {
	r := New(Options{Workers: 4})
	cases := casesOf("a", "b", "c", "d", "e")

	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		time.Sleep(time.Duration(len(test.ID)) * time.Millisecond)
		return core.TestResult{TestID: test.ID, Status: core.StatusPassed}
	}

	summary := r.Run(context.Background(), cases, 1.0, 0, exec)
	require.Len(t, summary.Results, 5)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, id, summary.Results[i].TestID)
	}
}

func TestRun_CountsPerStatus(t *testing.T) {
	r := New(Options{Workers: 2})
	cases := casesOf("a", "b", "c")

	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		if test.ID == "b" {
			return core.TestResult{TestID: test.ID, Status: core.StatusFailed}
		}
		return core.TestResult{TestID: test.ID, Status: core.StatusPassed}
	}

	summary := r.Run(context.Background(), cases, 1.0, 0, exec)
	assert.Equal(t, 2, summary.Counts[core.StatusPassed])
	assert.Equal(t, 1, summary.Counts[core.StatusFailed])
}

func TestRun_BudgetExceededCancelsRemainingWork(t *testing.T) {
	r := New(Options{Workers: 1, Budget: Budget{MaxTotalTokens: 5}})
	cases := casesOf("a", "b", "c", "d", "e", "f")

	var executed atomic.Int32
	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		executed.Add(1)
		return core.TestResult{
			TestID:   test.ID,
			Status:   core.StatusPassed,
			Response: &core.ModelResponse{InputTokens: 3, OutputTokens: 3},
		}
	}

	summary := r.Run(context.Background(), cases, 1.0, 0, exec)
	assert.True(t, summary.BudgetExceeded)
	assert.Less(t, int(executed.Load()), len(cases))
}

func TestRun_WorksWithBoundedConcurrency(t *testing.T) {
	r := New(Options{Workers: 3})
	cases := casesOf("a", "b", "c", "d", "e", "f", "g", "h")

	var inFlight, maxInFlight atomic.Int32
	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		cur := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return core.TestResult{TestID: test.ID, Status: core.StatusPassed}
	}

	r.Run(context.Background(), cases, 1.0, 0, exec)
	assert.LessOrEqual(t, int(maxInFlight.Load()), 3)
}

func TestRun_SampleRateReducesCaseCount(t *testing.T) {
	r := New(Options{Workers: 2})
	cases := casesOf("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")

	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		return core.TestResult{TestID: test.ID, Status: core.StatusPassed}
	}

	summary := r.Run(context.Background(), cases, 0.5, 42, exec)
	assert.Less(t, len(summary.Results), len(cases))
}
