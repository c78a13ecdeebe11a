// Package runner implements TestRunner: a bounded worker pool that drains a
// dispatch queue of TestCase, invokes the Orchestrator for each, and streams
// TestResults out in input order, per spec §4.8 and the concurrency model in
// spec §5.
//
// Grounded on orchestration/task_worker.go's TaskWorkerPool: atomic active-
// worker counter, a cancellable worker context, per-worker goroutines reading
// from a shared channel, and a WaitGroup-gated shutdown — adapted from a
// generic task queue to a fixed, pre-sampled TestCase slice (TestRunner's
// dispatch queue is filled once at Run() start, not continuously enqueued).
package runner

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/stats"
)

// Executor runs one TestCase to completion. Orchestrator.ExecuteSingleTurn /
// ExecuteMultiTurn both satisfy this after a small closure adapts their
// extra parameters (strategy, scoring mode, adapter instance).
type Executor func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult

// Budget bounds a run's total cost, wall-clock, and token spend. Zero fields
// are unbounded, per spec §4.8.
type Budget struct {
	MaxCostUSD     float64
	MaxWallClock   time.Duration
	MaxTotalTokens int64
}

// Options configures a TestRunner.
type Options struct {
	Workers      int // 0 => min(8, NumCPU*4), per spec §5
	ResultBuffer int // 0 => 64
	GracePeriod  time.Duration
	Budget       Budget
	Logger       core.Logger
}

// Summary aggregates a completed run's counts, budget outcome, and duration
// into the shape GateEngine and reporting consume.
type Summary struct {
	Results         []core.TestResult
	Counts          map[core.TestStatus]int
	CostTotal       float64
	TotalTokens     int64
	DurationMS      int64
	BudgetExceeded  bool
	Cancelled       bool
}

// TestRunner schedules TestCase executions across a bounded worker pool,
// enforcing a run-wide rate/cost/token budget and propagating a single
// run-scoped cancellation signal to every blocking call.
type TestRunner struct {
	opts Options

	costSpent   atomic.Uint64 // cost in USD*1e6 (micro-dollars) as an integer, for lock-free atomic compare
	tokenSpent  atomic.Int64
	cancelled   atomic.Bool
}

// New builds a TestRunner, defaulting Workers/ResultBuffer/GracePeriod/Logger
// the way spec §5 and §4.8 specify.
func New(opts Options) *TestRunner {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 64
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = core.NoOpLogger{}
	}
	return &TestRunner{opts: opts}
}

func defaultWorkers() int {
	w := runtime.NumCPU() * 4
	if w > 8 {
		w = 8
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run executes every case in cases through exec, honoring sampleRate/seed
// (via stats.StratifiedSample), the worker pool's bounded parallelism, and
// the configured budget. Results are returned in dispatch order (spec
// §4.8's "buffered reorder on emit"): cases' order when sampleRate is 1,
// the sampler's per-category order otherwise, even though execution order
// is unconstrained.
func (r *TestRunner) Run(ctx context.Context, cases []core.TestCase, sampleRate float64, seed int64, exec Executor) Summary {
	start := time.Now()

	sampled := cases
	if sampleRate < 1 {
		sampled = stats.StratifiedSample(cases, sampleRate, seed)
	}

	indexOf := make(map[string]int, len(sampled))
	for i, tc := range sampled {
		indexOf[tc.ID] = i
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	cancelSignal := make(chan struct{})
	var closeCancelOnce sync.Once
	fireCancel := func() {
		closeCancelOnce.Do(func() { close(cancelSignal) })
		cancelRun()
	}

	if r.opts.Budget.MaxWallClock > 0 {
		time.AfterFunc(r.opts.Budget.MaxWallClock, fireCancel)
	}

	taskCh := make(chan core.TestCase, len(sampled))
	for _, tc := range sampled {
		taskCh <- tc
	}
	close(taskCh)

	resultCh := make(chan core.TestResult, r.opts.ResultBuffer)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go r.worker(runCtx, cancelSignal, fireCancel, taskCh, resultCh, exec, &wg)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	ordered := make([]core.TestResult, len(sampled))
	for result := range resultCh {
		if idx, ok := indexOf[result.TestID]; ok {
			ordered[idx] = result
		}
	}

	summary := Summary{
		Results:        ordered,
		Counts:         map[core.TestStatus]int{},
		CostTotal:       float64(r.costSpent.Load()) / 1e6,
		TotalTokens:     r.tokenSpent.Load(),
		DurationMS:      time.Since(start).Milliseconds(),
		BudgetExceeded:  r.cancelled.Load(),
		Cancelled:       r.cancelled.Load(),
	}
	for _, res := range ordered {
		summary.Counts[res.Status]++
	}
	return summary
}

// worker drains taskCh until empty or cancellation fires, invoking exec for
// each TestCase and pushing results to resultCh — blocking on a full
// resultCh couples adapter pressure to report-emission pressure, per
// spec §5's backpressure requirement.
func (r *TestRunner) worker(ctx context.Context, cancelSignal <-chan struct{}, fireCancel func(), taskCh <-chan core.TestCase, resultCh chan<- core.TestResult, exec Executor, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-cancelSignal:
			return
		case test, ok := <-taskCh:
			if !ok {
				return
			}
			if r.budgetExceeded() {
				fireCancel()
				resultCh <- core.TestResult{TestID: test.ID, Status: core.StatusErrorInfrastructure, Reason: "budget-exceeded"}
				continue
			}

			result := r.runWithGrace(ctx, cancelSignal, test, exec)
			r.accumulate(result)

			select {
			case resultCh <- result:
			case <-cancelSignal:
				return
			}
		}
	}
}

// runWithGrace invokes exec and, if cancellation fires mid-flight, allows up
// to GracePeriod for the in-flight test to finish before force-marking it
// cancelled, per spec §5's grace-period requirement.
func (r *TestRunner) runWithGrace(ctx context.Context, cancelSignal <-chan struct{}, test core.TestCase, exec Executor) core.TestResult {
	done := make(chan core.TestResult, 1)
	go func() { done <- exec(ctx, test, cancelSignal) }()

	select {
	case result := <-done:
		return result
	case <-cancelSignal:
		select {
		case result := <-done:
			return result
		case <-time.After(r.opts.GracePeriod):
			return core.TestResult{TestID: test.ID, Status: core.StatusErrorInfrastructure, Reason: "cancelled"}
		}
	}
}

// accumulate folds a TestResult's cost/token contribution into the run's
// atomic budget counters and flips cancelled if the budget is now exceeded.
func (r *TestRunner) accumulate(result core.TestResult) {
	r.costSpent.Add(uint64(result.CostEstimate * 1e6))
	if result.Response != nil {
		r.tokenSpent.Add(int64(result.Response.InputTokens + result.Response.OutputTokens))
	}
	if r.budgetExceeded() {
		r.cancelled.Store(true)
	}
}

// budgetExceeded is a lock-free read-and-compare against the configured
// cost/token ceilings, per spec §5's "budget check is lock-free read of
// atomic + compare."
func (r *TestRunner) budgetExceeded() bool {
	if r.opts.Budget.MaxCostUSD > 0 && float64(r.costSpent.Load())/1e6 >= r.opts.Budget.MaxCostUSD {
		return true
	}
	if r.opts.Budget.MaxTotalTokens > 0 && r.tokenSpent.Load() >= r.opts.Budget.MaxTotalTokens {
		return true
	}
	return false
}

// SortedStatuses returns counts' keys in deterministic order, for reporting
// layers that print a per-status status line.
func SortedStatuses(counts map[core.TestStatus]int) []core.TestStatus {
	out := make([]core.TestStatus, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
