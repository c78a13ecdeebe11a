package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/cache"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/evidence"
	"github.com/aipolab/aipo/internal/logger"
	"github.com/aipolab/aipo/internal/memory"
	"github.com/aipolab/aipo/internal/orchestrator"
	"github.com/aipolab/aipo/internal/paths"
	"github.com/aipolab/aipo/internal/pricing"
	"github.com/aipolab/aipo/internal/ratelimit"
	"github.com/aipolab/aipo/internal/runner"
	"github.com/aipolab/aipo/internal/stats"
	"github.com/aipolab/aipo/internal/telemetry"
	"github.com/aipolab/aipo/internal/traffic"
)

var runFlags struct {
	suitePath     string
	adaptersFile  string
	adapterName   string
	model         string
	judgeKind     string
	sampleRate    float64
	maxTurns      int
	orchestrator  string
	scoring       string
	policyPath    string
	maxRate       string
	stealth       bool
	randomDelay   string
	captureTraffic bool
	seed          int64
	budgetUSD     float64
	otelEndpoint  string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a test suite against an adapter and report the outcome",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.suitePath, "suite", "", "path to a suite YAML file (required)")
	f.StringVar(&runFlags.adaptersFile, "adapters-file", "aipo-adapters.yaml", "path to the named-adapter config file --adapter looks up")
	f.StringVar(&runFlags.adapterName, "adapter", "", "adapter name to look up in --adapters-file (required)")
	f.StringVar(&runFlags.model, "model", "", "model identifier; overrides the adapter file's model")
	f.StringVar(&runFlags.judgeKind, "judge", "keyword", "keyword|llm|classifier|ensemble")
	f.Float64Var(&runFlags.sampleRate, "sample-rate", 1.0, "fraction of the suite to sample, stratified by category")
	f.IntVar(&runFlags.maxTurns, "max-turns", 1, "max turns per test when --orchestrator=multi")
	f.StringVar(&runFlags.orchestrator, "orchestrator", "single", "single|multi")
	f.StringVar(&runFlags.scoring, "scoring", "any", "any|majority|final")
	f.StringVar(&runFlags.policyPath, "policy", "", "path to a policy YAML file (gate thresholds, content rules, tool allowlist)")
	f.StringVar(&runFlags.maxRate, "max-rate", "", `adapter call rate ceiling, e.g. "10/sec" or "300/min"`)
	f.BoolVar(&runFlags.stealth, "stealth", false, "apply --random-delay jitter between adapter calls")
	f.StringVar(&runFlags.randomDelay, "random-delay", "0-0", `jitter range in seconds, e.g. "1.5-4"`)
	f.BoolVar(&runFlags.captureTraffic, "capture-traffic", false, "record request/response traffic to session.har in the evidence pack")
	f.Int64Var(&runFlags.seed, "seed", 0, "deterministic seed for sampling and strategy jitter")
	f.Float64Var(&runFlags.budgetUSD, "budget-usd", 0, "abort the run once estimated spend reaches this ceiling (0 = unbounded)")
	f.StringVar(&runFlags.otelEndpoint, "otel-endpoint", "", "OTLP/gRPC collector endpoint; empty streams traces/metrics to stdout")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFlags.suitePath == "" {
		return usageErrorf("--suite is required")
	}
	if runFlags.adapterName == "" {
		return usageErrorf("--adapter is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return usageErrorf("%v", err)
	}
	cfg.MaxTurns = runFlags.maxTurns
	cfg.Orchestrator = runFlags.orchestrator
	cfg.Scoring = runFlags.scoring
	cfg.JudgeKind = runFlags.judgeKind
	cfg.SampleRate = runFlags.sampleRate
	cfg.BudgetUSD = runFlags.budgetUSD
	cfg.CaptureTraffic = runFlags.captureTraffic
	cfg.Seed = runFlags.seed
	if err := cfg.Validate(); err != nil {
		return usageErrorf("%v", err)
	}

	dirs, err := paths.Resolve(cfg.OutputDir)
	if err != nil {
		return err
	}

	log := logger.New(logger.WithLevel(logger.ParseLevel(cfg.LogLevel)), logger.WithJSON(cfg.LogFormat == "json"))

	suite, err := loadSuite(runFlags.suitePath)
	if err != nil {
		return usageErrorf("%v", err)
	}
	policy, err := loadPolicy(runFlags.policyPath)
	if err != nil {
		return usageErrorf("%v", err)
	}

	spec, err := resolveAdapterSpec(runFlags.adaptersFile, runFlags.adapterName, runFlags.model)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if rps, err := parseMaxRate(runFlags.maxRate); err != nil {
		return usageErrorf("%v", err)
	} else if rps > 0 {
		spec.RateLimit.RPS = rps
		if spec.RateLimit.Burst <= 0 {
			spec.RateLimit.Burst = 1
		}
	}

	var trafficCapture *traffic.Capture
	if cfg.CaptureTraffic {
		trafficCapture = traffic.New(1000, log)
	}

	ad, err := adapter.New(spec, log, trafficCapture)
	if err != nil {
		return fmt.Errorf("%w: construct adapter: %v", core.ErrInvalidConfiguration, err)
	}
	defer ad.Close()

	var limiter *ratelimit.Limiter
	if spec.RateLimit.RPS > 0 {
		burst := float64(spec.RateLimit.Burst)
		if burst <= 0 {
			burst = 1
		}
		limiter = ratelimit.NewLimiter(spec.Name, spec.RateLimit.RPS, burst, nil)
	}

	respCache := cache.New(cache.Options{DefaultTTL: cfg.CacheTTLDefault})

	store, err := memory.Open(filepath.Join(dirs.DataDir, "conversations.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	judgeInstance, err := buildJudge(runFlags.judgeKind, ad)
	if err != nil {
		return usageErrorf("%v", err)
	}
	detectors, err := buildDetectors(policy)
	if err != nil {
		return usageErrorf("%v", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		Limiter:       limiter,
		Cache:         respCache,
		Memory:        store,
		Judge:         judgeInstance,
		Detectors:     detectors,
		Logger:        log,
		Pricing:       pricing.NewTable(),
		Model:         spec.Model,
		Params:        spec.Params,
		EngineVersion: cfg.EngineVersion,
	})

	minDelay, maxDelay, err := parseDelayRange(runFlags.randomDelay)
	if err != nil {
		return usageErrorf("%v", err)
	}
	jitterRng := rand.New(rand.NewSource(runFlags.seed))

	strategy := buildStrategy(cfg.MaxTurns)
	scoringMode := stats.ScoringMode(cfg.Scoring)

	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		if runFlags.stealth && maxDelay > 0 {
			delay := minDelay
			if maxDelay > minDelay {
				delay += time.Duration(jitterRng.Int63n(int64(maxDelay - minDelay)))
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			case <-cancel:
			}
		}
		if cfg.Orchestrator == "multi" {
			return orch.ExecuteMultiTurn(ctx, test, ad, strategy, scoringMode, cancel)
		}
		return orch.ExecuteSingleTurn(ctx, test, ad, cancel)
	}

	telemetryProvider, err := telemetry.New("aipo", runFlags.otelEndpoint)
	if err != nil {
		return err
	}
	defer telemetryProvider.Shutdown(context.Background())

	runID := uuid.NewString()
	pack, err := evidence.Open(dirs.StateDir, runID)
	if err != nil {
		return err
	}

	tr := runner.New(runner.Options{
		Workers:      cfg.ResolvedWorkers(runtime.NumCPU()),
		ResultBuffer: cfg.ResultBuffer,
		GracePeriod:  cfg.GracePeriod,
		Budget:       runner.Budget{MaxCostUSD: cfg.BudgetUSD},
		Logger:       log,
	})

	ctx, span := telemetryProvider.StartSpan(context.Background(), "aipo.run")
	summary := tr.Run(ctx, suite.Cases, cfg.SampleRate, cfg.Seed, exec)
	span.End()

	telemetryProvider.RecordMetric("tests_run_total", float64(len(summary.Results)), map[string]string{"suite": suite.Name})

	for _, res := range summary.Results {
		turns, err := store.List(ctx, res.ConversationID)
		if err == nil {
			for _, t := range turns {
				_ = pack.WriteTranscript(res.TestID, t)
			}
		}
	}

	runSummary := buildSummary(runID, suite, summary, cfg.ASRStrictness)
	if err := pack.WriteSummary(runSummary); err != nil {
		return err
	}

	gateResult := true
	var gateOut gateOutcome
	if len(policy.Thresholds) > 0 {
		gateOut = evaluateGate(runSummary, policy)
		gateResult = gateOut.Passed
	}

	if trafficCapture != nil {
		har, err := trafficCapture.Finalize(cfg.EngineVersion)
		if err == nil {
			_ = pack.WriteHAR(har)
		}
	}

	policyHash := hashBytes(runFlags.policyPath)
	fingerprint := adapterFingerprint(spec)
	archivePath := filepath.Join(dirs.StateDir, runID+".zip")
	if _, err := pack.Finalize(archivePath, cfg.EngineVersion, fingerprint, policyHash, gateResult); err != nil {
		return fmt.Errorf("evidence pack finalize: %w", err)
	}

	printRunStatusLine(summary, gateOut, len(policy.Thresholds) > 0)

	if len(policy.Thresholds) > 0 && !gateResult {
		return gateFailError(fmt.Errorf("gate failed: %s", gateOut.Reason))
	}
	return nil
}

func hashBytes(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func adapterFingerprint(spec core.AdapterSpec) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", spec.Name, spec.Kind, spec.Endpoint, spec.Model)))
	return hex.EncodeToString(sum[:])
}

func printRunStatusLine(summary runner.Summary, gate gateOutcome, gated bool) {
	fmt.Printf("passed=%d failed=%d errors=%d budget-exceeded=%v\n",
		summary.Counts[core.StatusPassed],
		summary.Counts[core.StatusFailed],
		summary.Counts[core.StatusErrorInfrastructure]+summary.Counts[core.StatusErrorPolicy],
		summary.BudgetExceeded,
	)
	if gated {
		fmt.Printf("gate: passed=%v reason=%q\n", gate.Passed, gate.Reason)
	}
}
