package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/cache"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/logger"
	"github.com/aipolab/aipo/internal/orchestrator"
	"github.com/aipolab/aipo/internal/pricing"
	"github.com/aipolab/aipo/internal/runner"
)

var verifySuiteFlags struct {
	adaptersFile string
	adapterName  string
	model        string
	sampleRate   float64
	judgeKind    string
	threshold    float64
	reportFormat string
}

var verifySuiteCmd = &cobra.Command{
	Use:   "verify-suite <suite>",
	Short: "Run a suite once and report its measured ASR with a confidence interval",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifySuite,
}

func init() {
	f := verifySuiteCmd.Flags()
	f.StringVar(&verifySuiteFlags.adaptersFile, "adapters-file", "aipo-adapters.yaml", "path to the named-adapter config file --adapter looks up")
	f.StringVar(&verifySuiteFlags.adapterName, "adapter", "", "adapter name (required)")
	f.StringVar(&verifySuiteFlags.model, "model", "", "model identifier; overrides the adapter file's model (required)")
	f.Float64Var(&verifySuiteFlags.sampleRate, "sample-rate", 1.0, "fraction of the suite to sample")
	f.StringVar(&verifySuiteFlags.judgeKind, "judge", "keyword", "keyword|llm|classifier|ensemble")
	f.Float64Var(&verifySuiteFlags.threshold, "threshold", 0, "max acceptable ASR point estimate; 0 disables the check")
	f.StringVar(&verifySuiteFlags.reportFormat, "report-format", "json", "json|yaml|md|html")
}

func runVerifySuite(cmd *cobra.Command, args []string) error {
	if verifySuiteFlags.adapterName == "" || verifySuiteFlags.model == "" {
		return usageErrorf("--adapter and --model are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return usageErrorf("%v", err)
	}

	suite, err := loadSuite(args[0])
	if err != nil {
		return usageErrorf("%v", err)
	}

	spec, err := resolveAdapterSpec(verifySuiteFlags.adaptersFile, verifySuiteFlags.adapterName, verifySuiteFlags.model)
	if err != nil {
		return usageErrorf("%v", err)
	}

	log := logger.New(logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	ad, err := adapter.New(spec, log, nil)
	if err != nil {
		return fmt.Errorf("%w: construct adapter: %v", core.ErrInvalidConfiguration, err)
	}
	defer ad.Close()

	judgeInstance, err := buildJudge(verifySuiteFlags.judgeKind, ad)
	if err != nil {
		return usageErrorf("%v", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		Cache:         cache.New(cache.Options{DefaultTTL: cfg.CacheTTLDefault}),
		Judge:         judgeInstance,
		Logger:        log,
		Pricing:       pricing.NewTable(),
		Model:         spec.Model,
		Params:        spec.Params,
		EngineVersion: cfg.EngineVersion,
	})

	exec := func(ctx context.Context, test core.TestCase, cancel <-chan struct{}) core.TestResult {
		return orch.ExecuteSingleTurn(ctx, test, ad, cancel)
	}

	tr := runner.New(runner.Options{Logger: log})
	summary := tr.Run(context.Background(), suite.Cases, verifySuiteFlags.sampleRate, cfg.Seed, exec)
	runSummary := buildSummary(uuid.NewString(), suite, summary, cfg.ASRStrictness)

	if err := renderReport(runSummary, verifySuiteFlags.reportFormat); err != nil {
		return usageErrorf("%v", err)
	}

	if verifySuiteFlags.threshold > 0 && runSummary.Metrics[core.MetricASR] > verifySuiteFlags.threshold {
		return gateFailError(fmt.Errorf("measured asr %.4f exceeds threshold %.4f",
			runSummary.Metrics[core.MetricASR], verifySuiteFlags.threshold))
	}
	return nil
}

func renderReport(summary core.RunSummary, format string) error {
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(summary)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "md":
		fmt.Printf("# aipo verify-suite report: %s\n\n", summary.SuiteName)
		fmt.Printf("| metric | value |\n|---|---|\n")
		for k, v := range summary.Metrics {
			fmt.Printf("| %s | %.4f |\n", k, v)
		}
	case "html":
		fmt.Printf("<html><body><h1>aipo verify-suite report: %s</h1><table>\n", summary.SuiteName)
		for k, v := range summary.Metrics {
			fmt.Printf("<tr><td>%s</td><td>%.4f</td></tr>\n", k, v)
		}
		fmt.Println("</table></body></html>")
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	return nil
}
