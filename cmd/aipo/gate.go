package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/evidence"
	"github.com/aipolab/aipo/internal/gate"
)

// gateOutcome is the thin, CLI-facing projection of gate.Result that `run`
// and `gate` both print and branch on.
type gateOutcome struct {
	Passed bool
	Reason string
}

func evaluateGate(summary core.RunSummary, policy core.Policy) gateOutcome {
	result := gate.Evaluate(summary, policy)
	return gateOutcome{Passed: result.Passed, Reason: result.Reason}
}

var gateFlags struct {
	summaryPath     string
	policyPath      string
	generateEvidence bool
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate a stored run summary against a policy's thresholds",
	RunE:  runGate,
}

func init() {
	f := gateCmd.Flags()
	f.StringVar(&gateFlags.summaryPath, "summary", "", "path to a summary.json (required)")
	f.StringVar(&gateFlags.policyPath, "policy", "", "path to a policy YAML file (required)")
	f.BoolVar(&gateFlags.generateEvidence, "generate-evidence", false, "re-verify the evidence pack alongside this summary, if one exists next to it")
}

func runGate(cmd *cobra.Command, args []string) error {
	if gateFlags.summaryPath == "" || gateFlags.policyPath == "" {
		return usageErrorf("--summary and --policy are required")
	}

	data, err := os.ReadFile(gateFlags.summaryPath)
	if err != nil {
		return usageErrorf("read summary: %v", err)
	}
	var summary core.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return usageErrorf("parse summary: %v", err)
	}

	policy, err := loadPolicy(gateFlags.policyPath)
	if err != nil {
		return usageErrorf("%v", err)
	}

	result := gate.Evaluate(summary, policy)
	for _, check := range result.Checks {
		fmt.Printf("%-32s actual=%-10.4f threshold=%-10.4f passed=%v\n", check.Metric, check.Actual, check.Value, check.Passed)
	}
	fmt.Printf("gate: passed=%v reason=%q\n", result.Passed, result.Reason)

	if gateFlags.generateEvidence {
		manifestPath := summaryDirManifest(gateFlags.summaryPath)
		if manifestPath != "" {
			if err := verifyManifestFile(manifestPath); err != nil {
				fmt.Printf("evidence verification failed: %v\n", err)
			} else {
				fmt.Println("evidence verification: ok")
			}
		}
	}

	if !result.Passed {
		return gateFailError(fmt.Errorf("%s", result.Reason))
	}
	return nil
}

// summaryDirManifest guesses manifest.json's path as a sibling of
// summary.json's reports/ directory (the evidence.Pack layout run writes:
// <staging>/reports/summary.json and <staging>/manifest.json).
func summaryDirManifest(summaryPath string) string {
	stagingDir := filepath.Dir(filepath.Dir(summaryPath))
	if stagingDir == "" || stagingDir == "." {
		return ""
	}
	return filepath.Join(stagingDir, "manifest.json")
}

func verifyManifestFile(manifestPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	var manifest core.EvidenceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}
	stagingDir := filepath.Dir(manifestPath)
	archivePath := filepath.Join(filepath.Dir(stagingDir), manifest.RunID+".zip")
	return evidence.Verify(archivePath, &manifest)
}
