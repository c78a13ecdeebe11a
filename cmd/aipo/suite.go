package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aipolab/aipo/internal/core"
)

// loadSuite reads a YAML Suite file. There is no dedicated Suite-loader
// package in this engine — a suite file is just core.Suite's YAML shape,
// so a thin wrapper living alongside the CLI that constructs it is enough.
func loadSuite(path string) (core.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Suite{}, fmt.Errorf("%w: read suite %s: %v", core.ErrMissingConfiguration, path, err)
	}
	var suite core.Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return core.Suite{}, fmt.Errorf("%w: parse suite %s: %v", core.ErrInvalidConfiguration, path, err)
	}
	if len(suite.Cases) == 0 {
		return core.Suite{}, fmt.Errorf("%w: suite %s has no test cases", core.ErrInvalidConfiguration, path)
	}
	return suite, nil
}

// loadPolicy reads a YAML Policy file used by the gate and by detectors
// needing content rules / a tool allowlist. An empty path returns the zero
// Policy (no thresholds, no rules) rather than an error, since `run` permits
// operating without a gate.
func loadPolicy(path string) (core.Policy, error) {
	if path == "" {
		return core.Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Policy{}, fmt.Errorf("%w: read policy %s: %v", core.ErrMissingConfiguration, path, err)
	}
	var policy core.Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return core.Policy{}, fmt.Errorf("%w: parse policy %s: %v", core.ErrInvalidConfiguration, path, err)
	}
	for _, w := range policy.Thresholds {
		if w.Op != core.OpLessEqual && w.Op != core.OpGreaterEqual && w.Op != "" {
			return core.Policy{}, fmt.Errorf("%w: threshold %q has invalid op %q", core.ErrMalformedPolicy, w.Metric, w.Op)
		}
	}
	return policy, nil
}
