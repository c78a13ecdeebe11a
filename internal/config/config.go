// Package config resolves aipo's run configuration with the same three-layer
// precedence the teacher framework uses: CLI flags (highest) override
// environment variables (AIPO_ prefixed) which override file-loaded values
// which override the package defaults (lowest).
//
// Purpose:
//   - Central Config struct for every tunable in spec.md §6
//   - LoadFromEnv applies AIPO_* environment variables over Default() and any file values
//   - LoadFromFile applies a YAML config file, itself overridden by env/flags
//
// Scope:
// This package never talks to Viper directly — cmd/aipo binds cobra flags
// through Viper and copies their values onto the Config after LoadFromFile
// and LoadFromEnv so that flags always win. Config
// itself stays a plain struct so every other package can depend on it
// without pulling in the CLI stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every run-scoped setting the engine reads.
type Config struct {
	OutputDir      string `json:"output_dir" yaml:"output_dir" env:"AIPO_OUTPUT_DIR" default:"./aipo-runs"`
	ReportsDir     string `json:"reports_dir" yaml:"reports_dir" env:"AIPO_REPORTS_DIR"`
	TranscriptsDir string `json:"transcripts_dir" yaml:"transcripts_dir" env:"AIPO_TRANSCRIPTS_DIR"`
	LogLevel       string `json:"log_level" yaml:"log_level" env:"AIPO_LOG_LEVEL" default:"info"`
	LogFormat      string `json:"log_format" yaml:"log_format" default:"text"`
	Seed           int64  `json:"seed" yaml:"seed" env:"AIPO_SEED" default:"0"`

	Workers       int           `json:"workers" yaml:"workers" default:"0"` // 0 => min(8, NumCPU*4)
	ResultBuffer  int           `json:"result_buffer" yaml:"result_buffer" default:"64"`
	GracePeriod   time.Duration `json:"grace_period" yaml:"grace_period" default:"5s"`
	CallTimeout   time.Duration `json:"call_timeout" yaml:"call_timeout" default:"60s"`
	TestTimeout   time.Duration `json:"test_timeout" yaml:"test_timeout" default:"120s"`
	RunTimeout    time.Duration `json:"run_timeout" yaml:"run_timeout" default:"0"` // 0 => unbounded

	MaxTurns        int    `json:"max_turns" yaml:"max_turns" default:"1"`
	Orchestrator    string `json:"orchestrator" yaml:"orchestrator" default:"single"` // single|multi
	Scoring         string `json:"scoring" yaml:"scoring" default:"any"`              // any|majority|final
	JudgeKind       string `json:"judge" yaml:"judge" default:"keyword"`              // keyword|llm|classifier|ensemble
	JudgeThreshold  float64 `json:"judge_threshold" yaml:"judge_threshold" default:"8.0"`
	SampleRate      float64 `json:"sample_rate" yaml:"sample_rate" default:"1.0"`
	ASRStrictness   string  `json:"asr_strictness" yaml:"asr_strictness" default:"strict"` // strict|lenient

	BudgetUSD       float64 `json:"budget_usd" yaml:"budget_usd" default:"0"` // 0 => unbounded
	MaxWallClock    time.Duration `json:"max_wall_clock" yaml:"max_wall_clock" default:"0"`
	MaxTotalTokens  int64   `json:"max_total_tokens" yaml:"max_total_tokens" default:"0"`

	CacheTTLDefault time.Duration `json:"cache_ttl_default" yaml:"cache_ttl_default" default:"24h"`
	CachePolicy     string        `json:"cache_policy" yaml:"cache_policy" default:"current"` // current|all

	CaptureTraffic bool `json:"capture_traffic" yaml:"capture_traffic" default:"false"`

	EngineVersion string `json:"engine_version" yaml:"engine_version" default:"0.1.0"`
}

// Default returns the package defaults, independent of environment and files.
func Default() *Config {
	return &Config{
		OutputDir:       "./aipo-runs",
		LogLevel:        "info",
		LogFormat:       "text",
		Workers:         0,
		ResultBuffer:    64,
		GracePeriod:     5 * time.Second,
		CallTimeout:     60 * time.Second,
		TestTimeout:     120 * time.Second,
		MaxTurns:        1,
		Orchestrator:    "single",
		Scoring:         "any",
		JudgeKind:       "keyword",
		JudgeThreshold:  8.0,
		SampleRate:      1.0,
		ASRStrictness:   "strict",
		CacheTTLDefault: 24 * time.Hour,
		CachePolicy:     "current",
		EngineVersion:   "0.1.0",
	}
}

// LoadFromFile merges a YAML config file on top of cfg's current values.
// A missing file is not an error; callers decide whether a file is required.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies AIPO_-prefixed environment variables over c's current
// values, field by field, mirroring the teacher's explicit (non-reflection)
// style so each variable's parsing failure can be reported individually.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("AIPO_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("AIPO_REPORTS_DIR"); v != "" {
		c.ReportsDir = v
	}
	if v := os.Getenv("AIPO_TRANSCRIPTS_DIR"); v != "" {
		c.TranscriptsDir = v
	}
	if v := os.Getenv("AIPO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AIPO_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: AIPO_SEED=%q: %w", v, err)
		}
		c.Seed = n
	}
	return nil
}

// ResolvedWorkers returns Workers if set, else min(8, NumCPU*4) as spec §5 requires.
func (c *Config) ResolvedWorkers(numCPU int) int {
	if c.Workers > 0 {
		return c.Workers
	}
	w := numCPU * 4
	if w > 8 {
		w = 8
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Validate reports configuration errors that should abort with exit code 2.
func (c *Config) Validate() error {
	if c.MaxTurns < 1 || c.MaxTurns > 100 {
		return fmt.Errorf("config: max_turns must be in [1,100], got %d", c.MaxTurns)
	}
	switch c.Orchestrator {
	case "single", "multi":
	default:
		return fmt.Errorf("config: orchestrator must be single|multi, got %q", c.Orchestrator)
	}
	switch c.Scoring {
	case "any", "majority", "final":
	default:
		return fmt.Errorf("config: scoring must be any|majority|final, got %q", c.Scoring)
	}
	switch strings.ToLower(c.JudgeKind) {
	case "keyword", "llm", "classifier", "ensemble":
	default:
		return fmt.Errorf("config: judge must be keyword|llm|classifier|ensemble, got %q", c.JudgeKind)
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		return fmt.Errorf("config: sample_rate must be in (0,1], got %f", c.SampleRate)
	}
	switch c.ASRStrictness {
	case "strict", "lenient":
	default:
		return fmt.Errorf("config: asr_strictness must be strict|lenient, got %q", c.ASRStrictness)
	}
	return nil
}
