package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aipolab/aipo/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aipo",
	Short: "Automated safety, security, and compliance evaluation for LLM endpoints",
	Long: `aipo drives a suite of adversarial and compliance test cases through a
model adapter, classifies each response with a judge and content detectors,
and gates the aggregate run against a policy's thresholds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initViper)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("output-dir", "", "root directory for aipo's state, cache, and run artifacts (env AIPO_OUTPUT_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "debug|info|warn|error (env AIPO_LOG_LEVEL)")
	_ = viper.BindPFlag("output_dir", rootCmd.PersistentFlags().Lookup("output-dir"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(verifySuiteCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(replayConversationCmd)
	rootCmd.AddCommand(listConversationsCmd)
	rootCmd.AddCommand(doctorCmd)
}

// initViper wires the same three-layer precedence internal/config documents:
// flags (bound above) override AIPO_-prefixed env vars, which override a
// YAML config file, which overrides the package defaults. A .env file is
// loaded first (if present) so provider API keys set there reach os.Getenv
// before any adapter constructor reads them.
func initViper() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	viper.SetEnvPrefix("AIPO")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to read config file %s: %v\n", cfgFile, err)
		}
	}
}

// loadConfig builds the effective Config for this invocation: package
// defaults, then an optional config file, then environment variables, then
// the root --output-dir/--log-level flags. Subcommand flags are applied by
// each subcommand on top of the returned Config, since cobra flag values
// aren't visible until that command's RunE runs.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := cfg.LoadFromFile(cfgFile); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if v := viper.GetString("output_dir"); v != "" {
		cfg.OutputDir = v
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// exitError pins a command failure to one of spec §6's normative exit
// codes (0 pass, 1 gate-fail, 2 usage error) instead of letting every error
// fall through to cobra's default non-zero exit.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func gateFailError(err error) error {
	return &exitError{code: 1, err: err}
}

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
