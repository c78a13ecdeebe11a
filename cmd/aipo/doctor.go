package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/logger"
)

var doctorFlags struct {
	adaptersFile string
	adapterName  string
	model        string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Preflight checks for configuration and adapter reachability",
}

var doctorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate config and, if --adapter is given, probe it with a trivial invocation",
	RunE:  runDoctorCheck,
}

func init() {
	f := doctorCheckCmd.Flags()
	f.StringVar(&doctorFlags.adaptersFile, "adapters-file", "aipo-adapters.yaml", "path to the named-adapter config file --adapter looks up")
	f.StringVar(&doctorFlags.adapterName, "adapter", "", "adapter name to probe; omit to only validate config")
	f.StringVar(&doctorFlags.model, "model", "", "model identifier; overrides the adapter file's model")
	doctorCmd.AddCommand(doctorCheckCmd)
}

func runDoctorCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("config: FAIL (%v)\n", err)
		return usageErrorf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("config: FAIL (%v)\n", err)
		return usageErrorf("%v", err)
	}
	fmt.Println("config: ok")

	if doctorFlags.adapterName == "" {
		return nil
	}

	spec, err := resolveAdapterSpec(doctorFlags.adaptersFile, doctorFlags.adapterName, doctorFlags.model)
	if err != nil {
		fmt.Printf("adapter %q: FAIL (%v)\n", doctorFlags.adapterName, err)
		return usageErrorf("%v", err)
	}

	log := logger.New(logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	ad, err := adapter.New(spec, log, nil)
	if err != nil {
		fmt.Printf("adapter %q: FAIL (%v)\n", doctorFlags.adapterName, err)
		return usageErrorf("construct adapter: %v", err)
	}
	defer ad.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	probe := []core.Turn{{Role: core.RoleUser, Content: "ping", TurnIndex: 0}}
	resp, err := ad.Invoke(ctx, probe)
	if err != nil {
		fmt.Printf("adapter %q: FAIL (%v)\n", doctorFlags.adapterName, err)
		return gateFailError(fmt.Errorf("adapter %s unreachable: %w", doctorFlags.adapterName, err))
	}
	fmt.Printf("adapter %q: ok (responded in-band, %d input / %d output tokens)\n",
		doctorFlags.adapterName, resp.InputTokens, resp.OutputTokens)
	return nil
}
