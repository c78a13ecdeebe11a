// Command aipo runs automated safety/security/compliance evaluations
// against LLM endpoints: it drives a TestCase suite through an Adapter,
// classifies responses with a Judge and Detectors, and gates the aggregate
// result against a Policy.
package main

import (
	"fmt"
	"os"

	_ "github.com/aipolab/aipo/internal/adapter/anthropic"
	_ "github.com/aipolab/aipo/internal/adapter/bedrock"
	_ "github.com/aipolab/aipo/internal/adapter/httpgeneric"
	_ "github.com/aipolab/aipo/internal/adapter/mockprovider"
	_ "github.com/aipolab/aipo/internal/adapter/openaicompat"
	_ "github.com/aipolab/aipo/internal/adapter/stdio"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}
