// Package detector implements the pure-function Finding producers spec
// §4.5 defines: content-rule matching, tool-allowlist enforcement, and PII
// pattern matching. Detectors never call out to a network or mutate
// state — each is Detect(testID, prompt, response, toolCalls) -> []Finding.
package detector

import (
	"github.com/aipolab/aipo/internal/core"
)

// Detector is a pure function over a model response that emits zero or
// more Findings.
type Detector interface {
	Detect(testID string, prompt, response string, toolCalls []core.ToolCall) []core.Finding
	Name() string
}
