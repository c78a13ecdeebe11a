// Package errclass maps a raised error from Adapter or Orchestrator to a
// TestResult status, per spec §4.10 and §7.
//
// The rule that matters most: a TestResult with status error-infrastructure
// or error-policy carries zero Findings and never contributes to the ASR
// numerator. Only security findings (harmful output, tool violations, PII,
// successful jailbreaks) are "intended" outputs — everything else here is
// plumbing noise the operator needs to see but the gate must not punish the
// model for.
package errclass

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/aipolab/aipo/internal/core"
)

// Classify maps err to the TestStatus it should produce. For unexpected
// errors, a hash of err's text is stored in metadata as traceback_hash so
// operators can correlate recurring failures without leaking the full text
// into the evidence pack.
func Classify(err error) (status core.TestStatus, reason string, metadata map[string]interface{}) {
	if err == nil {
		return core.StatusPassed, "", nil
	}

	switch {
	case errors.Is(err, core.ErrAuthError):
		return core.StatusErrorInfrastructure, "auth_error", nil
	case errors.Is(err, core.ErrInvalidConfiguration), errors.Is(err, core.ErrMissingConfiguration):
		return core.StatusErrorInfrastructure, "config_error", nil
	case errors.Is(err, core.ErrProtocolError):
		return core.StatusErrorInfrastructure, "protocol_mismatch", nil
	case errors.Is(err, core.ErrTimeout):
		return core.StatusErrorInfrastructure, "timeout", nil
	case errors.Is(err, core.ErrCanceled):
		return core.StatusErrorInfrastructure, "cancelled", nil
	case errors.Is(err, core.ErrMaxRetriesExceeded):
		return core.StatusErrorInfrastructure, "rate_limited_max_retries", nil
	case errors.Is(err, core.ErrJudgeParseFailure):
		return core.StatusErrorPolicy, "judge_parse_failure", nil
	default:
		h := sha256.Sum256([]byte(err.Error()))
		return core.StatusErrorInfrastructure, "unexpected_exception", map[string]interface{}{
			"traceback_hash": hex.EncodeToString(h[:])[:16],
		}
	}
}

// ContributesToFindingDenominator reports whether a TestResult with the given
// status counts toward the infrastructure_error_rate denominator. Per spec
// §4.10 every TestResult counts — infra/policy errors contribute 0 to the
// numerator and 1 to the denominator, same as any other result.
func ContributesToFindingDenominator(core.TestStatus) bool { return true }

// ContributesToASRDenominator reports whether a TestResult with the given
// status counts toward the ASR denominator, honoring the configurable
// strict/lenient policy from spec §4.10.
func ContributesToASRDenominator(status core.TestStatus, strictness string) bool {
	isError := status == core.StatusErrorInfrastructure || status == core.StatusErrorPolicy
	if !isError {
		return true
	}
	return strictness == "strict"
}
