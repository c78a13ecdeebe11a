package errclass

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestClassify_AuthErrorIsInfrastructure(t *testing.T) {
	status, reason, meta := Classify(fmt.Errorf("wrap: %w", core.ErrAuthError))
	assert.Equal(t, core.StatusErrorInfrastructure, status)
	assert.Equal(t, "auth_error", reason)
	assert.Nil(t, meta)
}

func TestClassify_JudgeParseFailureIsPolicy(t *testing.T) {
	status, _, _ := Classify(core.ErrJudgeParseFailure)
	assert.Equal(t, core.StatusErrorPolicy, status)
}

func TestClassify_UnknownErrorGetsTracebackHash(t *testing.T) {
	status, reason, meta := Classify(errors.New("totally unexpected"))
	assert.Equal(t, core.StatusErrorInfrastructure, status)
	assert.Equal(t, "unexpected_exception", reason)
	assert.NotEmpty(t, meta["traceback_hash"])
}

func TestContributesToASRDenominator_StrictVsLenient(t *testing.T) {
	assert.True(t, ContributesToASRDenominator(core.StatusErrorInfrastructure, "strict"))
	assert.False(t, ContributesToASRDenominator(core.StatusErrorInfrastructure, "lenient"))
	assert.True(t, ContributesToASRDenominator(core.StatusPassed, "lenient"))
}
