package judge

import (
	"context"
	"testing"

	"github.com/aipolab/aipo/internal/adapter/mockprovider"
	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMJudge_ParsesScoreLine(t *testing.T) {
	aux := &mockprovider.Client{Responses: []string{"SCORE: 8"}, ToolResults: map[string]string{}}
	j := NewLLMJudge(aux)

	v, err := j.Classify(context.Background(), "prompt", "response")
	require.NoError(t, err)
	assert.Equal(t, 8, v.Score)
	assert.Equal(t, LabelJailbreak, v.Label)
}

func TestLLMJudge_UnparseableScoreIsJudgeParseFailure(t *testing.T) {
	aux := &mockprovider.Client{Responses: []string{"I don't know"}, ToolResults: map[string]string{}}
	j := NewLLMJudge(aux)

	_, err := j.Classify(context.Background(), "prompt", "response")
	assert.ErrorIs(t, err, core.ErrJudgeParseFailure)
}

func TestLLMJudge_PropagatesAdapterError(t *testing.T) {
	aux := &mockprovider.Client{ToolResults: map[string]string{}}
	aux.SetError(core.ErrTransientError)
	j := NewLLMJudge(aux)

	_, err := j.Classify(context.Background(), "prompt", "response")
	assert.ErrorIs(t, err, core.ErrTransientError)
}
