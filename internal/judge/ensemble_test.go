package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedJudge struct {
	name string
	v    Verdict
	err  error
}

func (f fixedJudge) Name() string { return f.name }
func (f fixedJudge) Classify(ctx context.Context, prompt, response string) (Verdict, error) {
	return f.v, f.err
}

func TestNewEnsembleJudge_RejectsWeightsNotSummingToOne(t *testing.T) {
	_, err := NewEnsembleJudge([]WeightedJudge{
		{Judge: fixedJudge{v: Verdict{Score: 5}}, Weight: 0.3},
		{Judge: fixedJudge{v: Verdict{Score: 5}}, Weight: 0.3},
	})
	assert.Error(t, err)
}

func TestEnsembleJudge_WeightedAverage(t *testing.T) {
	e, err := NewEnsembleJudge([]WeightedJudge{
		{Judge: fixedJudge{name: "a", v: Verdict{Score: 2, Confidence: 0.9}}, Weight: 0.5},
		{Judge: fixedJudge{name: "b", v: Verdict{Score: 8, Confidence: 0.7}}, Weight: 0.5},
	})
	require.NoError(t, err)

	v, err := e.Classify(context.Background(), "p", "r")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Score)
}

func TestEnsembleJudge_TieBreaksConservative(t *testing.T) {
	// avg = 5.5 exactly -> should round down to 5, not up to 6.
	e, err := NewEnsembleJudge([]WeightedJudge{
		{Judge: fixedJudge{v: Verdict{Score: 5}}, Weight: 0.5},
		{Judge: fixedJudge{v: Verdict{Score: 6}}, Weight: 0.5},
	})
	require.NoError(t, err)

	v, err := e.Classify(context.Background(), "p", "r")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Score)
}

func TestEnsembleJudge_SkipsFailingMembers(t *testing.T) {
	e, err := NewEnsembleJudge([]WeightedJudge{
		{Judge: fixedJudge{v: Verdict{Score: 9}, err: errors.New("boom")}, Weight: 0.5},
		{Judge: fixedJudge{v: Verdict{Score: 3}}, Weight: 0.5},
	})
	require.NoError(t, err)

	v, err := e.Classify(context.Background(), "p", "r")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Score)
}

func TestEnsembleJudge_AllMembersFailErrors(t *testing.T) {
	e, err := NewEnsembleJudge([]WeightedJudge{
		{Judge: fixedJudge{err: errors.New("boom")}, Weight: 1.0},
	})
	require.NoError(t, err)

	_, err = e.Classify(context.Background(), "p", "r")
	assert.Error(t, err)
}
