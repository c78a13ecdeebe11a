package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_KnownModelUsesExactRate(t *testing.T) {
	table := NewTable()
	got := table.Estimate("gpt-4o", 1000, 500)
	want := 1000*0.0000025 + 500*0.00001
	assert.InDelta(t, want, got, 1e-9)
}

func TestEstimate_UnknownModelFallsBackToDefault(t *testing.T) {
	table := NewTable()
	got := table.Estimate("some-model-nobody-has-heard-of", 1000, 1000)
	want := 1000*DefaultRate.InputPerToken + 1000*DefaultRate.OutputPerToken
	assert.InDelta(t, want, got, 1e-9)
}

func TestEstimate_PrefixMatchAppliesToVersionedBedrockIDs(t *testing.T) {
	table := NewTable()
	got := table.Estimate("anthropic.claude-3-5-sonnet-20241022-v2:0", 200, 200)
	want := 200*0.000003 + 200*0.000015
	assert.InDelta(t, want, got, 1e-9)
}
