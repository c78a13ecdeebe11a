package mockprovider

import (
	"context"
	"testing"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersUnderMockKind(t *testing.T) {
	a, err := adapter.New(core.AdapterSpec{Kind: core.AdapterMock}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestInvoke_ReturnsScriptedResponsesInOrder(t *testing.T) {
	c := &Client{Responses: []string{"first", "second"}, ToolResults: map[string]string{}}

	r1, err := c.Invoke(context.Background(), []core.Turn{{Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "first", r1.Text)

	r2, err := c.Invoke(context.Background(), []core.Turn{{Content: "hi again"}})
	require.NoError(t, err)
	assert.Equal(t, "second", r2.Text)

	assert.Equal(t, 2, c.CallCount)
}

func TestInvoke_ExhaustedResponsesErrors(t *testing.T) {
	c := &Client{Responses: []string{"only"}, ToolResults: map[string]string{}}
	_, _ = c.Invoke(context.Background(), nil)
	_, err := c.Invoke(context.Background(), nil)
	assert.Error(t, err)
}

func TestInvoke_ConfiguredErrorIsReturned(t *testing.T) {
	c := &Client{Responses: []string{"x"}, ToolResults: map[string]string{}}
	c.SetError(core.ErrAuthError)

	_, err := c.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrAuthError)
}

func TestCallTool_ReturnsConfiguredResult(t *testing.T) {
	c := &Client{ToolResults: map[string]string{"lookup": "42"}}
	result, err := c.CallTool(context.Background(), core.ToolCall{Name: "lookup"})
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestCallTool_UnconfiguredToolErrors(t *testing.T) {
	c := &Client{ToolResults: map[string]string{}}
	_, err := c.CallTool(context.Background(), core.ToolCall{Name: "unknown"})
	assert.Error(t, err)
}

func TestEnumerateTools_ReturnsConfiguredSchema(t *testing.T) {
	c := (&Client{ToolResults: map[string]string{}}).WithTools(adapter.ToolSchema{Name: "lookup"})
	tools, err := c.EnumerateTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Name)
}
