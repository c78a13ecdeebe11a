package adapter

import (
	"testing"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus_MapsKnownCodes(t *testing.T) {
	assert.ErrorIs(t, ClassifyStatus(401), core.ErrAuthError)
	assert.ErrorIs(t, ClassifyStatus(403), core.ErrAuthError)
	assert.ErrorIs(t, ClassifyStatus(429), core.ErrRateLimitError)
	assert.ErrorIs(t, ClassifyStatus(500), core.ErrTransientError)
	assert.ErrorIs(t, ClassifyStatus(400), core.ErrProtocolError)
	assert.NoError(t, ClassifyStatus(200))
}

func TestNew_UnknownKindErrors(t *testing.T) {
	_, err := New(core.AdapterSpec{Kind: core.AdapterKind("nonexistent")}, nil, nil)
	assert.Error(t, err)
}

func TestAdapterSpec_ValidateRejectsMissingEndpoint(t *testing.T) {
	err := core.AdapterSpec{Kind: core.AdapterOpenAICompatible}.Validate()
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}
