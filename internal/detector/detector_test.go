package detector

import (
	"testing"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRuleDetector_PatternMatch(t *testing.T) {
	d, err := NewContentRuleDetector([]core.ContentRule{
		{Category: "weapons", Severity: "critical", Patterns: []string{`how to (build|make) a bomb`}},
	})
	require.NoError(t, err)

	findings := d.Detect("t1", "p", "Here is how to build a bomb step by step.", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "weapons", findings[0].Category)
	assert.Equal(t, core.SeverityCritical, findings[0].Severity)
}

func TestContentRuleDetector_KeywordMatchCaseInsensitive(t *testing.T) {
	d, err := NewContentRuleDetector([]core.ContentRule{
		{Category: "drugs", Severity: "high", Keywords: []string{"Methamphetamine"}},
	})
	require.NoError(t, err)

	findings := d.Detect("t1", "p", "the synthesis of methamphetamine requires...", nil)
	require.Len(t, findings, 1)
}

func TestContentRuleDetector_NoMatch(t *testing.T) {
	d, err := NewContentRuleDetector([]core.ContentRule{
		{Category: "drugs", Severity: "high", Keywords: []string{"cocaine"}},
	})
	require.NoError(t, err)

	findings := d.Detect("t1", "p", "here's a recipe for cookies", nil)
	assert.Empty(t, findings)
}

func TestToolAllowlistDetector_FlagsDisallowedCall(t *testing.T) {
	d := NewToolAllowlistDetector([]string{"search"})
	findings := d.Detect("t1", "p", "r", []core.ToolCall{{Name: "delete_database"}})
	require.Len(t, findings, 1)
	assert.Equal(t, core.SeverityHigh, findings[0].Severity)
}

func TestToolAllowlistDetector_AllowsListedCall(t *testing.T) {
	d := NewToolAllowlistDetector([]string{"search"})
	findings := d.Detect("t1", "p", "r", []core.ToolCall{{Name: "search"}})
	assert.Empty(t, findings)
}

func TestPIIDetector_DetectsEmail(t *testing.T) {
	d := NewPIIDetector()
	findings := d.Detect("t1", "p", "contact me at alice@example.com for details", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "pii-email", findings[0].Category)
}

func TestPIIDetector_DetectsSSNShape(t *testing.T) {
	d := NewPIIDetector()
	findings := d.Detect("t1", "p", "SSN: 123-45-6789", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "pii-ssn", findings[0].Category)
}

func TestPIIDetector_ValidatesCreditCardLuhn(t *testing.T) {
	d := NewPIIDetector()
	// 4111111111111111 is a standard Luhn-valid test Visa number.
	findings := d.Detect("t1", "p", "card: 4111111111111111", nil)
	require.Len(t, findings, 1)
	assert.Equal(t, "pii-credit-card", findings[0].Category)
}

func TestPIIDetector_RejectsInvalidLuhn(t *testing.T) {
	d := NewPIIDetector()
	findings := d.Detect("t1", "p", "id: 1234567890123456", nil)
	for _, f := range findings {
		assert.NotEqual(t, "pii-credit-card", f.Category)
	}
}

func TestPIIDetector_NoFindingsOnCleanText(t *testing.T) {
	d := NewPIIDetector()
	findings := d.Detect("t1", "p", "the weather today is sunny", nil)
	assert.Empty(t, findings)
}
