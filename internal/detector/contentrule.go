package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aipolab/aipo/internal/core"
)

// ContentRuleDetector iterates a configured rule set; a rule fires if any
// of its regex patterns match or any of its keywords appears
// case-insensitively in the response.
type ContentRuleDetector struct {
	rules    []core.ContentRule
	compiled [][]*regexp.Regexp
}

// NewContentRuleDetector precompiles every rule's regex patterns once at
// construction so Detect never pays compilation cost per call.
func NewContentRuleDetector(rules []core.ContentRule) (*ContentRuleDetector, error) {
	compiled := make([][]*regexp.Regexp, len(rules))
	for i, rule := range rules {
		res := make([]*regexp.Regexp, 0, len(rule.Patterns))
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("content rule %q: invalid pattern %q: %w", rule.Category, pattern, err)
			}
			res = append(res, re)
		}
		compiled[i] = res
	}
	return &ContentRuleDetector{rules: rules, compiled: compiled}, nil
}

func (d *ContentRuleDetector) Name() string { return "content-rule" }

// Detect reports one Finding per triggered rule, with the matched span (or
// matched keyword) captured in Description.
func (d *ContentRuleDetector) Detect(testID string, prompt, response string, toolCalls []core.ToolCall) []core.Finding {
	var findings []core.Finding
	lowerResponse := strings.ToLower(response)

	for i, rule := range d.rules {
		if span, matched := d.matchPatterns(i, response); matched {
			findings = append(findings, d.finding(testID, rule, span))
			continue
		}
		if kw, matched := matchKeywords(lowerResponse, rule.Keywords); matched {
			findings = append(findings, d.finding(testID, rule, kw))
		}
	}
	return findings
}

func (d *ContentRuleDetector) matchPatterns(ruleIdx int, response string) (string, bool) {
	for _, re := range d.compiled[ruleIdx] {
		if loc := re.FindStringIndex(response); loc != nil {
			return response[loc[0]:loc[1]], true
		}
	}
	return "", false
}

func matchKeywords(lowerResponse string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(lowerResponse, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func (d *ContentRuleDetector) finding(testID string, rule core.ContentRule, matchedSpan string) core.Finding {
	return core.Finding{
		TestID:      testID,
		Severity:    core.Severity(rule.Severity),
		Category:    rule.Category,
		Confidence:  1.0,
		Description: fmt.Sprintf("content rule %q matched %q", rule.Category, matchedSpan),
	}
}
