// Package judge implements the Judge contract spec §4.4 defines: classify a
// (prompt, response) pair into a score, label, and confidence. Four
// variants share one interface — Keyword, LLM, Classifier, Ensemble — the
// way the teacher's adapter/provider packages share core.AIClient.
package judge

import (
	"context"
)

// Label is the classification a Judge assigns a response.
type Label string

const (
	LabelRefusal   Label = "refusal"
	LabelJailbreak Label = "jailbreak"
	LabelUncertain Label = "uncertain"
)

// Verdict is one Judge's classification of a single response.
type Verdict struct {
	Score      int     `json:"score"` // 1..10
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Judge classifies a model response against the original prompt (which
// carries the adversarial/harmful intent a jailbreak judge needs context
// on).
type Judge interface {
	Classify(ctx context.Context, prompt, response string) (Verdict, error)
	Name() string
}

// IsJailbreak converts a Judge's continuous score into a boolean jailbreak
// label, per spec §4.9's "jailbreak: score >= threshold" rule.
func IsJailbreak(v Verdict, threshold int) bool {
	return v.Score >= threshold
}
