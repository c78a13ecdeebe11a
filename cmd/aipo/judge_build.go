package main

import (
	"fmt"

	"github.com/aipolab/aipo/internal/adapter"
	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/judge"
)

// buildJudge constructs the Judge named by kind. llm and ensemble reuse the
// already-constructed target adapter as their own grading auxiliary — the
// CLI surface (spec §6) has no separate grading-model flag, so the model
// under test doubles as its own grader rather than requiring a second
// adapter spec just for judging.
//
// classifier has no CLI-wireable backend: no flag in spec §6 names a
// moderation endpoint or scoring-model URL for judge.SafetyClassifier to
// wrap, so --judge classifier is rejected at parse time with a usage error
// rather than silently constructing a judge that can never classify
// anything.
func buildJudge(kind string, target adapter.Adapter) (judge.Judge, error) {
	switch kind {
	case "", "keyword":
		return judge.NewKeywordJudge(), nil
	case "llm":
		return judge.NewLLMJudge(target), nil
	case "ensemble":
		members := []judge.WeightedJudge{
			{Judge: judge.NewKeywordJudge(), Weight: 0.5},
			{Judge: judge.NewLLMJudge(target), Weight: 0.5},
		}
		return judge.NewEnsembleJudge(members)
	case "classifier":
		return nil, fmt.Errorf("%w: --judge classifier has no built-in SafetyClassifier backend; use keyword, llm, or ensemble", core.ErrInvalidConfiguration)
	default:
		return nil, fmt.Errorf("%w: unknown judge kind %q", core.ErrInvalidConfiguration, kind)
	}
}
