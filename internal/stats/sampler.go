package stats

import (
	"math"
	"math/rand"
	"sort"

	"github.com/aipolab/aipo/internal/core"
)

// StratifiedSample draws a deterministic, proportional-by-category subset of
// cases. Within each stratum (category), it draws ceil(rate*|stratum|) cases
// uniformly without replacement, using a seed so identical (suite, rate,
// seed) triples reproduce identical case-ID sets across runs (spec §4.8, S3).
func StratifiedSample(cases []core.TestCase, rate float64, seed int64) []core.TestCase {
	if rate >= 1 {
		out := make([]core.TestCase, len(cases))
		copy(out, cases)
		return out
	}
	if rate <= 0 {
		return nil
	}

	strata := map[string][]core.TestCase{}
	var categories []string
	for _, tc := range cases {
		if _, ok := strata[tc.Category]; !ok {
			categories = append(categories, tc.Category)
		}
		strata[tc.Category] = append(strata[tc.Category], tc)
	}
	sort.Strings(categories) // deterministic stratum iteration order

	rng := rand.New(rand.NewSource(seed))

	var result []core.TestCase
	for _, cat := range categories {
		bucket := strata[cat]
		k := int(math.Ceil(rate * float64(len(bucket))))
		if k > len(bucket) {
			k = len(bucket)
		}
		result = append(result, drawWithoutReplacement(bucket, k, rng)...)
	}
	return result
}

// drawWithoutReplacement performs a partial Fisher–Yates shuffle over a copy
// of bucket and returns the first k elements, using rng for determinism.
func drawWithoutReplacement(bucket []core.TestCase, k int, rng *rand.Rand) []core.TestCase {
	cp := make([]core.TestCase, len(bucket))
	copy(cp, bucket)
	for i := 0; i < k && i < len(cp); i++ {
		j := i + rng.Intn(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	if k > len(cp) {
		k = len(cp)
	}
	return cp[:k]
}
