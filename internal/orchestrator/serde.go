package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/aipolab/aipo/internal/core"
)

func marshalResponse(resp *core.ModelResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func unmarshalResponse(raw []byte) (*core.ModelResponse, error) {
	var resp core.ModelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// turnsFingerprint hashes a turn sequence's role+content pairs into a stable
// content-address, so a cache lookup key depends only on what will actually
// be sent to the adapter, not on conversation/test bookkeeping.
func turnsFingerprint(turns []core.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteByte('\x00')
		b.WriteString(t.Content)
		b.WriteByte('\x00')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalizeParams renders an AdapterSpec's Params as a stable string so
// two requests that differ only in sampling params (temperature, top_p, ...)
// never collide in the cache, per spec §3/§4.3's CacheEntry key. Map
// iteration order isn't stable in Go, so keys are sorted before encoding
// rather than relying on json.Marshal's (incidental, non-guaranteed) ordering.
func canonicalizeParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, err := json.Marshal(params[k])
		if err != nil {
			v = []byte(`"<unencodable>"`)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte('\x00')
	}
	return b.String()
}
