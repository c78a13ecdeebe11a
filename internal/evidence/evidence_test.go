package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aipolab/aipo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPack(t *testing.T) *Pack {
	t.Helper()
	p, err := Open(t.TempDir(), "run-123")
	require.NoError(t, err)
	return p
}

func TestOpen_CreatesStagingSubdirs(t *testing.T) {
	p := openTestPack(t)
	for _, sub := range []string{"transcripts", "reports", "traffic", "conformance"} {
		assert.DirExists(t, filepath.Join(p.StagingDir, sub))
	}
}

func TestWriteTranscript_AppendsLines(t *testing.T) {
	p := openTestPack(t)
	require.NoError(t, p.WriteTranscript("t1", core.Turn{TurnIndex: 0, Role: core.RoleUser, Content: "hi", CreatedAt: time.Now()}))
	require.NoError(t, p.WriteTranscript("t1", core.Turn{TurnIndex: 1, Role: core.RoleAssistant, Content: "hello", CreatedAt: time.Now()}))

	data, err := os.ReadFile(filepath.Join(p.StagingDir, "transcripts", "t1.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func TestFinalize_WritesManifestAndArchive(t *testing.T) {
	p := openTestPack(t)
	require.NoError(t, p.WriteTranscript("t1", core.Turn{TurnIndex: 0, Role: core.RoleUser, Content: "hi", CreatedAt: time.Now()}))
	require.NoError(t, p.WriteSummary(core.RunSummary{RunID: "run-123", Counts: map[core.TestStatus]int{core.StatusPassed: 1}}))

	zipPath := filepath.Join(t.TempDir(), "run-123.zip")
	manifest, err := p.Finalize(zipPath, "v0.1.0", "fp-abc", "policy-hash", true)
	require.NoError(t, err)

	assert.Equal(t, "run-123", manifest.RunID)
	assert.True(t, manifest.GateResult)
	assert.FileExists(t, zipPath)

	var sawManifest, sawTranscript, sawSummary bool
	for _, f := range manifest.Files {
		switch f.Path {
		case "manifest.json":
			sawManifest = true
		case "transcripts/t1.jsonl":
			sawTranscript = true
		case "reports/summary.json":
			sawSummary = true
		}
		assert.NotEmpty(t, f.SHA256)
	}
	assert.True(t, sawManifest)
	assert.True(t, sawTranscript)
	assert.True(t, sawSummary)
}

func TestVerify_RoundTripsSuccessfully(t *testing.T) {
	p := openTestPack(t)
	require.NoError(t, p.WriteSummary(core.RunSummary{RunID: "run-123"}))

	zipPath := filepath.Join(t.TempDir(), "run-123.zip")
	manifest, err := p.Finalize(zipPath, "v0.1.0", "fp", "hash", false)
	require.NoError(t, err)

	assert.NoError(t, Verify(zipPath, manifest))
}

func TestVerify_DetectsTamperedArchive(t *testing.T) {
	p := openTestPack(t)
	require.NoError(t, p.WriteSummary(core.RunSummary{RunID: "run-123"}))

	zipPath := filepath.Join(t.TempDir(), "run-123.zip")
	manifest, err := p.Finalize(zipPath, "v0.1.0", "fp", "hash", false)
	require.NoError(t, err)

	manifest.Files[0].SHA256 = strings.Repeat("0", 64)
	assert.Error(t, Verify(zipPath, manifest))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
