// Package evidence implements EvidencePack: a staging directory that
// collects a run's transcripts, reports, and optional traffic capture, then
// finalizes into a tamper-evident ZIP with a sha256 manifest, per spec §4.11.
//
// Grounded on paths.AtomicWriteFile for the tmp-write-fsync-rename pattern
// spec §4.11 step 3 requires ("write to .tmp, fsync, rename"), applied here
// to the manifest and the final archive rather than just one file.
package evidence

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/paths"
)

// Pack manages one run's evidence staging directory and its eventual
// finalized archive.
type Pack struct {
	RunID      string
	StagingDir string
	StartedAt  time.Time
}

// Open creates the staging directory tree (transcripts/, reports/, traffic/,
// conformance/) under stateDir/<run_id>.
func Open(stateDir, runID string) (*Pack, error) {
	stagingDir := filepath.Join(stateDir, runID)
	for _, sub := range []string{"transcripts", "reports", "traffic", "conformance"} {
		if err := os.MkdirAll(filepath.Join(stagingDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("evidence: create %s: %w", sub, err)
		}
	}
	return &Pack{RunID: runID, StagingDir: stagingDir, StartedAt: time.Now().UTC()}, nil
}

// WriteTranscript appends turn as one JSON line to transcripts/<test_id>.jsonl,
// per spec §6's transcript line format {turn_index, role, content, ts}.
func (p *Pack) WriteTranscript(testID string, turn core.Turn) error {
	path := filepath.Join(p.StagingDir, "transcripts", testID+".jsonl")
	line, err := json.Marshal(struct {
		TurnIndex uint32 `json:"turn_index"`
		Role      string `json:"role"`
		Content   string `json:"content"`
		TS        string `json:"ts"`
	}{
		TurnIndex: turn.TurnIndex,
		Role:      string(turn.Role),
		Content:   turn.Content,
		TS:        turn.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("evidence: marshal transcript line: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("evidence: open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("evidence: write transcript line: %w", err)
	}
	return nil
}

// WriteSummary writes reports/summary.json atomically.
func (p *Pack) WriteSummary(summary core.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("evidence: marshal summary: %w", err)
	}
	return paths.AtomicWriteFile(filepath.Join(p.StagingDir, "reports", "summary.json"), data, 0o644)
}

// WriteHAR writes the optional traffic/session.har artifact.
func (p *Pack) WriteHAR(data []byte) error {
	return paths.AtomicWriteFile(filepath.Join(p.StagingDir, "traffic", "session.har"), data, 0o644)
}

// Finalize walks the staging tree, computes every file's sha256, writes
// manifest.json, and packs everything into a deterministically-ordered ZIP
// at outputPath, per spec §4.11's three finalize steps.
func (p *Pack) Finalize(outputPath, engineVersion, adapterFingerprint, policyHash string, gateResult bool) (*core.EvidenceManifest, error) {
	files, err := p.hashTree()
	if err != nil {
		return nil, err
	}

	manifest := &core.EvidenceManifest{
		RunID:              p.RunID,
		StartedAt:          p.StartedAt,
		FinishedAt:         time.Now().UTC(),
		EngineVersion:      engineVersion,
		AdapterFingerprint: adapterFingerprint,
		PolicyHash:         policyHash,
		GateResult:         gateResult,
		Files:              files,
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("evidence: marshal manifest: %w", err)
	}
	if err := paths.AtomicWriteFile(filepath.Join(p.StagingDir, "manifest.json"), manifestData, 0o644); err != nil {
		return nil, err
	}

	// manifest.json itself must appear in the archive and be hashed for the
	// round-trip check, so re-walk after writing it.
	files, err = p.hashTree()
	if err != nil {
		return nil, err
	}
	manifest.Files = files

	archive, err := buildZip(p.StagingDir, files)
	if err != nil {
		return nil, err
	}
	if err := paths.AtomicWriteFile(outputPath, archive, 0o644); err != nil {
		return nil, err
	}

	return manifest, nil
}

// hashTree walks StagingDir and returns every regular file's relative path,
// sha256, and size, sorted by path for deterministic ordering.
func (p *Pack) hashTree() ([]core.EvidenceFile, error) {
	var files []core.EvidenceFile
	err := filepath.Walk(p.StagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.StagingDir, path)
		if err != nil {
			return err
		}
		sum, err := sha256File(path)
		if err != nil {
			return err
		}
		files = append(files, core.EvidenceFile{Path: filepath.ToSlash(rel), SHA256: sum, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: walk staging tree: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// buildZip packs files (already sorted) from stagingDir into a ZIP byte
// buffer with no extended attributes and zero timestamps, so identical
// staging trees produce byte-identical archives.
func buildZip(stagingDir string, files []core.EvidenceFile) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, ef := range files {
		data, err := os.ReadFile(filepath.Join(stagingDir, filepath.FromSlash(ef.Path)))
		if err != nil {
			return nil, fmt.Errorf("evidence: read %s for zip: %w", ef.Path, err)
		}
		header := &zip.FileHeader{Name: ef.Path, Method: zip.Deflate}
		header.SetModTime(time.Unix(0, 0).UTC())
		fw, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("evidence: create zip entry %s: %w", ef.Path, err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("evidence: write zip entry %s: %w", ef.Path, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("evidence: close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify reads every entry of the archive at archivePath, recomputes its
// sha256 in memory, and compares against manifest — the round-trip routine
// spec §4.11 requires. manifest.json is checked only when manifest lists it
// (a manifest read back from disk cannot list its own hash).
func Verify(archivePath string, manifest *core.EvidenceManifest) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("evidence: open archive: %w", err)
	}
	defer r.Close()

	expected := make(map[string]core.EvidenceFile, len(manifest.Files))
	for _, ef := range manifest.Files {
		expected[ef.Path] = ef
	}

	seen := make(map[string]bool, len(manifest.Files))
	for _, zf := range r.File {
		if zf.Name == "manifest.json" {
			if _, listed := expected[zf.Name]; !listed {
				seen[zf.Name] = true
				continue
			}
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("evidence: open zip entry %s: %w", zf.Name, err)
		}
		h := sha256.New()
		_, copyErr := io.Copy(h, rc)
		rc.Close()
		if copyErr != nil {
			return fmt.Errorf("evidence: read zip entry %s: %w", zf.Name, copyErr)
		}
		sum := hex.EncodeToString(h.Sum(nil))

		want, ok := expected[zf.Name]
		if !ok {
			return fmt.Errorf("evidence: archive entry %s not in manifest", zf.Name)
		}
		if want.SHA256 != sum {
			return fmt.Errorf("evidence: sha256 mismatch for %s: manifest=%s archive=%s", zf.Name, want.SHA256, sum)
		}
		seen[zf.Name] = true
	}

	for path := range expected {
		if path == "manifest.json" {
			continue
		}
		if !seen[path] {
			return fmt.Errorf("evidence: manifest entry %s missing from archive", path)
		}
	}
	return nil
}
