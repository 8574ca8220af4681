package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docgate/internal/ruleset"
)

const bilanText = "IDENTITÉ\nMadame Anne ROCHAT - 756.1111.2222.33\nCONCLUSION\nApte au placement.\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// Ignore RULESET_PATH from the environment.
	cmd.SetArgs(append(args, "--ruleset="))
	err := cmd.Execute()
	return out.String(), err
}

func writeBilan(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(bilanText), 0o644))
	return path
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeBilan(t, dir, "bilan.txt")

	out, err := run(t, "parse", src, "--profile", "bilan_complet")
	require.NoError(t, err)

	var res map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	for _, key := range []string{"normalized", "report", "provenance", "production_gate", "meta"} {
		assert.Contains(t, res, key)
	}
	assert.NotContains(t, res, "segments")

	var g struct {
		ProfileID string `json:"profile_id"`
		Forced    bool   `json:"forced"`
	}
	require.NoError(t, json.Unmarshal(res["production_gate"], &g))
	assert.Equal(t, "bilan_complet", g.ProfileID)
	assert.True(t, g.Forced)
}

func TestParseCommand_OutFileAndProvenance(t *testing.T) {
	dir := t.TempDir()
	src := writeBilan(t, dir, "bilan.txt")
	resultPath := filepath.Join(dir, "result.json")

	out, err := run(t, "parse", src, "--out", resultPath, "--segments")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.FileExists(t, resultPath)

	out, err = run(t, "provenance", resultPath)
	require.NoError(t, err)
	assert.Contains(t, out, "sections tracked")
	assert.Contains(t, out, "identity")

	out, err = run(t, "provenance", resultPath, "identity")
	require.NoError(t, err)
	assert.Contains(t, out, "source title")

	out, err = run(t, "provenance", resultPath, "nope")
	assert.Error(t, err)
	assert.Contains(t, out, "available:")
}

func TestParseCommand_Unsupported(t *testing.T) {
	_, err := run(t, "parse", filepath.Join(t.TempDir(), "bilan.xls"))
	assert.Error(t, err)
}

func TestBatchCommand(t *testing.T) {
	root := t.TempDir()
	writeBilan(t, root, "client_a/source.txt")
	writeBilan(t, root, "client_b/source.txt")
	outDir := filepath.Join(t.TempDir(), "reports")

	out, err := run(t, "batch", root, "--pattern", "source.txt", "--out", outDir, "-c", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "processed 2: 2 ok, 0 errors"), out)
	assert.FileExists(t, filepath.Join(outDir, "batch_report.json"))
	assert.FileExists(t, filepath.Join(outDir, "batch_report.md"))
	assert.FileExists(t, filepath.Join(outDir, "batch_report.html"))
}

func TestRulesetCommand(t *testing.T) {
	out, err := run(t, "ruleset")
	require.NoError(t, err)

	var sum ruleset.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "1.0", sum.Version)
	assert.Equal(t, "fr", sum.Language)
	assert.Equal(t, 21, sum.TotalSections)
	assert.Len(t, sum.TopLevelSections, 13)
}

func TestRulesetCommand_BadPath(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ruleset", "--ruleset", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}
