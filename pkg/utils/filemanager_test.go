package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "input"), filepath.Join(root, "out", "run"), filepath.Join(root, "archive"))

	require.NoError(t, fm.EnsureDirectories())
	assert.DirExists(t, fm.OutputDir)
	assert.DirExists(t, fm.ArchiveDir)
	assert.NoDirExists(t, fm.InputDir)

	blocker := filepath.Join(root, "file")
	touch(t, blocker)
	fm.OutputDir = filepath.Join(blocker, "out")
	assert.Error(t, fm.EnsureDirectories())
}

func TestDiscoverExtracts(t *testing.T) {
	input := t.TempDir()
	touch(t, filepath.Join(input, "2T2024.csv"))
	touch(t, filepath.Join(input, "1T2024.zip"))
	touch(t, filepath.Join(input, "notes.txt"))
	touch(t, filepath.Join(input, "Relatorio_cadop.csv"))
	require.NoError(t, os.Mkdir(filepath.Join(input, "dir.csv"), 0755))

	fm := NewFileManager(input, t.TempDir(), t.TempDir())
	files, err := fm.DiscoverExtracts([]string{"*.csv", "*.zip", "2T*"}, filepath.Join(input, "Relatorio_cadop.csv"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(input, "1T2024.zip"),
		filepath.Join(input, "2T2024.csv"),
	}, files)
}

func TestArchiveOutputFile(t *testing.T) {
	out := t.TempDir()
	src := filepath.Join(out, "aggregated_expenses.zip")
	touch(t, src)

	archive := t.TempDir()
	fm := NewFileManager(t.TempDir(), out, archive)

	path, err := fm.ArchiveOutputFile(src)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, strings.HasPrefix(path, filepath.Join(archive, now.Format("2006"))))
	assert.True(t, FileExists(path))
	assert.True(t, FileExists(src))

	fm.UseTimestampSubdirs = false
	path, err = fm.ArchiveOutputFile(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archive, "aggregated_expenses.zip"), path)
}

func TestGenerateOutputFileName(t *testing.T) {
	name := GenerateOutputFileName("run_{uuid}", map[string]string{"uuid": "abc"}, ".txt")
	assert.Equal(t, "run_abc.txt", name)

	name = GenerateOutputFileName("run_{date}.txt", nil, ".txt")
	assert.Equal(t, "run_"+time.Now().Format("20060102")+".txt", name)

	name = GenerateOutputFileName("{uuid}", nil, "")
	assert.Len(t, name, 36)
}

func TestWriteSummaryLog(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	path, err := WriteSummaryLog(RunSummary{
		RunID:     "run-1",
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Extracts:  []string{"1T2024.csv"},
		Stages: []StageSummary{{
			Name:      "consolidate",
			Duration:  time.Second,
			Counts:    []Count{{Label: "Input rows", Value: 5}},
			Artifacts: []string{"consolidated_expenses.zip"},
		}},
	}, dir, "summary.txt")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "Run ID:     run-1")
	assert.Contains(t, text, "Status:     SUCCESS")
	assert.Contains(t, text, "Stage: consolidate")
	assert.Contains(t, text, "Input rows:")
	assert.Contains(t, text, "Artifact: consolidated_expenses.zip")
}

func TestWriteErrorLog(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteErrorLog(nil, dir, "errors.txt")
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = WriteErrorLog([]ErrorLogEntry{{
		Timestamp:    time.Now(),
		RunID:        "run-1",
		Stage:        "validate",
		ErrorType:    "unreadable artifact",
		ErrorMessage: "zip: not a valid zip file",
		FileName:     "enriched_expenses.zip",
	}}, dir, "errors.txt")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Stage:      validate")
	assert.Contains(t, string(raw), "File:       enriched_expenses.zip")
}
