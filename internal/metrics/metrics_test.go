package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRows("consolidate", "input", 5)
	m.ObserveRows("consolidate", "output", 2)
	m.ObserveStage("consolidate", 1500*time.Millisecond)
	m.ObserveRun(3*time.Second, true, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "ansetl.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, `ansetl_stage_rows{kind="input",stage="consolidate"} 5`)
	assert.Contains(t, text, `ansetl_stage_rows{kind="output",stage="consolidate"} 2`)
	assert.Contains(t, text, `ansetl_stage_duration_seconds{stage="consolidate"} 1.5`)
	assert.Contains(t, text, "ansetl_run_duration_seconds 3")
	assert.Contains(t, text, "ansetl_run_success 1")
	assert.Contains(t, text, "ansetl_run_last_timestamp_seconds 1.7e+09")
}

func TestGatherer(t *testing.T) {
	m := New()
	m.ObserveRun(time.Second, false, time.Now())

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ansetl_run_success"])
	assert.True(t, names["ansetl_run_duration_seconds"])
}
