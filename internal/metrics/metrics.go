// =============================================================================
// ANS Expense Pipeline - Run Metrics
// =============================================================================
//
// The pipeline is a batch job, so metrics are not served over HTTP. After
// each run the registry is written as a node_exporter textfile, which the
// textfile collector picks up on its next scrape.
//
// METRICS:
//   ansetl_stage_rows{stage,kind}            row counts from each stage's diagnostics
//   ansetl_stage_duration_seconds{stage}     wall time per stage
//   ansetl_run_duration_seconds              wall time of the whole run
//   ansetl_run_success                       1 if the last run finished, else 0
//   ansetl_run_last_timestamp_seconds        unix time the last run ended
//
// =============================================================================

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ansetl"

// RunMetrics holds the collectors for one pipeline run.
type RunMetrics struct {
	registry *prometheus.Registry

	stageRows     *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	runSuccess    prometheus.Gauge
	runTimestamp  prometheus.Gauge
}

// New creates a RunMetrics with its own registry.
func New() *RunMetrics {
	registry := prometheus.NewRegistry()

	stageRows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "rows",
			Help:      "Rows counted by each stage, by kind (input, output, dropped, coerced, ...).",
		},
		[]string{"stage", "kind"},
	)
	stageDuration := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Wall time of each stage in the last run.",
		},
		[]string{"stage"},
	)
	runDuration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Wall time of the last pipeline run.",
	})
	runSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "success",
		Help:      "1 if the last pipeline run completed every stage, 0 otherwise.",
	})
	runTimestamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "last_timestamp_seconds",
		Help:      "Unix time at which the last pipeline run ended.",
	})

	registry.MustRegister(stageRows, stageDuration, runDuration, runSuccess, runTimestamp)

	return &RunMetrics{
		registry:      registry,
		stageRows:     stageRows,
		stageDuration: stageDuration,
		runDuration:   runDuration,
		runSuccess:    runSuccess,
		runTimestamp:  runTimestamp,
	}
}

// ObserveRows records a row count for a stage.
func (m *RunMetrics) ObserveRows(stage, kind string, n int) {
	m.stageRows.WithLabelValues(stage, kind).Set(float64(n))
}

// ObserveStage records how long a stage took.
func (m *RunMetrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// ObserveRun records the outcome of the whole run.
func (m *RunMetrics) ObserveRun(d time.Duration, success bool, endedAt time.Time) {
	m.runDuration.Set(d.Seconds())
	if success {
		m.runSuccess.Set(1)
	} else {
		m.runSuccess.Set(0)
	}
	m.runTimestamp.Set(float64(endedAt.Unix()))
}

// Gatherer exposes the registry.
func (m *RunMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry in the text exposition format.
//
// PARAMETERS:
//   - path: The .prom file to (re)write. Its directory is created if needed.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
