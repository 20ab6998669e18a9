// =============================================================================
// ANS Expense Pipeline - Orchestrator
// =============================================================================
//
// This module runs the four stages in their fixed order for one pipeline run.
//
// RUN SEQUENCE:
//   1. Discover (or accept) raw extracts and load them concurrently
//   2. Consolidate -> consolidated artifact
//   3. Enrich      -> enriched artifact
//   4. Validate    -> accepted + quarantined artifacts
//   5. Aggregate   -> summary CSV, summary zip, ranking workbook
//   6. Archive the summary zip, write the run summary, the error log (on
//      failure) and the metrics textfile
//
// FAIL-FAST:
//   A fatal error in one stage returns a *StageError and no later stage runs.
//   Quarantined records are data, not failures. Retrying is left to the caller.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/aggregator"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/consolidator"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/enricher"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/metrics"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/validation"
	"github.com/ginjaninja78/ans-expense-pipeline/pkg/utils"
)

// ErrNoExtracts is returned when discovery finds nothing to load.
var ErrNoExtracts = errors.New("no raw extracts found")

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of one pipeline run. Stage results are nil
// for stages that did not complete.
type Result struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	Extracts   []string
	LoadedRows int

	Consolidate *consolidator.Result
	Enrich      *enricher.Result
	Validate    *validation.Result
	Aggregate   *aggregator.Result

	// Err is the error that stopped the run, nil on success.
	Err error

	SummaryLogPath string
	ErrorLogPath   string
	ArchivePath    string
	MetricsPath    string
}

// Success reports whether every attempted stage completed.
func (r *Result) Success() bool {
	return r.Err == nil
}

// ArtifactPaths are the files exchanged between stages.
type ArtifactPaths struct {
	Consolidated    string
	Enriched        string
	Accepted        string
	Quarantined     string
	Summary         string
	SummaryArchive  string
	SummaryWorkbook string
}

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Pipeline runs stages for a single run ID.
type Pipeline struct {
	cfg     *config.MainConfig
	logger  *slog.Logger
	files   *utils.FileManager
	metrics *metrics.RunMetrics

	result  *Result
	stages  []utils.StageSummary
	runName string
}

// New creates a Pipeline with a fresh run ID.
//
// PARAMETERS:
//   - cfg: The loaded configuration.
//   - logger: The base logger; the run ID is attached to every record.
func New(cfg *config.MainConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	runID := uuid.New().String()
	runName := utils.GenerateOutputFileName(cfg.Output.RunNameFormat, map[string]string{"uuid": runID}, "")

	return &Pipeline{
		cfg:     cfg,
		logger:  logger.With(slog.String("run_id", runID)),
		files:   utils.NewFileManager(cfg.Paths.InputDir, cfg.Paths.OutputDir, cfg.Paths.ArchiveDir),
		metrics: metrics.New(),
		result: &Result{
			RunID:     runID,
			StartTime: time.Now(),
		},
		runName: runName,
	}
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string {
	return p.result.RunID
}

// Paths returns the artifact locations derived from the configuration.
func (p *Pipeline) Paths() ArtifactPaths {
	out := p.cfg.Output
	paths := ArtifactPaths{
		Consolidated:   p.files.OutputPath(out.ConsolidatedFile),
		Enriched:       p.files.OutputPath(out.EnrichedFile),
		Accepted:       p.files.OutputPath(out.AcceptedFile),
		Quarantined:    p.files.OutputPath(out.QuarantinedFile),
		Summary:        p.files.OutputPath(out.SummaryFile),
		SummaryArchive: p.files.OutputPath(out.SummaryArchive),
	}
	if !out.SkipWorkbook {
		paths.SummaryWorkbook = p.files.OutputPath(out.SummaryWorkbook)
	}
	return paths
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes every stage in order and finishes the run.
//
// PARAMETERS:
//   - ctx: Checked between stages; a cancelled context stops the run before
//     the next stage starts.
//   - extracts: Raw extract files. When empty, extracts are discovered in
//     paths.input_dir using source.file_patterns.
//
// RETURNS:
//   - The run result (always non-nil).
//   - A *StageError if a stage failed.
func (p *Pipeline) Run(ctx context.Context, extracts []string) (*Result, error) {
	p.logger.Info("pipeline run started")

	err := p.runStages(ctx, extracts)
	return p.Finish(err), err
}

func (p *Pipeline) runStages(ctx context.Context, extracts []string) error {
	if _, err := p.Consolidate(ctx, extracts); err != nil {
		return err
	}
	if _, err := p.Enrich(ctx); err != nil {
		return err
	}
	if _, err := p.Validate(ctx); err != nil {
		return err
	}
	if _, err := p.Aggregate(ctx); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// STAGES
// =============================================================================

// Consolidate loads the raw extracts and runs the consolidator.
func (p *Pipeline) Consolidate(ctx context.Context, extracts []string) (consolidator.Result, error) {
	if err := p.prepare(ctx); err != nil {
		return consolidator.Result{}, stageError(StageLoad, err)
	}

	if len(extracts) == 0 {
		found, err := p.files.DiscoverExtracts(p.cfg.Source.FilePatterns, p.cfg.Paths.RegistryFile)
		if err != nil {
			return consolidator.Result{}, stageError(StageLoad, err)
		}
		if len(found) == 0 {
			return consolidator.Result{}, stageError(StageLoad, fmt.Errorf("%w in %s", ErrNoExtracts, p.cfg.Paths.InputDir))
		}
		extracts = found
	}
	p.result.Extracts = extracts

	loadStart := time.Now()
	items, err := LoadExtracts(ctx, extracts, p.cfg.Source, p.cfg.Processing.MaxConcurrency)
	if err != nil {
		return consolidator.Result{}, stageError(StageLoad, err)
	}
	p.result.LoadedRows = len(items)
	p.metrics.ObserveRows(StageLoad, "output", len(items))
	p.metrics.ObserveStage(StageLoad, time.Since(loadStart))
	p.logger.Info("raw extracts loaded",
		slog.Int("extracts", len(extracts)),
		slog.Int("rows", len(items)))

	result, err := consolidator.New(p.logger).Run(items, p.Paths().Consolidated)
	if err != nil {
		return result, stageError(StageConsolidate, err)
	}

	p.result.Consolidate = &result
	p.record(StageConsolidate, result.ProcessingTime, []utils.Count{
		{Label: "input", Value: result.InputRows},
		{Label: "output", Value: result.OutputRows},
		{Label: "zero", Value: result.ZeroRows},
		{Label: "negative", Value: result.NegativeRows},
		{Label: "duplicate", Value: result.DuplicateRows},
		{Label: "unparsable_date", Value: result.UnparsableDates},
		{Label: "unparsable_value", Value: result.UnparsableValues},
	}, result.ArtifactPath)

	return result, nil
}

// Enrich runs the enricher on the consolidated artifact.
func (p *Pipeline) Enrich(ctx context.Context) (enricher.Result, error) {
	if err := p.prepare(ctx); err != nil {
		return enricher.Result{}, stageError(StageEnrich, err)
	}

	paths := p.Paths()
	result, err := enricher.New(p.logger, p.cfg.Registry).Run(paths.Consolidated, p.cfg.Paths.RegistryFile, paths.Enriched)
	if err != nil {
		return result, stageError(StageEnrich, err)
	}

	latin1 := 0
	if result.UsedLatin1 {
		latin1 = 1
	}

	p.result.Enrich = &result
	p.record(StageEnrich, result.ProcessingTime, []utils.Count{
		{Label: "input", Value: result.InputRows},
		{Label: "output", Value: result.OutputRows},
		{Label: "matched", Value: result.Matched},
		{Label: "unmatched", Value: result.Unmatched},
		{Label: "registry", Value: result.RegistryRows},
		{Label: "registry_duplicate", Value: result.RegistryDuplicates},
		{Label: "registry_latin1", Value: latin1},
	}, result.ArtifactPath)

	return result, nil
}

// Validate runs the validator on the enriched artifact.
func (p *Pipeline) Validate(ctx context.Context) (validation.Result, error) {
	if err := p.prepare(ctx); err != nil {
		return validation.Result{}, stageError(StageValidate, err)
	}

	paths := p.Paths()
	result, err := validation.NewValidator(p.logger).Run(paths.Enriched, paths.Accepted, paths.Quarantined)
	if err != nil {
		return result, stageError(StageValidate, err)
	}

	counts := []utils.Count{
		{Label: "input", Value: result.InputRows},
		{Label: "accepted", Value: result.Accepted},
		{Label: "quarantined", Value: result.Quarantined},
		{Label: "coerced", Value: result.CoercedValues},
	}
	for _, rule := range []string{validation.RuleInvalidTaxID, validation.RuleMissingLegalName, validation.RuleNonPositiveValue} {
		counts = append(counts, utils.Count{Label: metricKind(rule), Value: result.RuleCounts[rule]})
	}

	p.result.Validate = &result
	p.record(StageValidate, result.ProcessingTime, counts, result.AcceptedPath, result.QuarantinedPath)

	return result, nil
}

// Aggregate runs the aggregator on the accepted artifact.
func (p *Pipeline) Aggregate(ctx context.Context) (aggregator.Result, error) {
	if err := p.prepare(ctx); err != nil {
		return aggregator.Result{}, stageError(StageAggregate, err)
	}

	paths := p.Paths()
	result, err := aggregator.New(p.logger).Run(paths.Accepted, aggregator.Outputs{
		CSVPath:  paths.Summary,
		ZipPath:  paths.SummaryArchive,
		XLSXPath: paths.SummaryWorkbook,
	})
	if err != nil {
		return result, stageError(StageAggregate, err)
	}

	p.result.Aggregate = &result
	p.record(StageAggregate, result.ProcessingTime, []utils.Count{
		{Label: "input", Value: result.InputRows},
		{Label: "snapshot", Value: result.SnapshotRows},
		{Label: "groups", Value: result.Groups},
		{Label: "coerced", Value: result.CoercedValues},
		{Label: "unparsable_date", Value: result.UnparsableDates},
	}, result.CSVPath, result.ZipPath, result.XLSXPath)

	return result, nil
}

// prepare checks for cancellation and makes sure the output and archive
// directories exist before a stage writes anything.
func (p *Pipeline) prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.files.EnsureDirectories()
}

// record stores a completed stage's diagnostics for the run summary and the
// metrics textfile.
func (p *Pipeline) record(stage string, d time.Duration, counts []utils.Count, artifacts ...string) {
	var written []string
	for _, a := range artifacts {
		if a != "" {
			written = append(written, a)
		}
	}

	for _, c := range counts {
		p.metrics.ObserveRows(stage, c.Label, c.Value)
	}
	p.metrics.ObserveStage(stage, d)

	p.stages = append(p.stages, utils.StageSummary{
		Name:      stage,
		Duration:  d,
		Counts:    counts,
		Artifacts: written,
	})
}

// =============================================================================
// RUN COMPLETION
// =============================================================================

// Finish closes the run: archives the summary on success, writes the run
// summary, the error log on failure and the metrics textfile. Problems here
// are logged and never replace err.
func (p *Pipeline) Finish(err error) *Result {
	result := p.result
	result.Err = err
	result.EndTime = time.Now()

	if err == nil && result.Aggregate != nil && result.Aggregate.ZipPath != "" {
		archived, archiveErr := p.files.ArchiveOutputFile(result.Aggregate.ZipPath)
		if archiveErr != nil {
			p.logger.Warn("failed to archive summary", slog.String("error", archiveErr.Error()))
		} else {
			result.ArchivePath = archived
		}
	}

	summary := utils.RunSummary{
		RunID:       result.RunID,
		StartTime:   result.StartTime,
		EndTime:     result.EndTime,
		Extracts:    result.Extracts,
		Stages:      p.stages,
		ArchivePath: result.ArchivePath,
	}

	if err != nil {
		stage := StageOf(err)
		summary.FailedStage = stage
		summary.ErrorMessage = err.Error()

		entry := utils.ErrorLogEntry{
			Timestamp:    result.EndTime,
			RunID:        result.RunID,
			Stage:        stage,
			ErrorType:    errorType(err),
			ErrorMessage: err.Error(),
		}
		if path, logErr := utils.WriteErrorLog([]utils.ErrorLogEntry{entry}, p.cfg.Paths.OutputDir, p.runName+"_errors.txt"); logErr != nil {
			p.logger.Warn("failed to write error log", slog.String("error", logErr.Error()))
		} else {
			result.ErrorLogPath = path
		}

		p.logger.Error("pipeline run failed",
			slog.String("stage", stage),
			slog.String("error", err.Error()))
	}

	if path, sumErr := utils.WriteSummaryLog(summary, p.cfg.Paths.OutputDir, p.runName+"_summary.txt"); sumErr != nil {
		p.logger.Warn("failed to write run summary", slog.String("error", sumErr.Error()))
	} else {
		result.SummaryLogPath = path
	}

	duration := result.EndTime.Sub(result.StartTime)
	p.metrics.ObserveRun(duration, err == nil, result.EndTime)
	if metricsFile := p.cfg.Paths.MetricsFile; metricsFile != "" {
		if mErr := p.metrics.WriteTextfile(metricsFile); mErr != nil {
			p.logger.Warn("failed to write metrics", slog.String("error", mErr.Error()))
		} else {
			result.MetricsPath = metricsFile
		}
	}

	if err == nil {
		p.logger.Info("pipeline run complete",
			slog.Duration("duration", duration),
			slog.Int("stages", len(p.stages)),
			slog.String("summary", result.SummaryLogPath))
	}

	return result
}

// StageOf returns the stage named by a *StageError, or "" for other errors.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func errorType(err error) string {
	switch {
	case errors.Is(err, csvparser.ErrUnreadableArtifact):
		return "unreadable artifact"
	case errors.Is(err, csvparser.ErrMissingColumn):
		return "missing column"
	case errors.Is(err, ErrNoExtracts):
		return "no input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "stage error"
	}
}

// metricKind turns a rule label into a metric label value.
func metricKind(label string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(label))
}
