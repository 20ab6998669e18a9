// =============================================================================
// ANS Expense Pipeline - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the pipeline, including:
//   - Raw extract discovery
//   - Archival of the final summary
//   - Run summary and error log generation
//   - Directory management
//   - File naming utilities
//
// ARCHIVAL STRATEGY:
//   - Raw extracts are never moved; the pipeline only reads them
//   - The summary archive of a successful run is copied to archive_dir,
//     optionally under a YYYY/MM/DD subdirectory
//   - Run summaries and error logs are created in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the pipeline.
type FileManager struct {
	// InputDir is the directory scanned for raw extracts.
	InputDir string

	// OutputDir is the directory where stage artifacts are placed.
	OutputDir string

	// ArchiveDir receives copies of final artifacts.
	ArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: output_archive/2024/01/15/aggregated_expenses.zip
	UseTimestampSubdirs bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, archiveDir string) *FileManager {
	return &FileManager{
		InputDir:            inputDir,
		OutputDir:           outputDir,
		ArchiveDir:          archiveDir,
		UseTimestampSubdirs: true,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output and archive directories if they don't
// exist. The input directory is expected to exist already.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.OutputDir, fm.ArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// OutputPath joins a file name onto the output directory.
func (fm *FileManager) OutputPath(name string) string {
	return filepath.Join(fm.OutputDir, name)
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverExtracts scans the input directory for raw extracts.
//
// PARAMETERS:
//   - patterns: Glob patterns matched inside InputDir (e.g., "*.csv").
//     Defaults to "*.csv" when empty.
//   - exclude: Paths never returned (e.g., the operator registry).
//
// RETURNS:
//   - Matching regular files, deduplicated and sorted by name so repeated
//     runs see extracts in the same order.
//   - An error if a pattern is malformed.
func (fm *FileManager) DiscoverExtracts(patterns []string, exclude ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.csv"}
	}

	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = true
		}
	}

	seen := make(map[string]bool)
	var result []string
	for _, pattern := range patterns {
		files, err := filepath.Glob(filepath.Join(fm.InputDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan input directory: %w", err)
		}

		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true

			if abs, err := filepath.Abs(file); err == nil && skip[abs] {
				continue
			}

			info, err := os.Stat(file)
			if err != nil || info.IsDir() {
				continue
			}
			result = append(result, file)
		}
	}

	sort.Strings(result)
	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveOutputFile copies an output file to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived copy.
//   - An error if archival fails.
//
// NOTE: Output files are copied, not moved, so they remain in the output directory.
func (fm *FileManager) ArchiveOutputFile(filePath string) (string, error) {
	archivePath := fm.getArchivePath(filePath, time.Now())

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := copyFile(filePath, archivePath); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(filePath string, now time.Time) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(fm.ArchiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates a unique output file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID, unless params supplies one
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//   - params: Additional placeholder values (keys without braces).
//   - extension: The extension to ensure, e.g. ".txt".
//
// EXAMPLE:
//
//	format: "run_{timestamp}_{uuid}"
//	params: {"uuid": "a1b2c3d4-..."}
//	output: "run_20240115_143022_a1b2c3d4-....txt"
func GenerateOutputFileName(format string, params map[string]string, extension string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}

	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if extension != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(extension)) {
		result += extension
	}

	return result
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp    time.Time
	RunID        string
	Stage        string
	ErrorType    string
	ErrorMessage string
	FileName     string
}

// WriteErrorLog writes error entries to a log file.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//   - fileName: The log file name.
//
// RETURNS:
//   - The path to the error log file, empty when there are no entries.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir, fileName string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	logPath := filepath.Join(outputDir, fileName)

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "ANS Expense Pipeline - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:  %s\n"+
			"  Run ID:     %s\n"+
			"  Stage:      %s\n"+
			"  Error Type: %s\n"+
			"  Message:    %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.RunID,
			entry.Stage,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.FileName != "" {
			fmt.Fprintf(writer, "  File:       %s\n", entry.FileName)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about a pipeline run.
type RunSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	// Extracts are the raw extract files that were loaded.
	Extracts []string

	// Stages lists the stages that completed, in execution order.
	Stages []StageSummary

	// FailedStage and ErrorMessage are set when the run stopped early.
	FailedStage  string
	ErrorMessage string

	// ArchivePath is the archived copy of the summary, if any.
	ArchivePath string
}

// StageSummary describes one completed stage.
type StageSummary struct {
	Name      string
	Duration  time.Duration
	Counts    []Count
	Artifacts []string
}

// Count is a labelled row count.
type Count struct {
	Label string
	Value int
}

// WriteSummaryLog writes a run summary to a text file.
//
// PARAMETERS:
//   - summary: The run summary.
//   - outputDir: The directory to write the summary file.
//   - fileName: The summary file name.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary RunSummary, outputDir, fileName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	summaryPath := filepath.Join(outputDir, fileName)

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	status := "SUCCESS"
	if summary.FailedStage != "" {
		status = "FAILED at " + summary.FailedStage
	}

	fmt.Fprintf(writer, "ANS Expense Pipeline - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:     %s\n"+
		"  Start Time: %s\n"+
		"  End Time:   %s\n"+
		"  Duration:   %s\n"+
		"  Status:     %s\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		status)

	if len(summary.Extracts) > 0 {
		writer.WriteString("Extracts:\n")
		for _, e := range summary.Extracts {
			fmt.Fprintf(writer, "  %s\n", e)
		}
		writer.WriteString("\n")
	}

	for _, stage := range summary.Stages {
		fmt.Fprintf(writer, "Stage: %s (%s)\n", stage.Name, stage.Duration.String())
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, c := range stage.Counts {
			fmt.Fprintf(writer, "  %-24s %d\n", c.Label+":", c.Value)
		}
		for _, a := range stage.Artifacts {
			fmt.Fprintf(writer, "  Artifact: %s\n", a)
		}
		writer.WriteString("\n")
	}

	if summary.ErrorMessage != "" {
		fmt.Fprintf(writer, "Error:\n  %s\n\n", summary.ErrorMessage)
	}
	if summary.ArchivePath != "" {
		fmt.Fprintf(writer, "Archived: %s\n\n", summary.ArchivePath)
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
