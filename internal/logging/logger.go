// =============================================================================
// ANS Expense Pipeline - Logger Construction
// =============================================================================
//
// Builds the structured JSON logger used by the CLI, the orchestrator and
// every stage. There is no package-level logger: the instance returned here
// is passed down explicitly.
//
// OUTPUT MODES (logging.output):
//   console : stderr only (default), keeping stdout for command output
//   file    : logging.file_path only
//   both    : stderr and logging.file_path
//
// =============================================================================

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
)

// ServiceName is attached to every record.
const ServiceName = "ansetl"

// New creates the JSON logger described by cfg. When verbose is true the
// level is forced to debug.
//
// RETURNS:
//   - The logger.
//   - A close function for the log file (a no-op for console output).
//   - An error if the log file cannot be opened.
func New(cfg config.LoggingConfig, verbose bool) (*slog.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	output, closeFn, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	return NewWithWriter(output, level), closeFn, nil
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(cfg config.LoggingConfig) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Output) {
	case "file":
		file, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return file, file.Close, nil
	case "both":
		file, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return io.MultiWriter(os.Stderr, file), file.Close, nil
	default:
		return os.Stderr, noop, nil
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
