// =============================================================================
// ANS Expense Pipeline - Artifact Writer Module
// =============================================================================
//
// This module writes the delimited artifacts produced by each pipeline stage.
//
// ARTIFACT FORMAT:
//   - UTF-8 text, ";" as the field separator, header row first
//   - Fields containing ";", quotes or line breaks are quoted
//   - A path ending in ".zip" produces an archive with a single member named
//     after the archive (consolidated_expenses.zip -> consolidated_expenses.csv)
//
// Files are written to a temporary name in the destination directory and
// renamed into place, so a failed stage never leaves a truncated artifact.
//
// =============================================================================

package csvwriter

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
)

// =============================================================================
// WRITER FUNCTIONS
// =============================================================================

// Write writes a header row and data rows to path. When path ends in ".zip"
// the content is stored as the single member of a new archive.
//
// PARAMETERS:
//   - path: The destination file.
//   - headers: The header row.
//   - rows: Data rows, each in header order.
//
// RETURNS:
//   - An error if the file cannot be created or written.
func Write(path string, headers []string, rows [][]string) error {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return WriteZip(path, EntryName(path), headers, rows)
	}

	return writeAtomic(path, func(w io.Writer) error {
		return encode(w, headers, rows)
	})
}

// WriteZip writes the delimited content as the single member entryName of a
// new archive at zipPath.
func WriteZip(zipPath, entryName string, headers []string, rows [][]string) error {
	return writeAtomic(zipPath, func(w io.Writer) error {
		archive := zip.NewWriter(w)

		member, err := archive.Create(entryName)
		if err != nil {
			return fmt.Errorf("failed to create archive member %s: %w", entryName, err)
		}
		if err := encode(member, headers, rows); err != nil {
			return err
		}

		if err := archive.Close(); err != nil {
			return fmt.Errorf("failed to finalize archive: %w", err)
		}
		return nil
	})
}

// ZipFile stores an existing file as the single member of a new archive.
//
// PARAMETERS:
//   - srcPath: The file to compress. Its base name becomes the member name.
//   - zipPath: The archive to create.
func ZipFile(srcPath, zipPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	return writeAtomic(zipPath, func(w io.Writer) error {
		archive := zip.NewWriter(w)

		member, err := archive.Create(filepath.Base(srcPath))
		if err != nil {
			return fmt.Errorf("failed to create archive member: %w", err)
		}
		if _, err := io.Copy(member, src); err != nil {
			return fmt.Errorf("failed to compress %s: %w", srcPath, err)
		}

		return archive.Close()
	})
}

// EntryName derives the archive member name from an archive path.
func EntryName(zipPath string) string {
	base := filepath.Base(zipPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".csv"
}

// encode writes delimited rows to w.
func encode(w io.Writer, headers []string, rows [][]string) error {
	buffered := bufio.NewWriter(w)
	csvWriter := csv.NewWriter(buffered)
	csvWriter.Comma = types.ArtifactDelimiter

	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		if len(row) != len(headers) {
			return fmt.Errorf("row %d has %d fields, expected %d", i+1, len(row), len(headers))
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush rows: %w", err)
	}
	return buffered.Flush()
}

// writeAtomic writes through fill into a temporary file next to path and
// renames it into place once fill succeeds.
func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	return nil
}
