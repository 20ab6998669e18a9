// =============================================================================
// ANS Expense Pipeline - Delimited Artifact Parser
// =============================================================================
//
// This module reads the delimited files exchanged between pipeline stages and
// the operator registry. It handles:
//   - Plain delimited files (.csv, .txt)
//   - Zip archives holding a single delimited file (.zip)
//   - UTF-8 input, with an optional single retry in a fallback encoding
//   - A leading UTF-8 byte order mark
//   - Quoted fields containing the delimiter
//
// Every failure to open, decompress, decode or tokenize a file wraps
// ErrUnreadableArtifact so callers can tell a bad input apart from a bug.
//
// =============================================================================

package csvparser

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnreadableArtifact is returned when a file cannot be opened,
	// decompressed, decoded or parsed.
	ErrUnreadableArtifact = errors.New("unreadable artifact")

	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing required column")
)

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents a parsed delimited file.
type CSVData struct {
	// Headers contains the column headers in file order.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// SourceFile is the path of the file that was read. For zip archives it
	// is the archive path.
	SourceFile string

	// Entry is the archive member that was read, empty for plain files.
	Entry string

	// Encoding is the encoding the content was decoded with.
	Encoding string

	// UsedFallback is true when the primary encoding failed and the fallback
	// encoding was used instead.
	UsedFallback bool

	RowCount    int
	ColumnCount int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a delimited file, or a zip archive holding one, and returns the
// parsed data.
//
// PARAMETERS:
//   - filePath: The path to the .csv or .zip file.
//   - settings: Delimiter and encoding settings.
//
// RETURNS:
//   - A pointer to the CSVData struct containing the parsed data.
//   - An error wrapping ErrUnreadableArtifact if the file cannot be read.
//
// PARSING PROCESS:
//  1. Read the raw bytes (from the single archive member for .zip)
//  2. Decode with the primary encoding, retrying once with the fallback
//  3. Tokenize with the configured delimiter
//  4. Convert each row to a map of header -> value
func Parse(filePath string, settings config.CSVSettings) (*CSVData, error) {
	raw, entry, err := readRaw(filePath)
	if err != nil {
		return nil, err
	}

	data, err := ParseBytes(raw, settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	data.SourceFile = filePath
	data.Entry = entry
	return data, nil
}

// ParseBytes parses delimited content already held in memory.
func ParseBytes(raw []byte, settings config.CSVSettings) (*CSVData, error) {
	text, used, fellBack, err := decode(raw, settings)
	if err != nil {
		return nil, err
	}

	comma, err := settings.Comma()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableArtifact, err)
	}

	csvReader := csv.NewReader(strings.NewReader(text))
	configureReader(csvReader, comma)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV: %v", ErrUnreadableArtifact, err)
	}

	if len(allRows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadableArtifact)
	}

	headers := cleanHeaders(allRows[0])
	dataRows := extractDataRows(allRows[1:], headers)

	return &CSVData{
		Headers:      headers,
		Rows:         dataRows,
		Encoding:     used,
		UsedFallback: fellBack,
		RowCount:     len(dataRows),
		ColumnCount:  len(headers),
	}, nil
}

// readRaw returns the bytes of a plain file, or of the single delimited member
// of a zip archive.
func readRaw(filePath string) ([]byte, string, error) {
	if !strings.EqualFold(filepath.Ext(filePath), ".zip") {
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to open file: %v", ErrUnreadableArtifact, err)
		}
		return raw, "", nil
	}

	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to open archive %s: %v", ErrUnreadableArtifact, filePath, err)
	}
	defer archive.Close()

	member, err := pickMember(archive.File)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrUnreadableArtifact, filePath, err)
	}

	rc, err := member.Open()
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to open %s in %s: %v", ErrUnreadableArtifact, member.Name, filePath, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decompress %s in %s: %v", ErrUnreadableArtifact, member.Name, filePath, err)
	}

	return raw, member.Name, nil
}

// pickMember chooses the archive member to read. A lone member is always used;
// otherwise exactly one .csv/.txt member must exist.
func pickMember(files []*zip.File) (*zip.File, error) {
	var regular []*zip.File
	for _, f := range files {
		if !f.FileInfo().IsDir() {
			regular = append(regular, f)
		}
	}

	if len(regular) == 1 {
		return regular[0], nil
	}

	var candidates []*zip.File
	for _, f := range regular {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".csv", ".txt":
			candidates = append(candidates, f)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("archive contains no delimited file")
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("archive contains %d delimited files, expected one", len(candidates))
	}
}

// decode converts raw bytes to text.
//
// RETURNS:
//   - The decoded text.
//   - The name of the encoding that succeeded.
//   - Whether the fallback encoding was used.
//   - An error wrapping ErrUnreadableArtifact if neither encoding applies.
func decode(raw []byte, settings config.CSVSettings) (string, string, bool, error) {
	primary := settings.Encoding
	if primary == "" {
		primary = "UTF-8"
	}

	text, err := decodeAs(raw, primary)
	if err == nil {
		return text, primary, false, nil
	}

	if settings.FallbackEncoding == "" {
		return "", "", false, fmt.Errorf("%w: %v", ErrUnreadableArtifact, err)
	}

	text, fbErr := decodeAs(raw, settings.FallbackEncoding)
	if fbErr != nil {
		return "", "", false, fmt.Errorf("%w: %v (fallback: %v)", ErrUnreadableArtifact, err, fbErr)
	}
	return text, settings.FallbackEncoding, true, nil
}

func decodeAs(raw []byte, name string) (string, error) {
	if isUTF8(name) {
		raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("content is not valid UTF-8")
		}
		return string(raw), nil
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode as %s: %w", name, err)
	}
	return string(decoded), nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "utf8", "":
		return true
	}
	return false
}

// lookupEncoding maps a configured encoding name to a decoder.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "iso-8859-1", "iso8859-1", "latin-1", "latin1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-15", "latin-9":
		return charmap.ISO8859_15, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// configureReader configures the CSV reader for stage artifacts.
func configureReader(reader *csv.Reader, comma rune) {
	reader.Comma = comma

	// Allow ragged rows; missing trailing fields read as empty.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// cleanHeaders trims header values and names empty headers by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}

	return cleaned
}

// extractDataRows converts data rows to maps, skipping blank lines.
func extractDataRows(rows [][]string, headers []string) []map[string]string {
	dataRows := make([]map[string]string, 0, len(rows))

	for _, row := range rows {
		if isRowEmpty(row) {
			continue
		}

		rowMap := make(map[string]string, len(headers))
		for colIndex, header := range headers {
			if colIndex < len(row) {
				rowMap[header] = strings.TrimSpace(row[colIndex])
			} else {
				rowMap[header] = ""
			}
		}

		dataRows = append(dataRows, rowMap)
	}

	return dataRows
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// RequireColumns checks that every named column is present.
//
// RETURNS:
//   - An error wrapping ErrMissingColumn that lists every absent column.
func (d *CSVData) RequireColumns(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !d.HasColumn(c) {
			missing = append(missing, c)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// HasColumn reports whether a header is present.
func (d *CSVData) HasColumn(header string) bool {
	for _, h := range d.Headers {
		if h == header {
			return true
		}
	}
	return false
}
