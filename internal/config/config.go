// =============================================================================
// ANS Expense Pipeline - Configuration Module
// =============================================================================
//
// This module loads the pipeline configuration. Values come from three layers,
// each overriding the previous one:
//   1. Built-in defaults (see Default)
//   2. The YAML configuration file (config.yaml)
//   3. Environment variables prefixed with ANSETL_ (e.g. ANSETL_PATHS_OUTPUT_DIR)
//
// CONFIGURATION SECTIONS:
//   paths      : Where extracts, the registry and artifacts live
//   source     : How raw expense extracts are parsed (delimiter, header aliases)
//   registry   : How the operator registry is parsed
//   output     : Artifact file names and run naming
//   logging    : Log level and destination
//   processing : Concurrency for loading independent extracts
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "ANSETL"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the complete pipeline configuration.
type MainConfig struct {
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Source     SourceConfig     `yaml:"source" envconfig:"SOURCE"`
	Registry   RegistryConfig   `yaml:"registry" envconfig:"REGISTRY"`
	Output     OutputConfig     `yaml:"output" envconfig:"OUTPUT"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Processing ProcessingConfig `yaml:"processing" envconfig:"PROCESSING"`
}

// PathsConfig contains file system locations.
type PathsConfig struct {
	// InputDir is scanned for raw expense extracts.
	// Default: "./input"
	InputDir string `yaml:"input_dir" envconfig:"INPUT_DIR"`

	// OutputDir receives every stage artifact.
	// Default: "./output"
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`

	// ArchiveDir receives a copy of the final summary archive of each run.
	// Default: "./output_archive"
	ArchiveDir string `yaml:"archive_dir" envconfig:"ARCHIVE_DIR"`

	// RegistryFile is the operator registry (.csv or single-entry .zip).
	// Default: "./input/registry/Relatorio_cadop.csv"
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE"`

	// MetricsFile is the Prometheus textfile written after each run.
	// Leave empty to disable.
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// =============================================================================
// PARSING SETTINGS
// =============================================================================

// CSVSettings contains settings for reading delimited files.
type CSVSettings struct {
	// Delimiter is the field separator. Common values: ";", ",", "|", "tab".
	// Default: ";"
	Delimiter string `yaml:"delimiter" envconfig:"DELIMITER"`

	// Encoding is the primary character encoding.
	// Default: "UTF-8"
	Encoding string `yaml:"encoding" envconfig:"ENCODING"`

	// FallbackEncoding is tried once when the primary encoding fails to decode.
	// Supported: "ISO-8859-1" (alias "latin-1"), "Windows-1252", or empty to disable.
	FallbackEncoding string `yaml:"fallback_encoding" envconfig:"FALLBACK_ENCODING"`
}

// SourceConfig describes the raw expense extracts.
type SourceConfig struct {
	CSVSettings CSVSettings `yaml:"csv_settings" envconfig:"CSV"`

	// FilePatterns are glob patterns matched against names in InputDir.
	// Default: ["*.csv", "*.zip", "*.xlsx"]
	FilePatterns []string `yaml:"file_patterns" envconfig:"FILE_PATTERNS"`

	// Columns maps extract headers onto expense line item fields.
	Columns SourceColumns `yaml:"columns" envconfig:"COLUMNS"`
}

// SourceColumns holds the extract header for each expense line item field.
type SourceColumns struct {
	StatementDate      string `yaml:"statement_date" envconfig:"STATEMENT_DATE"`
	OperatorID         string `yaml:"operator_id" envconfig:"OPERATOR_ID"`
	AccountCode        string `yaml:"account_code" envconfig:"ACCOUNT_CODE"`
	AccountDescription string `yaml:"account_description" envconfig:"ACCOUNT_DESCRIPTION"`
	EndingBalance      string `yaml:"ending_balance" envconfig:"ENDING_BALANCE"`
}

// RegistryConfig describes the operator registry file.
type RegistryConfig struct {
	CSVSettings CSVSettings     `yaml:"csv_settings" envconfig:"CSV"`
	Columns     RegistryColumns `yaml:"columns" envconfig:"COLUMNS"`
}

// RegistryColumns holds the registry header for each registry field.
type RegistryColumns struct {
	OperatorID     string `yaml:"operator_id" envconfig:"OPERATOR_ID"`
	TaxID          string `yaml:"tax_id" envconfig:"TAX_ID"`
	LegalName      string `yaml:"legal_name" envconfig:"LEGAL_NAME"`
	StateCode      string `yaml:"state_code" envconfig:"STATE_CODE"`
	LineOfBusiness string `yaml:"line_of_business" envconfig:"LINE_OF_BUSINESS"`
}

// =============================================================================
// OUTPUT SETTINGS
// =============================================================================

// OutputConfig holds artifact file names. All names are relative to OutputDir.
type OutputConfig struct {
	ConsolidatedFile string `yaml:"consolidated_file" envconfig:"CONSOLIDATED_FILE"`
	EnrichedFile     string `yaml:"enriched_file" envconfig:"ENRICHED_FILE"`
	AcceptedFile     string `yaml:"accepted_file" envconfig:"ACCEPTED_FILE"`
	QuarantinedFile  string `yaml:"quarantined_file" envconfig:"QUARANTINED_FILE"`
	SummaryFile      string `yaml:"summary_file" envconfig:"SUMMARY_FILE"`
	SummaryArchive   string `yaml:"summary_archive" envconfig:"SUMMARY_ARCHIVE"`
	SummaryWorkbook  string `yaml:"summary_workbook" envconfig:"SUMMARY_WORKBOOK"`

	// SkipWorkbook disables the XLSX ranking workbook.
	SkipWorkbook bool `yaml:"skip_workbook" envconfig:"SKIP_WORKBOOK"`

	// RunNameFormat names the run summary and error log files.
	// Placeholders: {uuid}, {timestamp}, {date}, {time}
	// Default: "run_{timestamp}_{uuid}"
	RunNameFormat string `yaml:"run_name_format" envconfig:"RUN_NAME_FORMAT"`
}

// LoggingConfig controls the slog logger.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level" envconfig:"LEVEL"`

	// Output: "console", "file" or "both". Default: "console"
	Output string `yaml:"output" envconfig:"OUTPUT"`

	// FilePath is used when Output is "file" or "both".
	// Default: "./logs/ansetl.log"
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ProcessingConfig controls how extracts are loaded.
type ProcessingConfig struct {
	// MaxConcurrency bounds how many extracts are read at the same time.
	// Stages themselves always run sequentially.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *MainConfig {
	var config MainConfig
	applyMainConfigDefaults(&config)
	return &config
}

// LoadMainConfig loads the configuration from a YAML file and the environment.
//
// PARAMETERS:
//   - configPath: The path to the YAML file. An empty path skips the file and
//     uses defaults plus environment overrides.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed, or the result is invalid.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override the file. Unset variables leave the
	// file values untouched.
	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.Paths.InputDir == "" {
		config.Paths.InputDir = "./input"
	}
	if config.Paths.OutputDir == "" {
		config.Paths.OutputDir = "./output"
	}
	if config.Paths.ArchiveDir == "" {
		config.Paths.ArchiveDir = "./output_archive"
	}
	if config.Paths.RegistryFile == "" {
		config.Paths.RegistryFile = "./input/registry/Relatorio_cadop.csv"
	}

	applyCSVDefaults(&config.Source.CSVSettings, "")
	applyCSVDefaults(&config.Registry.CSVSettings, "ISO-8859-1")

	if len(config.Source.FilePatterns) == 0 {
		config.Source.FilePatterns = []string{"*.csv", "*.zip", "*.xlsx"}
	}

	cols := &config.Source.Columns
	if cols.StatementDate == "" {
		cols.StatementDate = "DATA"
	}
	if cols.OperatorID == "" {
		cols.OperatorID = "REG_ANS"
	}
	if cols.AccountCode == "" {
		cols.AccountCode = "CD_CONTA_CONTABIL"
	}
	if cols.AccountDescription == "" {
		cols.AccountDescription = "DESCRICAO"
	}
	if cols.EndingBalance == "" {
		cols.EndingBalance = "VL_SALDO_FINAL"
	}

	reg := &config.Registry.Columns
	if reg.OperatorID == "" {
		reg.OperatorID = "REGISTRO_OPERADORA"
	}
	if reg.TaxID == "" {
		reg.TaxID = "CNPJ"
	}
	if reg.LegalName == "" {
		reg.LegalName = "Razao_Social"
	}
	if reg.StateCode == "" {
		reg.StateCode = "UF"
	}
	if reg.LineOfBusiness == "" {
		reg.LineOfBusiness = "Modalidade"
	}

	out := &config.Output
	if out.ConsolidatedFile == "" {
		out.ConsolidatedFile = "consolidated_expenses.zip"
	}
	if out.EnrichedFile == "" {
		out.EnrichedFile = "enriched_expenses.zip"
	}
	if out.AcceptedFile == "" {
		out.AcceptedFile = "expenses_accepted.csv"
	}
	if out.QuarantinedFile == "" {
		out.QuarantinedFile = "expenses_quarantined.csv"
	}
	if out.SummaryFile == "" {
		out.SummaryFile = "aggregated_expenses.csv"
	}
	if out.SummaryArchive == "" {
		out.SummaryArchive = "aggregated_expenses.zip"
	}
	if out.SummaryWorkbook == "" {
		out.SummaryWorkbook = "aggregated_expenses.xlsx"
	}
	if out.RunNameFormat == "" {
		out.RunNameFormat = "run_{timestamp}_{uuid}"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "console"
	}
	if config.Logging.FilePath == "" {
		config.Logging.FilePath = "./logs/ansetl.log"
	}

	if config.Processing.MaxConcurrency == 0 {
		config.Processing.MaxConcurrency = 4
	}
}

// applyCSVDefaults fills unset delimited-file settings.
func applyCSVDefaults(settings *CSVSettings, fallback string) {
	if settings.Delimiter == "" {
		settings.Delimiter = ";"
	}
	if settings.Encoding == "" {
		settings.Encoding = "UTF-8"
	}
	if settings.FallbackEncoding == "" {
		settings.FallbackEncoding = fallback
	}
}

// validateMainConfig validates the configuration. Directories are created by
// the pipeline when a run starts, not here.
func validateMainConfig(config *MainConfig) error {
	if config.Processing.MaxConcurrency < 1 {
		return fmt.Errorf("processing.max_concurrency must be at least 1 (got %d)", config.Processing.MaxConcurrency)
	}

	switch strings.ToLower(config.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("logging.output must be console, file or both (got %q)", config.Logging.Output)
	}

	for name, settings := range map[string]CSVSettings{
		"source":   config.Source.CSVSettings,
		"registry": config.Registry.CSVSettings,
	} {
		if _, err := settings.Comma(); err != nil {
			return fmt.Errorf("%s.csv_settings: %w", name, err)
		}
	}

	return nil
}

// Comma resolves the delimiter setting to a single rune.
func (s CSVSettings) Comma() (rune, error) {
	switch s.Delimiter {
	case "\\t", "tab", "TAB":
		return '\t', nil
	case "pipe", "PIPE":
		return '|', nil
	case "semicolon":
		return ';', nil
	case "comma":
		return ',', nil
	}

	runes := []rune(s.Delimiter)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character (got %q)", s.Delimiter)
	}
	return runes[0], nil
}
