package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/ans-expense-pipeline/internal/config"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/consolidator"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/csvparser"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/types"
	"github.com/ginjaninja78/ans-expense-pipeline/internal/xlsxparser"
)

// LoadExtracts reads raw extracts concurrently and concatenates their line
// items in the order the paths were given.
//
// PARAMETERS:
//   - ctx: Cancels loading of extracts not yet started.
//   - paths: Extract files (.csv, single-entry .zip, or .xlsx).
//   - source: Delimiter, encoding and header aliases for the extracts.
//   - maxConcurrency: Upper bound on extracts read at once (minimum 1).
//
// RETURNS:
//   - Every line item, extract by extract.
//   - The first error encountered; the remaining reads are cancelled.
func LoadExtracts(ctx context.Context, paths []string, source config.SourceConfig, maxConcurrency int) ([]types.ExpenseLineItem, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	batches := make([][]types.ExpenseLineItem, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := readExtract(path, source.CSVSettings)
			if err != nil {
				return err
			}

			items, err := consolidator.LineItemsFromData(data, source.Columns, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("extract %s: %w", path, err)
			}

			batches[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	items := make([]types.ExpenseLineItem, 0, total)
	for _, b := range batches {
		items = append(items, b...)
	}
	return items, nil
}

func readExtract(path string, settings config.CSVSettings) (*csvparser.CSVData, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return xlsxparser.Parse(path)
	default:
		return csvparser.Parse(path, settings)
	}
}
