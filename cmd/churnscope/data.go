package main

import (
	"context"
	"sort"

	"github.com/YuminosukeSato/churnscope/config"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

func loadSource(ctx context.Context, src config.SourceConfig) (*dataset.Table, error) {
	if src.Query != "" {
		return dataset.LoadSQL(ctx, src.Driver, src.DSN, src.Query)
	}
	return dataset.LoadCSV(src.CSV)
}

// recode rewrites the configured 1/0 columns that t carries.
func recode(t *dataset.Table, src config.SourceConfig) error {
	for _, col := range src.Recode {
		if !t.Has(col) {
			continue
		}
		if err := dataset.RecodeBinary(t, col, "Yes", "No"); err != nil {
			return err
		}
	}
	return nil
}

// loadTraining reads the configured source, keeps feature, label and
// identifier columns, drops incomplete rows and converts the label column.
func loadTraining(ctx context.Context, cfg *config.Config) (*dataset.Table, []bool, dataset.Schema, error) {
	schema, err := cfg.DatasetSchema()
	if err != nil {
		return nil, nil, nil, err
	}
	raw, err := loadSource(ctx, cfg.Source)
	if err != nil {
		return nil, nil, nil, err
	}

	columns := append(schema.Names(), cfg.Source.Label)
	if cfg.Source.ID != "" && raw.Has(cfg.Source.ID) {
		columns = append(columns, cfg.Source.ID)
	}
	selected, err := raw.Select(columns...)
	if err != nil {
		return nil, nil, nil, err
	}
	table, dropped := dataset.DropIncomplete(selected)
	if table.Len() == 0 {
		return nil, nil, nil, errors.NewModelError("loadTraining", "empty data", errors.ErrEmptyData)
	}
	if err := recode(table, cfg.Source); err != nil {
		return nil, nil, nil, err
	}
	labels, err := dataset.Labels(table, cfg.Source.Label, cfg.Source.Positive)
	if err != nil {
		return nil, nil, nil, err
	}

	log.GetLoggerWithName("churnscope").Info("Training data loaded",
		log.SourceKey, describeSource(cfg.Source),
		log.SamplesKey, table.Len(),
		log.DroppedKey, dropped,
		log.FeaturesKey, len(schema),
	)
	return table, labels, schema, nil
}

func describeSource(src config.SourceConfig) string {
	if src.Query != "" {
		return src.Driver
	}
	return src.CSV
}

// recordFromFlags builds one raw record from --set col=value pairs.
func recordFromFlags(pairs []string, src config.SourceConfig) (dataset.Record, error) {
	if len(pairs) == 0 {
		return nil, errors.NewValidationError("set", "at least one column=value is required", nil)
	}
	rec, err := dataset.ParseAssignments(pairs)
	if err != nil {
		return nil, err
	}
	columns := make([]string, 0, len(rec))
	for k := range rec {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	t := dataset.FromRecords(columns, rec)
	if err := recode(t, src); err != nil {
		return nil, err
	}
	return t.Rows[0], nil
}

// recordsFromCSV loads records to score.
func recordsFromCSV(path string, src config.SourceConfig) (*dataset.Table, error) {
	t, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := recode(t, src); err != nil {
		return nil, err
	}
	return t, nil
}
