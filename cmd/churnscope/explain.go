package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/churnscope/artifact"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/report"
)

func (a *app) explainCmd() *cobra.Command {
	var (
		name     string
		sets     []string
		csvPath  string
		rows     []int
		features int
		chart    string
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain the churn prediction for one customer",
		Long: `Prints the strongest local feature contributions behind one prediction.
The customer is given as --set column=value pairs or as row --row of --csv;
--row may be repeated to explain several customers of the file. Positive
weights push towards churn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var recs []dataset.Record
			if csvPath != "" {
				var err error
				if recs, err = csvRows(csvPath, rows, a); err != nil {
					return err
				}
			} else {
				rec, err := recordFromFlags(sets, a.cfg.Source)
				if err != nil {
					return err
				}
				recs = []dataset.Record{rec}
			}
			if features <= 0 {
				features = a.cfg.Explainer.NumFeatures
			}
			if chart != "" && len(recs) > 1 {
				return errors.NewValidationError("chart", "needs a single --row", len(recs))
			}

			reg, err := a.models()
			if err != nil {
				return err
			}
			for _, rec := range recs {
				m, err := reg.Get(cmd.Context(), a.modelName(name))
				if err != nil {
					return err
				}
				if err := explainRecord(cmd, m, rec, features, chart); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "model", "m", "", "artifact name (default training.model_name)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "feature value as column=value (repeatable)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file holding the customer")
	cmd.Flags().IntSliceVar(&rows, "row", []int{0}, "row of --csv to explain (repeatable)")
	cmd.Flags().IntVarP(&features, "features", "n", 0, "number of contributions (default explainer.num_features)")
	cmd.Flags().StringVar(&chart, "chart", "", "also draw the explanation to this image file")
	cmd.MarkFlagsMutuallyExclusive("set", "csv")
	return cmd
}

func csvRows(path string, rows []int, a *app) ([]dataset.Record, error) {
	t, err := recordsFromCSV(path, a.cfg.Source)
	if err != nil {
		return nil, err
	}
	out := make([]dataset.Record, 0, len(rows))
	for _, row := range rows {
		if row < 0 || row >= t.Len() {
			return nil, errors.NewValidationError("row", fmt.Sprintf("must be in [0, %d)", t.Len()), row)
		}
		out = append(out, t.Rows[row])
	}
	return out, nil
}

func explainRecord(cmd *cobra.Command, m *artifact.ExplainedModel, rec dataset.Record, features int, chart string) error {
	p, err := m.Predict(rec)
	if err != nil {
		return err
	}
	contribs, err := m.Explain(rec, features)
	if err != nil {
		return err
	}
	if len(contribs) > 0 {
		log.GetLoggerWithName("churnscope").Debug("Prediction explained",
			log.ModelNameKey, m.Name(),
			log.OperationKey, log.OperationExplain,
			log.TopFeatureKey, contribs[0].Feature,
		)
	}

	rows := make([][]string, len(contribs))
	for i, c := range contribs {
		rows[i] = []string{c.Feature, fmt.Sprintf("%+.4f", c.Weight)}
	}
	title := fmt.Sprintf("%s: churn probability %.1f%% (%s)", m.Name(), 100*p.Probability, churnLabel(p.Churn))
	renderTable(cmd.OutOrStdout(), title, []string{"feature", "weight"}, rows,
		func(row, col int) *lipgloss.Style {
			if col == 1 {
				return churnCell(contribs[row].Weight > 0)
			}
			return nil
		})

	if chart != "" {
		if err := report.ExplanationChart(contribs, title, chart); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", chart)
	}
	return nil
}
