package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/churnscope/artifact"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

func (a *app) predictCmd() *cobra.Command {
	var (
		name    string
		sets    []string
		csvPath string
		outPath string
		chunk   int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score customers with a saved artifact",
		Long: `Scores either one customer given as --set column=value pairs or every
row of --csv. Only the encoder and pipeline are loaded. With --out the
CSV is scored in chunks and the results are written as CSV instead of
being printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			m, err := artifact.LoadScorer(cmd.Context(), a.modelName(name), store)
			if err != nil {
				return err
			}
			if csvPath != "" && outPath != "" {
				return a.scoreFile(cmd, m, csvPath, outPath, chunk)
			}
			if csvPath != "" {
				t, err := recordsFromCSV(csvPath, a.cfg.Source)
				if err != nil {
					return err
				}
				return a.printBatch(cmd, m, t)
			}
			rec, err := recordFromFlags(sets, a.cfg.Source)
			if err != nil {
				return err
			}
			p, err := m.Predict(rec)
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), "", []string{"probability", "prediction"},
				[][]string{{fmt.Sprintf("%.4f", p.Probability), churnLabel(p.Churn)}},
				func(_, col int) *lipgloss.Style {
					if col == 1 {
						return churnCell(p.Churn)
					}
					return nil
				})
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "model", "m", "", "artifact name (default training.model_name)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "feature value as column=value (repeatable)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file of customers to score")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write --csv results to this CSV file")
	cmd.Flags().IntVar(&chunk, "chunk", dataset.DefaultChunkSize, "rows scored per chunk with --out")
	cmd.MarkFlagsMutuallyExclusive("set", "csv")
	cmd.MarkFlagsRequiredTogether("out", "csv")
	return cmd
}

func (a *app) printBatch(cmd *cobra.Command, m *artifact.ExplainedModel, t *dataset.Table) error {
	preds, err := m.PredictBatch(t)
	if err != nil {
		return err
	}
	id := a.cfg.Source.ID
	if !t.Has(id) {
		id = ""
	}
	headers := []string{"row", "probability", "prediction"}
	if id != "" {
		headers[0] = id
	}
	rows := make([][]string, len(preds))
	for i, p := range preds {
		key := fmt.Sprint(i)
		if id != "" {
			key = t.Rows[i][id]
		}
		rows[i] = []string{key, fmt.Sprintf("%.4f", p.Probability), churnLabel(p.Churn)}
	}
	renderTable(cmd.OutOrStdout(), fmt.Sprintf("%d customers scored by %s", len(preds), m.Name()), headers, rows,
		func(row, col int) *lipgloss.Style {
			if col == 2 {
				return churnCell(preds[row].Churn)
			}
			return nil
		})
	return nil
}

// scoreFile streams in through the scorer chunk by chunk and appends id,
// probability and churn columns to out as each chunk is scored.
func (a *app) scoreFile(cmd *cobra.Command, m *artifact.ExplainedModel, in, out string, chunk int) (err error) {
	idCol := a.cfg.Source.ID
	if idCol == "" {
		idCol = "row"
	}

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "create %s", out)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", out)
		}
	}()
	w, err := dataset.NewCSVWriter(f, []string{idCol, "probability", "churn"})
	if err != nil {
		return err
	}

	err = dataset.ScanCSVFile(in, chunk, func(t *dataset.Table, offset int) error {
		if err := recode(t, a.cfg.Source); err != nil {
			return err
		}
		preds, err := m.PredictBatch(t)
		if err != nil {
			return errors.Wrapf(err, "score rows %d-%d", offset, offset+t.Len()-1)
		}
		scored := dataset.NewTable([]string{idCol, "probability", "churn"}, make([]dataset.Record, 0, len(preds)))
		for i, p := range preds {
			id := t.Rows[i][idCol]
			if !t.Has(idCol) {
				id = strconv.Itoa(offset + i)
			}
			scored.Append(dataset.Record{
				idCol:         id,
				"probability": strconv.FormatFloat(p.Probability, 'f', 6, 64),
				"churn":       strconv.FormatBool(p.Churn),
			})
		}
		return w.Write(scored)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d customers scored by %s, results written to %s\n", w.Rows(), m.Name(), out)
	return nil
}
