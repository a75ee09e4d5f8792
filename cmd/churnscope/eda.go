package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/report"
)

func (a *app) edaCmd() *cobra.Command {
	var column, out string
	cmd := &cobra.Command{
		Use:   "eda",
		Short: "Show the churn rate per category of one column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, labels, schema, err := loadTraining(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			var kind dataset.Kind = -1
			for _, c := range schema {
				if c.Name == column {
					kind = c.Kind
				}
			}
			if kind != dataset.Categorical {
				return errors.NewValidationError("column", "must be a categorical feature", column)
			}

			s, err := dataset.Summarize(table, dataset.Schema{{Name: column, Kind: kind}}, labels)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(s.Categorical[column]))
			for _, c := range s.Categorical[column] {
				rows = append(rows, []string{c.Value, fmt.Sprint(c.Count), fmt.Sprint(c.Churned), fmt.Sprintf("%.1f%%", 100*c.Rate())})
			}
			renderTable(cmd.OutOrStdout(),
				fmt.Sprintf("Churn by %s (%d rows, overall %.1f%%)", column, s.Rows, 100*s.ChurnRate),
				[]string{column, "customers", "churned", "rate"}, rows, nil)

			if out != "" {
				if err := report.ChurnRateChart(table, labels, column, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "Contract", "categorical feature to break down")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also draw the breakdown to this image file")
	return cmd
}
