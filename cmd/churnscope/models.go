package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/churnscope/artifact"
	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/pipeline"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/sklearn/ensemble"
)

func (a *app) inspectCmd() *cobra.Command {
	var (
		name string
		top  int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest and strongest global features of an artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			m, err := artifact.LoadScorer(cmd.Context(), a.modelName(name), store)
			if err != nil {
				return err
			}
			man, err := artifact.ReadManifest(cmd.Context(), store, m.Name())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			components := make([]string, 0, len(man.Components))
			for c := range man.Components {
				components = append(components, c)
			}
			sort.Strings(components)
			rows := [][]string{
				{"name", man.Name},
				{"artifact", man.ArtifactID},
				{"created", man.CreatedAt.Format(time.RFC3339)},
				{"format", fmt.Sprint(man.Version)},
				{"rows", fmt.Sprint(man.Summary.Rows)},
				{"churn rate", fmt.Sprintf("%.1f%%", 100*man.Summary.ChurnRate)},
				{"features", fmt.Sprint(len(man.Features))},
			}
			for _, c := range components {
				rows = append(rows, []string{c, man.Components[c][:12]})
			}
			renderTable(w, "Manifest", []string{"field", "value"}, rows, nil)

			contribs, kind, err := globalFeatures(m, top)
			if err != nil {
				return err
			}
			frows := make([][]string, len(contribs))
			for i, c := range contribs {
				frows[i] = []string{c.Feature, fmt.Sprintf("%+.4f", c.Weight)}
			}
			renderTable(w, "Top features", []string{"feature", kind}, frows, nil)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "model", "m", "", "artifact name (default training.model_name)")
	cmd.Flags().IntVarP(&top, "top", "n", 10, "number of features to show")
	return cmd
}

// globalFeatures returns coefficients for linear pipelines and impurity
// importances for forests.
func globalFeatures(m *artifact.ExplainedModel, n int) ([]model.Contribution, string, error) {
	p, ok := m.Pipeline().(*pipeline.Pipeline)
	if !ok {
		return nil, "", errors.NewValueError("inspect", fmt.Sprintf("unsupported pipeline %T", m.Pipeline()))
	}
	enc := m.Encoder()
	if rf, ok := p.Classifier.(*ensemble.RandomForestClassifier); ok {
		names := p.OneHot.OutputNames(enc.FeatureNames(), enc.ClassNames())
		imp := rf.FeatureImportances()
		w := &model.ModelWeights{Coefficients: imp, Features: names}
		return w.Top(n), "importance", nil
	}
	w, err := p.ExportWeights(enc.FeatureNames(), enc.ClassNames())
	if err != nil {
		return nil, "", err
	}
	return w.Top(n), "coefficient", nil
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List committed artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			var rows [][]string
			for _, name := range artifact.List(store) {
				man, err := artifact.ReadManifest(cmd.Context(), store, name)
				if err != nil {
					return err
				}
				rows = append(rows, []string{name, man.ArtifactID, man.CreatedAt.Format(time.RFC3339), fmt.Sprint(man.Summary.Rows)})
			}
			renderTable(cmd.OutOrStdout(), store.Root(), []string{"name", "artifact", "created", "rows"}, rows, nil)
			return nil
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a committed artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := artifact.Remove(cmd.Context(), store, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
