package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/artifact"
	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/explain"
	"github.com/YuminosukeSato/churnscope/metrics"
	"github.com/YuminosukeSato/churnscope/pipeline"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/preprocessing"
)

func (a *app) trainCmd() *cobra.Command {
	var (
		name  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit encoder, pipeline and explainer and save them as one artifact",
		Long: `Loads the configured source, drops incomplete rows, holds out
training.test_fraction of the rows for evaluation and fits the encoder,
pipeline and explainer on the rest. Hold-out metrics are printed before
the artifact is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.train(cmd, a.modelName(name), force)
		},
	}
	cmd.Flags().StringVarP(&name, "model", "m", "", "artifact name (default training.model_name)")
	cmd.Flags().BoolVar(&force, "force", false, "replace a committed artifact with the same name")
	return cmd
}

// evaluation holds hold-out metrics.
type evaluation struct {
	accuracy, auc, logLoss    float64
	precision, recall, f1     float64
	confusion                 metrics.ConfusionMatrix
	trainRows, testRows, cols int
}

func (a *app) train(cmd *cobra.Command, name string, force bool) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := log.GetLoggerWithName("churnscope").With(
		log.ModelNameKey, name,
		log.OperationKey, log.OperationFit,
		log.RandomSeedKey, cfg.Training.Seed,
	)
	start := time.Now()

	table, labels, schema, err := loadTraining(ctx, cfg)
	if err != nil {
		return err
	}
	train, test, trainY, testY, err := dataset.TrainTestSplit(table, labels, cfg.Training.TestFraction, cfg.Training.Seed)
	if err != nil {
		return err
	}

	enc, err := preprocessing.NewCategoricalEncoder(schema)
	if err != nil {
		return err
	}
	X, err := enc.FitTransform(train)
	if err != nil {
		return err
	}
	categories := make([]int, len(schema))
	for j, col := range schema {
		categories[j] = enc.NumClasses(col.Name)
	}
	pipe, err := pipeline.New(categories, cfg.PipelineOptions())
	if err != nil {
		return err
	}
	if err := pipe.Fit(X, trainY); err != nil {
		return err
	}
	lime, err := explain.NewLimeTabular(X, enc.FeatureNames(), enc.CategoricalIndices(), enc.ClassNames(),
		cfg.ExplainerOptions()...)
	if err != nil {
		return err
	}

	ev, err := evaluate(enc, pipe, test, testY)
	if err != nil {
		return errors.Wrap(err, "evaluate hold-out split")
	}
	ev.trainRows = train.Len()

	store, err := a.store()
	if err != nil {
		return err
	}
	if force {
		var nf *errors.NotFoundError
		if err := artifact.Remove(ctx, store, name); err != nil && !errors.As(err, &nf) {
			return err
		}
	}
	m, err := artifact.New(train, trainY, name, enc, pipe, lime, store)
	if err != nil {
		return err
	}
	if err := m.Save(ctx); err != nil {
		return err
	}

	logger.Info("Model trained",
		log.SamplesKey, train.Len(),
		log.AccuracyKey, ev.accuracy,
		log.AUCKey, ev.auc,
		log.ArtifactIDKey, m.ID(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	printEvaluation(cmd, name, m.ID(), ev)
	return nil
}

func evaluate(enc *preprocessing.CategoricalEncoder, pipe *pipeline.Pipeline, test *dataset.Table, testY []bool) (evaluation, error) {
	var ev evaluation
	Xt, err := enc.Transform(test)
	if err != nil {
		return ev, err
	}
	ev.testRows, ev.cols = Xt.Dims()

	proba, err := pipe.PredictProba(Xt)
	if err != nil {
		return ev, err
	}
	pred := make([]bool, ev.testRows)
	for i := range pred {
		pred[i] = proba.At(i, 1) >= 0.5
	}
	yTrue := metrics.BoolVec(testY)
	score := mat.VecDenseCopyOf(proba.ColView(1))

	if ev.auc, err = metrics.AUC(yTrue, score); err != nil {
		return ev, err
	}
	if ev.logLoss, err = metrics.BinaryLogLoss(yTrue, score); err != nil {
		return ev, err
	}
	if ev.accuracy, err = metrics.Accuracy(yTrue, metrics.BoolVec(pred)); err != nil {
		return ev, err
	}
	if ev.confusion, err = metrics.NewConfusionMatrix(testY, pred); err != nil {
		return ev, err
	}
	ev.precision, ev.recall, ev.f1 = ev.confusion.PrecisionRecallF1()
	return ev, nil
}

func printEvaluation(cmd *cobra.Command, name, id string, ev evaluation) {
	w := cmd.OutOrStdout()
	renderTable(w, fmt.Sprintf("Hold-out evaluation (%d train / %d test rows)", ev.trainRows, ev.testRows),
		[]string{"metric", "value"},
		[][]string{
			{"accuracy", fmt.Sprintf("%.4f", ev.accuracy)},
			{"roc auc", fmt.Sprintf("%.4f", ev.auc)},
			{"log loss", fmt.Sprintf("%.4f", ev.logLoss)},
			{"precision", fmt.Sprintf("%.4f", ev.precision)},
			{"recall", fmt.Sprintf("%.4f", ev.recall)},
			{"f1", fmt.Sprintf("%.4f", ev.f1)},
		}, nil)
	cm := ev.confusion
	renderTable(w, "Confusion matrix",
		[]string{"", "predicted stay", "predicted churn"},
		[][]string{
			{"actual stay", fmt.Sprint(cm.TrueNegative), fmt.Sprint(cm.FalsePositive)},
			{"actual churn", fmt.Sprint(cm.FalseNegative), fmt.Sprint(cm.TruePositive)},
		}, nil)
	fmt.Fprintf(w, "\nsaved %s (artifact %s)\n", name, id)
}
