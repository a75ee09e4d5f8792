// Package pipeline chains one-hot expansion, scaling and a probabilistic
// classifier into the churn model consumed by artifacts and explainers.
//
// The input is always the integer-coded matrix produced by
// preprocessing.CategoricalEncoder; the positive class is churn (label 1).
package pipeline

import (
	"encoding/gob"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/preprocessing"
	"github.com/YuminosukeSato/churnscope/sklearn/ensemble"
	"github.com/YuminosukeSato/churnscope/sklearn/linear_model"
)

func init() {
	gob.Register(&Pipeline{})
	gob.Register(&preprocessing.OneHotEncoder{})
	gob.Register(&preprocessing.StandardScaler{})
	gob.Register(&preprocessing.MinMaxScaler{})
}

// Classifier kinds accepted by Options.Classifier.
const (
	LogisticCV   = "logistic_cv"
	Logistic     = "logistic"
	RandomForest = "random_forest"
)

// Options selects the classifier and its hyperparameters.
type Options struct {
	Classifier  string
	Scaler      string // "standard", "minmax" or "none"
	Folds       int
	Cs          []float64
	C           float64
	MaxIter     int
	ClassWeight string // "none" or "balanced"

	NEstimators    int
	MaxDepth       int
	MinSamplesLeaf int

	RandomState int64
}

// DefaultOptions mirrors the reference notebook: cross-validated logistic
// regression behind a standard scaler.
func DefaultOptions() Options {
	return Options{
		Classifier:     LogisticCV,
		Scaler:         "standard",
		Folds:          5,
		C:              1,
		MaxIter:        300,
		ClassWeight:    "none",
		NEstimators:    100,
		MaxDepth:       8,
		MinSamplesLeaf: 5,
		RandomState:    0,
	}
}

// NewClassifier builds an unfitted classifier from opts.
func NewClassifier(opts Options) (model.ProbabilisticClassifier, error) {
	switch opts.Classifier {
	case "", LogisticCV:
		cvOpts := []linear_model.LogisticRegressionCVOption{
			linear_model.WithCVRandomState(opts.RandomState),
		}
		if opts.Folds > 0 {
			cvOpts = append(cvOpts, linear_model.WithCVFolds(opts.Folds))
		}
		if len(opts.Cs) > 0 {
			cvOpts = append(cvOpts, linear_model.WithCVCs(opts.Cs...))
		}
		if opts.MaxIter > 0 {
			cvOpts = append(cvOpts, linear_model.WithCVMaxIter(opts.MaxIter))
		}
		if opts.ClassWeight != "" {
			cvOpts = append(cvOpts, linear_model.WithCVClassWeight(opts.ClassWeight))
		}
		return linear_model.NewLogisticRegressionCV(cvOpts...), nil
	case Logistic:
		lrOpts := []linear_model.LogisticRegressionOption{
			linear_model.WithLRRandomState(opts.RandomState),
		}
		if opts.C > 0 {
			lrOpts = append(lrOpts, linear_model.WithLRC(opts.C))
		}
		if opts.MaxIter > 0 {
			lrOpts = append(lrOpts, linear_model.WithLRMaxIter(opts.MaxIter))
		}
		if opts.ClassWeight != "" {
			lrOpts = append(lrOpts, linear_model.WithLRClassWeight(opts.ClassWeight))
		}
		return linear_model.NewLogisticRegression(lrOpts...), nil
	case RandomForest:
		rfOpts := []ensemble.Option{ensemble.WithRandomState(opts.RandomState)}
		if opts.NEstimators > 0 {
			rfOpts = append(rfOpts, ensemble.WithNEstimators(opts.NEstimators))
		}
		if opts.MaxDepth > 0 {
			rfOpts = append(rfOpts, ensemble.WithMaxDepth(opts.MaxDepth))
		}
		if opts.MinSamplesLeaf > 0 {
			rfOpts = append(rfOpts, ensemble.WithMinSamplesLeaf(opts.MinSamplesLeaf))
		}
		return ensemble.NewRandomForestClassifier(rfOpts...), nil
	}
	return nil, errors.NewConfigurationError("training.classifier",
		fmt.Sprintf("unknown classifier %q (want %s, %s or %s)", opts.Classifier, LogisticCV, Logistic, RandomForest))
}

// Pipeline is OneHotEncoder → Scaler → classifier. Exported fields are
// persisted with gob; the step types are registered in init.
type Pipeline struct {
	model.BaseEstimator

	OneHot     *preprocessing.OneHotEncoder
	Scaler     preprocessing.Scaler
	Classifier model.ProbabilisticClassifier

	// NFeatures is the column count of the coded input matrix.
	NFeatures int
	// Positive is the column of Classifier.PredictProba holding class 1.
	Positive int
}

// New assembles an unfitted pipeline. categories[j] is the class count of
// coded column j, 0 for numeric columns (CategoricalEncoder.NumClasses).
func New(categories []int, opts Options) (*Pipeline, error) {
	scaler, err := preprocessing.NewScaler(opts.Scaler)
	if err != nil {
		return nil, err
	}
	clf, err := NewClassifier(opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		OneHot:     preprocessing.NewOneHotEncoder(categories),
		Scaler:     scaler,
		Classifier: clf,
	}, nil
}

// Compile-time check
var _ model.Pipeline = (*Pipeline)(nil)

func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	expanded, err := p.OneHot.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Scaler.Transform(expanded)
}

// Fit fits every step in order on the coded matrix X and row-aligned labels.
func (p *Pipeline) Fit(X mat.Matrix, labels []bool) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("Pipeline.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(labels) != r {
		return errors.NewValidationError("labels",
			fmt.Sprintf("have %d labels for %d rows", len(labels), r), len(labels))
	}

	logger := log.GetLoggerWithName("pipeline").With(log.OperationKey, log.OperationFit)
	start := time.Now()

	expanded, err := p.OneHot.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "one-hot step")
	}
	scaled, err := p.Scaler.FitTransform(expanded)
	if err != nil {
		return errors.Wrap(err, "scaler step")
	}
	y := mat.NewDense(r, 1, nil)
	for i, l := range labels {
		if l {
			y.Set(i, 0, 1)
		}
	}
	if err := p.Classifier.Fit(scaled, y); err != nil {
		return errors.Wrap(err, "classifier step")
	}

	classes := p.Classifier.Classes()
	p.Positive = -1
	for i, cl := range classes {
		if cl == 1 {
			p.Positive = i
		}
	}
	if len(classes) != 2 || p.Positive < 0 {
		return errors.NewValueError("Pipeline.Fit", "labels must contain both churn and non-churn rows")
	}
	p.NFeatures = c
	p.SetFitted()

	_, expandedCols := expanded.Dims()
	logger.Info("Pipeline fitted",
		log.SamplesKey, r,
		log.FeaturesKey, expandedCols,
		log.EstimatorKey, fmt.Sprintf("%T", p.Classifier),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba returns n × 2 probabilities: column 0 no churn, column 1 churn.
func (p *Pipeline) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "PredictProba")
	}
	r, c := X.Dims()
	if c != p.NFeatures {
		return nil, errors.NewDimensionError("Pipeline.PredictProba", p.NFeatures, c, 1)
	}
	scaled, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	proba, err := p.Classifier.PredictProba(scaled)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		pos := proba.At(i, p.Positive)
		out.Set(i, 0, 1-pos)
		out.Set(i, 1, pos)
	}
	return out, nil
}

// Predict returns true for rows whose churn probability is at least 0.5.
func (p *Pipeline) Predict(X mat.Matrix) ([]bool, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := make([]bool, r)
	for i := range out {
		out[i] = proba.At(i, 1) >= 0.5
	}
	return out, nil
}

// Score returns the mean accuracy against labels.
func (p *Pipeline) Score(X mat.Matrix, labels []bool) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(labels) != len(pred) {
		return 0, errors.NewDimensionError("Pipeline.Score", len(pred), len(labels), 0)
	}
	if len(pred) == 0 {
		return 0, errors.NewValueError("Pipeline.Score", "empty data")
	}
	correct := 0
	for i, l := range labels {
		if pred[i] == l {
			correct++
		}
	}
	return float64(correct) / float64(len(pred)), nil
}

// ExportWeights returns the classifier coefficients named after the
// expanded columns ("column=class" for categorical columns). Classifiers
// without a coefficient vector return a ValueError.
func (p *Pipeline) ExportWeights(features []string, classes map[int][]string) (*model.ModelWeights, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "ExportWeights")
	}
	exporter, ok := p.Classifier.(model.WeightExporter)
	if !ok {
		return nil, errors.NewValueError("Pipeline.ExportWeights",
			fmt.Sprintf("%T has no coefficient vector", p.Classifier))
	}
	w, err := exporter.ExportWeights()
	if err != nil {
		return nil, err
	}
	if len(features) == len(p.OneHot.Categories) {
		w.Features = p.OneHot.OutputNames(features, classes)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}
