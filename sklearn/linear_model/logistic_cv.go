package linear_model

import (
	"bytes"
	"encoding/gob"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/sklearn/model_selection"
)

// LogisticRegressionCV selects C by stratified k-fold cross-validation on
// accuracy, then refits a LogisticRegression on all samples with the best C.
type LogisticRegressionCV struct {
	Cs          []float64
	CV          int
	MaxIter     int
	Tol         float64
	ClassWeight string
	RandomState int64

	// Fitted attributes
	BestC     float64
	CVScores  []float64 // mean fold accuracy per entry of Cs
	Estimator *LogisticRegression
}

// LogisticRegressionCVOption is a functional option for LogisticRegressionCV
type LogisticRegressionCVOption func(*LogisticRegressionCV)

// NewLogisticRegressionCV creates a cross-validated logistic regression.
// Defaults follow scikit-learn: Cs = logspace(-4, 4, 10), 5 folds.
func NewLogisticRegressionCV(opts ...LogisticRegressionCVOption) *LogisticRegressionCV {
	cv := &LogisticRegressionCV{
		Cs:          model_selection.LogSpace(-4, 4, 10),
		CV:          5,
		MaxIter:     300,
		Tol:         1e-4,
		ClassWeight: "none",
		RandomState: 0,
	}
	for _, opt := range opts {
		opt(cv)
	}
	return cv
}

// WithCVCs sets the candidate inverse regularization strengths
func WithCVCs(cs ...float64) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) {
		cv.Cs = append([]float64(nil), cs...)
	}
}

// WithCVFolds sets the number of folds
func WithCVFolds(k int) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) {
		cv.CV = k
	}
}

// WithCVMaxIter sets the iteration budget of every inner fit
func WithCVMaxIter(n int) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) {
		cv.MaxIter = n
	}
}

// WithCVClassWeight sets the class weighting of every inner fit
func WithCVClassWeight(w string) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) {
		cv.ClassWeight = w
	}
}

// WithCVRandomState sets the seed used for fold shuffling and weight init
func WithCVRandomState(seed int64) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) {
		cv.RandomState = seed
	}
}

func (cv *LogisticRegressionCV) newEstimator(c float64) *LogisticRegression {
	return NewLogisticRegression(
		WithLRC(c),
		WithLRMaxIter(cv.MaxIter),
		WithLRTol(cv.Tol),
		WithLRClassWeight(cv.ClassWeight),
		WithLRRandomState(cv.RandomState),
	)
}

// Fit runs the C search and the final refit.
func (cv *LogisticRegressionCV) Fit(X, y mat.Matrix) error {
	if len(cv.Cs) == 0 {
		return errors.NewValidationError("Cs", "must not be empty", cv.Cs)
	}
	if cv.CV < 2 {
		return errors.NewValidationError("cv", "must be at least 2", cv.CV)
	}
	nSamples, _ := X.Dims()
	if nSamples < cv.CV {
		return errors.NewValidationError("cv", "more folds than samples", cv.CV)
	}

	logger := log.GetLoggerWithName("linear_model").With(log.EstimatorKey, "LogisticRegressionCV")
	start := time.Now()

	seed := uint64(cv.RandomState)
	folds := model_selection.NewStratifiedKFold(cv.CV, true, seed).Split(X, y)

	// Fold data is built once and shared read-only by every C.
	type foldData struct{ xTr, yTr, xTe, yTe *mat.Dense }
	data := make([]foldData, len(folds))
	for i, f := range folds {
		xTr, yTr := model_selection.Subset(X, y, f.TrainIndices)
		xTe, yTe := model_selection.Subset(X, y, f.TestIndices)
		data[i] = foldData{xTr, yTr, xTe, yTe}
	}

	scores := make([]float64, len(cv.Cs))
	err := parallel.Rows(len(cv.Cs), 1, func(startC, endC int) error {
		for ci := startC; ci < endC; ci++ {
			foldScores := make([]float64, len(data))
			for fi, d := range data {
				est := cv.newEstimator(cv.Cs[ci])
				if err := est.Fit(d.xTr, d.yTr); err != nil {
					return errors.Wrapf(err, "fold %d, C=%g", fi, cv.Cs[ci])
				}
				foldScores[fi] = est.Score(d.xTe, d.yTe)
			}
			scores[ci], _ = model_selection.MeanStd(foldScores)
		}
		return nil
	})
	if err != nil {
		return err
	}

	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	cv.CVScores = scores
	cv.BestC = cv.Cs[best]

	cv.Estimator = cv.newEstimator(cv.BestC)
	if err := cv.Estimator.Fit(X, y); err != nil {
		return err
	}

	logger.Info("Cross-validated C selected",
		log.RegularizationKey, cv.BestC,
		log.AccuracyKey, scores[best],
		log.FoldKey, cv.CV,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (cv *LogisticRegressionCV) fitted(method string) error {
	if cv.Estimator == nil || !cv.Estimator.IsFitted() {
		return errors.NewNotFittedError("LogisticRegressionCV", method)
	}
	return nil
}

// Predict delegates to the refitted estimator.
func (cv *LogisticRegressionCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := cv.fitted("Predict"); err != nil {
		return nil, err
	}
	return cv.Estimator.Predict(X)
}

// PredictProba delegates to the refitted estimator.
func (cv *LogisticRegressionCV) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := cv.fitted("PredictProba"); err != nil {
		return nil, err
	}
	return cv.Estimator.PredictProba(X)
}

// Score returns the mean accuracy of the refitted estimator.
func (cv *LogisticRegressionCV) Score(X, y mat.Matrix) float64 {
	return accuracy(cv, X, y)
}

// Classes returns the sorted class labels.
func (cv *LogisticRegressionCV) Classes() []int {
	if cv.Estimator == nil {
		return nil
	}
	return cv.Estimator.Classes()
}

// GetParams returns the search configuration.
func (cv *LogisticRegressionCV) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"Cs":           cv.Cs,
		"cv":           cv.CV,
		"max_iter":     cv.MaxIter,
		"tol":          cv.Tol,
		"class_weight": cv.ClassWeight,
		"random_state": cv.RandomState,
	}
}

// ExportWeights exports the refitted estimator's coefficients.
func (cv *LogisticRegressionCV) ExportWeights() (*model.ModelWeights, error) {
	if err := cv.fitted("ExportWeights"); err != nil {
		return nil, err
	}
	w, err := cv.Estimator.ExportWeights()
	if err != nil {
		return nil, err
	}
	w.ModelType = "LogisticRegressionCV"
	w.Hyperparameters["best_C"] = cv.BestC
	return w, nil
}

type logisticCVState struct {
	Cs          []float64
	CV          int
	MaxIter     int
	Tol         float64
	ClassWeight string
	RandomState int64
	BestC       float64
	CVScores    []float64
	Estimator   []byte
}

// MarshalBinary encodes the search configuration and the refitted estimator.
func (cv *LogisticRegressionCV) MarshalBinary() ([]byte, error) {
	st := logisticCVState{
		Cs: cv.Cs, CV: cv.CV, MaxIter: cv.MaxIter, Tol: cv.Tol,
		ClassWeight: cv.ClassWeight, RandomState: cv.RandomState,
		BestC: cv.BestC, CVScores: cv.CVScores,
	}
	if cv.Estimator != nil {
		b, err := cv.Estimator.MarshalBinary()
		if err != nil {
			return nil, err
		}
		st.Estimator = b
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "failed to encode LogisticRegressionCV")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a model written by MarshalBinary.
func (cv *LogisticRegressionCV) UnmarshalBinary(data []byte) error {
	var st logisticCVState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode LogisticRegressionCV")
	}
	*cv = LogisticRegressionCV{
		Cs: st.Cs, CV: st.CV, MaxIter: st.MaxIter, Tol: st.Tol,
		ClassWeight: st.ClassWeight, RandomState: st.RandomState,
		BestC: st.BestC, CVScores: st.CVScores,
	}
	if len(st.Estimator) > 0 {
		cv.Estimator = &LogisticRegression{}
		if err := cv.Estimator.UnmarshalBinary(st.Estimator); err != nil {
			return err
		}
	}
	return nil
}
