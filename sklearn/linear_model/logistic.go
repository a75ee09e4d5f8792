package linear_model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

func init() {
	gob.Register(&LogisticRegression{})
	gob.Register(&LogisticRegressionCV{})
}

// LogisticRegression implements binary L2-regularised logistic regression
// trained by full-batch gradient descent. Compatible in spirit with
// scikit-learn's LogisticRegression for the two-class case.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	classWeight  string  // Class weight: "balanced", "none"
	randomState  int64   // Random seed
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      []float64 // Coefficients (n_features)
	intercept_ float64   // Intercept term
	classes_   []int     // Sorted class labels, len 2
	nFeatures_ int       // Number of features
	nIter_     int       // Actual iterations

	// Internal state
	rand *rand.Rand
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		classWeight:  "none",
		randomState:  -1,
		maxIter:      100,
		tol:          1e-4,
	}

	for _, opt := range opts {
		opt(lr)
	}

	if lr.randomState >= 0 {
		lr.rand = rand.New(rand.NewSource(lr.randomState))
	} else {
		lr.rand = rand.New(rand.NewSource(rand.Int63()))
	}

	return lr
}

// Option functions

// WithLRPenalty sets the regularization type ("l2" or "none")
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRClassWeight sets the class weighting ("balanced" or "none")
func WithLRClassWeight(w string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = w
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
		if seed >= 0 {
			lr.rand = rand.New(rand.NewSource(seed))
		}
	}
}

func (lr *LogisticRegression) validate() error {
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	}
	switch lr.penalty {
	case "l2", "none":
	default:
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	}
	switch lr.classWeight {
	case "none", "balanced":
	default:
		return errors.NewValidationError("class_weight", "must be 'none' or 'balanced'", lr.classWeight)
	}
	return nil
}

// Fit trains the model. y is an n × 1 column of two distinct labels.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}

	lr.extractClasses(y)
	if len(lr.classes_) != 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("binary classifier needs exactly 2 classes, got %d", len(lr.classes_)))
	}
	lr.nFeatures_ = nFeatures
	lr.initializeWeights(nFeatures)

	if err := lr.fitBinary(X, y); err != nil {
		return err
	}

	lr.state.MarkFitted(nFeatures)
	return nil
}

// extractClasses identifies unique class labels
func (lr *LogisticRegression) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}

	lr.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		lr.classes_ = append(lr.classes_, class)
	}
	sort.Ints(lr.classes_)
}

// initializeWeights initializes model weights with small random values
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	lr.coef_ = make([]float64, nFeatures)
	lr.intercept_ = 0
	for j := range lr.coef_ {
		lr.coef_[j] = lr.rand.NormFloat64() * 0.01
	}
}

// sampleWeights returns per-sample weights; "balanced" gives each class the
// same total weight.
func (lr *LogisticRegression) sampleWeights(target []float64) []float64 {
	n := len(target)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	if lr.classWeight != "balanced" {
		return w
	}
	pos := 0.0
	for _, t := range target {
		pos += t
	}
	neg := float64(n) - pos
	for i, t := range target {
		if t == 1 {
			w[i] = float64(n) / (2 * pos)
		} else {
			w[i] = float64(n) / (2 * neg)
		}
	}
	return w
}

// fitBinary fits binary logistic regression with Nesterov-accelerated
// gradient descent. The step is 1/L for the trace bound L of the loss
// Hessian, so no learning-rate tuning is needed.
func (lr *LogisticRegression) fitBinary(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	n := float64(nSamples)

	target := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == lr.classes_[1] {
			target[i] = 1.0
		}
	}
	sw := lr.sampleWeights(target)

	maxW, sumSq := 0.0, 0.0
	for i := 0; i < nSamples; i++ {
		maxW = math.Max(maxW, sw[i])
		for j := 0; j < nFeatures; j++ {
			v := X.At(i, j)
			sumSq += v * v
		}
	}
	reg := 0.0
	if lr.penalty == "l2" {
		reg = 1.0 / (lr.C * n)
	}
	lipschitz := 0.25*maxW*(sumSq/n+1) + reg
	step := 1.0 / lipschitz

	weights := mat.NewVecDense(nFeatures, lr.coef_)
	look := mat.VecDenseCopyOf(weights) // look-ahead point
	lookB := lr.intercept_
	prev := mat.NewVecDense(nFeatures, nil)
	z := mat.NewVecDense(nSamples, nil)
	residual := mat.NewVecDense(nSamples, nil)
	grad := mat.NewVecDense(nFeatures, nil)
	t := 1.0
	converged := false

	for iter := 0; iter < lr.maxIter; iter++ {
		// z = Xv + b
		z.MulVec(X, look)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			p := errors.Sigmoid(z.AtVec(i) + lookB)
			r := sw[i] * (p - target[i])
			residual.SetVec(i, r)
			gradIntercept += r
		}

		// grad = Xᵀr / n + v / (C n)
		grad.MulVec(X.T(), residual)
		grad.ScaleVec(1/n, grad)
		gradIntercept /= n
		if reg > 0 {
			grad.AddScaledVec(grad, reg, look)
		}

		if err := errors.CheckNumericalStability("LogisticRegression.gradient", grad.RawVector().Data, iter); err != nil {
			return err
		}

		maxGrad := math.Abs(gradIntercept)
		if !lr.fitIntercept {
			maxGrad = 0
		}
		for j := 0; j < nFeatures; j++ {
			maxGrad = math.Max(maxGrad, math.Abs(grad.AtVec(j)))
		}
		lr.nIter_ = iter + 1
		if maxGrad < lr.tol {
			weights.CopyVec(look)
			lr.intercept_ = lookB
			converged = true
			break
		}

		prev.CopyVec(weights)
		prevB := lr.intercept_
		weights.AddScaledVec(look, -step, grad)
		if lr.fitIntercept {
			lr.intercept_ = lookB - step*gradIntercept
		}

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		momentum := (t - 1) / tNext
		t = tNext
		look.SubVec(weights, prev)
		look.AddScaledVec(weights, momentum, look)
		lookB = lr.intercept_ + momentum*(lr.intercept_-prevB)
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.nIter_,
			"gradient descent did not reach tol; increase max_iter or scale the data"))
	}
	return nil
}

func (lr *LogisticRegression) decision(X mat.Matrix) (*mat.VecDense, error) {
	nSamples, nFeatures := X.Dims()
	if err := lr.state.Check("LogisticRegression", "Predict", nFeatures); err != nil {
		return nil, err
	}
	z := mat.NewVecDense(nSamples, nil)
	z.MulVec(X, mat.NewVecDense(lr.nFeatures_, lr.coef_))
	for i := 0; i < nSamples; i++ {
		z.SetVec(i, z.AtVec(i)+lr.intercept_)
	}
	return z, nil
}

// DecisionFunction returns the signed distance Xw + b for each sample.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	return lr.decision(X)
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision(X)
	if err != nil {
		return nil, err
	}
	n := z.Len()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if errors.Sigmoid(z.AtVec(i)) >= 0.5 {
			predictions.Set(i, 0, float64(lr.classes_[1]))
		} else {
			predictions.Set(i, 0, float64(lr.classes_[0]))
		}
	}
	return predictions, nil
}

// PredictProba returns probability estimates; columns follow Classes().
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision(X)
	if err != nil {
		return nil, err
	}
	n := z.Len()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p1 := errors.Sigmoid(z.AtVec(i))
		probas.Set(i, 0, 1.0-p1)
		probas.Set(i, 1, p1)
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	return accuracy(lr, X, y)
}

// Classes returns the sorted class labels seen during fitting.
func (lr *LogisticRegression) Classes() []int {
	out := make([]int, len(lr.classes_))
	copy(out, lr.classes_)
	return out
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	out := make([]float64, len(lr.coef_))
	copy(out, lr.coef_)
	return out
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept_
}

// NIter returns the number of gradient steps taken by the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "class_weight":
			lr.classWeight, ok = value.(string)
		case "random_state":
			lr.randomState, ok = value.(int64)
			if ok && lr.randomState >= 0 {
				lr.rand = rand.New(rand.NewSource(lr.randomState))
			}
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}

// ExportWeights returns the fitted coefficients for inspection.
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if !lr.state.IsFitted() {
		return nil, errors.NewNotFittedError("LogisticRegression", "ExportWeights")
	}
	return &model.ModelWeights{
		ModelType:       "LogisticRegression",
		Coefficients:    lr.Coef(),
		Intercept:       lr.intercept_,
		Hyperparameters: lr.GetParams(),
		IsFitted:        true,
	}, nil
}

// ImportWeights restores a fitted model from exported weights. Classes are
// assumed to be {0, 1}.
func (lr *LogisticRegression) ImportWeights(w *model.ModelWeights) error {
	if w == nil {
		return errors.NewValidationError("weights", "is nil", nil)
	}
	if err := w.Validate(); err != nil {
		return err
	}
	if w.ModelType != "LogisticRegression" {
		return errors.NewValidationError("model_type", "expected LogisticRegression", w.ModelType)
	}
	lr.coef_ = make([]float64, len(w.Coefficients))
	copy(lr.coef_, w.Coefficients)
	lr.intercept_ = w.Intercept
	lr.nFeatures_ = len(w.Coefficients)
	lr.classes_ = []int{0, 1}
	lr.state.MarkFitted(lr.nFeatures_)
	return nil
}

type logisticState struct {
	Penalty      string
	C            float64
	FitIntercept bool
	ClassWeight  string
	RandomState  int64
	MaxIter      int
	Tol          float64
	Coef         []float64
	Intercept    float64
	Classes      []int
	NFeatures    int
	NIter        int
	Fitted       bool
}

// MarshalBinary encodes hyperparameters and fitted state with gob.
func (lr *LogisticRegression) MarshalBinary() ([]byte, error) {
	st := logisticState{
		Penalty: lr.penalty, C: lr.C, FitIntercept: lr.fitIntercept,
		ClassWeight: lr.classWeight, RandomState: lr.randomState,
		MaxIter: lr.maxIter, Tol: lr.tol,
		Coef: lr.coef_, Intercept: lr.intercept_, Classes: lr.classes_,
		NFeatures: lr.nFeatures_, NIter: lr.nIter_, Fitted: lr.state.IsFitted(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "failed to encode LogisticRegression")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a model written by MarshalBinary.
func (lr *LogisticRegression) UnmarshalBinary(data []byte) error {
	var st logisticState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode LogisticRegression")
	}
	*lr = LogisticRegression{
		state:   model.NewStateManager(),
		penalty: st.Penalty, C: st.C, fitIntercept: st.FitIntercept,
		classWeight: st.ClassWeight, randomState: st.RandomState,
		maxIter: st.MaxIter, tol: st.Tol,
		coef_: st.Coef, intercept_: st.Intercept, classes_: st.Classes,
		nFeatures_: st.NFeatures, nIter_: st.NIter,
		rand: rand.New(rand.NewSource(st.RandomState)),
	}
	if st.Fitted {
		lr.state.MarkFitted(st.NFeatures)
	}
	return nil
}

// predictor is the part of a classifier accuracy needs.
type predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

func accuracy(p predictor, X, y mat.Matrix) float64 {
	predictions, err := p.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	if nSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}
