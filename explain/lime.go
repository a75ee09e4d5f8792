// Package explain builds local explanations of churn probabilities with a
// LIME-style tabular explainer over the integer-coded feature matrix.
package explain

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/linear"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

func init() {
	gob.Register(&LimeTabular{})
}

// Explanation is the full result of one local fit.
type Explanation struct {
	Contributions []model.Contribution `json:"contributions"`
	// Intercept of the local surrogate.
	Intercept float64 `json:"intercept"`
	// Score is the weighted R² of the surrogate on the neighbourhood.
	Score float64 `json:"score"`
	// LocalPrediction is the surrogate's churn probability for the instance.
	LocalPrediction float64 `json:"local_prediction"`
	// Probability is the model's churn probability for the instance.
	Probability float64 `json:"probability"`
}

// Distribution holds the discretised training distribution of one column.
// Categorical columns use class codes as values; numeric columns use
// quartile bin indices, with per-bin statistics for sampling back.
type Distribution struct {
	Values []float64
	Freqs  []float64

	// numeric only
	Bounds  []float64
	BinMean []float64
	BinStd  []float64
	BinMin  []float64
	BinMax  []float64
}

// LimeTabular explains single rows by fitting a weighted ridge model on a
// perturbed neighbourhood. Exported fields are persisted with gob.
type LimeTabular struct {
	FeatureNames []string
	Categorical  []bool
	ClassNames   map[int][]string
	Columns      []Distribution

	NumSamples  int
	KernelWidth float64
	Alpha       float64
	RandomState int64
}

// Option configures a LimeTabular
type Option func(*LimeTabular)

// WithNumSamples sets the neighbourhood size (default 5000)
func WithNumSamples(n int) Option {
	return func(l *LimeTabular) { l.NumSamples = n }
}

// WithKernelWidth overrides the default width 0.75·sqrt(n_features)
func WithKernelWidth(w float64) Option {
	return func(l *LimeTabular) { l.KernelWidth = w }
}

// WithAlpha sets the ridge penalty of the surrogate (default 1)
func WithAlpha(a float64) Option {
	return func(l *LimeTabular) { l.Alpha = a }
}

// WithRandomState sets the sampling seed; equal seeds give equal explanations
func WithRandomState(seed int64) Option {
	return func(l *LimeTabular) { l.RandomState = seed }
}

// NewLimeTabular records the training distribution of the coded matrix.
// categorical lists the coded column indices holding class codes and
// classNames maps them to their labels (CategoricalEncoder.ClassNames).
func NewLimeTabular(train mat.Matrix, featureNames []string, categorical []int, classNames map[int][]string, opts ...Option) (*LimeTabular, error) {
	r, c := train.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("LimeTabular", "empty training data", errors.ErrEmptyData)
	}
	if len(featureNames) != c {
		return nil, errors.NewDimensionError("LimeTabular", c, len(featureNames), 1)
	}

	l := &LimeTabular{
		FeatureNames: append([]string(nil), featureNames...),
		Categorical:  make([]bool, c),
		ClassNames:   classNames,
		Columns:      make([]Distribution, c),
		NumSamples:   5000,
		KernelWidth:  0.75 * math.Sqrt(float64(c)),
		Alpha:        1,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.NumSamples < 2 {
		return nil, errors.NewValidationError("num_samples", "must be at least 2", l.NumSamples)
	}
	if l.KernelWidth <= 0 {
		return nil, errors.NewValidationError("kernel_width", "must be positive", l.KernelWidth)
	}
	for _, j := range categorical {
		if j < 0 || j >= c {
			return nil, errors.NewValidationError("categorical", "column index out of range", j)
		}
		l.Categorical[j] = true
	}

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, train)
		if l.Categorical[j] {
			l.Columns[j] = categoricalDistribution(col)
		} else {
			l.Columns[j] = numericDistribution(col)
		}
	}
	return l, nil
}

func frequencies(values []float64) ([]float64, []float64) {
	counts := make(map[float64]int)
	for _, v := range values {
		counts[v]++
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	freqs := make([]float64, len(keys))
	for i, k := range keys {
		freqs[i] = float64(counts[k]) / float64(len(values))
	}
	return keys, freqs
}

func categoricalDistribution(col []float64) Distribution {
	values, freqs := frequencies(col)
	return Distribution{Values: values, Freqs: freqs}
}

func numericDistribution(col []float64) Distribution {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	var bounds []float64
	for _, p := range []float64{0.25, 0.5, 0.75} {
		q := stat.Quantile(p, stat.Empirical, sorted, nil)
		if len(bounds) == 0 || q > bounds[len(bounds)-1] {
			bounds = append(bounds, q)
		}
	}

	d := Distribution{Bounds: bounds}
	nBins := len(bounds) + 1
	binned := make([][]float64, nBins)
	bins := make([]float64, len(col))
	for i, v := range col {
		b := bin(bounds, v)
		bins[i] = float64(b)
		binned[b] = append(binned[b], v)
	}
	d.Values, d.Freqs = frequencies(bins)

	d.BinMean = make([]float64, nBins)
	d.BinStd = make([]float64, nBins)
	d.BinMin = make([]float64, nBins)
	d.BinMax = make([]float64, nBins)
	for b, vs := range binned {
		if len(vs) == 0 {
			continue
		}
		if len(vs) == 1 {
			d.BinMean[b] = vs[0]
		} else {
			d.BinMean[b], d.BinStd[b] = stat.MeanStdDev(vs, nil)
		}
		d.BinMin[b], d.BinMax[b] = vs[0], vs[0]
		for _, v := range vs {
			d.BinMin[b] = math.Min(d.BinMin[b], v)
			d.BinMax[b] = math.Max(d.BinMax[b], v)
		}
	}
	return d
}

// bin returns the number of bounds strictly below v, so bin i covers
// (Bounds[i-1], Bounds[i]].
func bin(bounds []float64, v float64) int {
	return sort.Search(len(bounds), func(i int) bool { return bounds[i] >= v })
}

func (d Distribution) sample(r *rand.Rand) float64 {
	u := r.Float64()
	acc := 0.0
	for i, f := range d.Freqs {
		acc += f
		if u < acc {
			return d.Values[i]
		}
	}
	return d.Values[len(d.Values)-1]
}

// undiscretise draws a value inside bin b from a normal with the bin's
// training mean and std, clipped to the bin's training range.
func (d Distribution) undiscretise(r *rand.Rand, b int) float64 {
	if d.BinStd[b] == 0 {
		return d.BinMean[b]
	}
	v := d.BinMean[b] + r.NormFloat64()*d.BinStd[b]
	return math.Max(d.BinMin[b], math.Min(d.BinMax[b], v))
}

func fmtBound(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// describe names feature j at discretised value v, e.g. "Contract=Two year"
// or "12.00 < tenure <= 29.00".
func (l *LimeTabular) describe(j int, v float64) string {
	name := l.FeatureNames[j]
	if l.Categorical[j] {
		code := int(v)
		if cls, ok := l.ClassNames[j]; ok && code >= 0 && code < len(cls) {
			return name + "=" + cls[code]
		}
		return name + "=" + strconv.Itoa(code)
	}
	bounds := l.Columns[j].Bounds
	b := int(v)
	switch {
	case len(bounds) == 0:
		return name
	case b == 0:
		return fmt.Sprintf("%s <= %s", name, fmtBound(bounds[0]))
	case b >= len(bounds):
		return fmt.Sprintf("%s > %s", name, fmtBound(bounds[len(bounds)-1]))
	default:
		return fmt.Sprintf("%s < %s <= %s", fmtBound(bounds[b-1]), name, fmtBound(bounds[b]))
	}
}

// ExplainInstance implements model.Explainer.
func (l *LimeTabular) ExplainInstance(x []float64, fn model.ProbaFunc, numFeatures int) ([]model.Contribution, error) {
	e, err := l.Explain(x, fn, numFeatures)
	if err != nil {
		return nil, err
	}
	return e.Contributions, nil
}

// Explain fits the local surrogate for x and returns the numFeatures
// strongest contributions (all when numFeatures <= 0).
func (l *LimeTabular) Explain(x []float64, fn model.ProbaFunc, numFeatures int) (*Explanation, error) {
	c := len(l.FeatureNames)
	if len(x) != c {
		return nil, errors.NewDimensionError("LimeTabular.Explain", c, len(x), 1)
	}
	if fn == nil {
		return nil, errors.NewValueError("LimeTabular.Explain", "nil probability function")
	}
	if numFeatures <= 0 || numFeatures > c {
		numFeatures = c
	}

	// discretised instance
	inst := make([]float64, c)
	for j, v := range x {
		if l.Categorical[j] {
			inst[j] = v
		} else {
			inst[j] = float64(bin(l.Columns[j].Bounds, v))
		}
	}

	n := l.NumSamples
	r := rand.New(rand.NewSource(l.RandomState))
	binary := mat.NewDense(n, c, nil)
	inverse := mat.NewDense(n, c, nil)
	for j := 0; j < c; j++ {
		binary.Set(0, j, 1)
	}
	inverse.SetRow(0, x)
	for i := 1; i < n; i++ {
		for j := 0; j < c; j++ {
			d := l.Columns[j]
			v := d.sample(r)
			if v == inst[j] {
				binary.Set(i, j, 1)
			}
			if l.Categorical[j] {
				inverse.Set(i, j, v)
			} else {
				inverse.Set(i, j, d.undiscretise(r, int(v)))
			}
		}
	}

	proba, err := fn(inverse)
	if err != nil {
		return nil, errors.Wrap(err, "probability function")
	}
	pr, pc := proba.Dims()
	if pr != n || pc < 2 {
		return nil, errors.NewDimensionError("LimeTabular.Explain", n, pr, 0)
	}
	target := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		target.Set(i, 0, proba.At(i, 1))
	}

	// the instance row is all ones, so the distance counts differing features
	weights := make([]float64, n)
	width2 := l.KernelWidth * l.KernelWidth
	for i := 0; i < n; i++ {
		diff := 0.0
		for j := 0; j < c; j++ {
			diff += 1 - binary.At(i, j)
		}
		weights[i] = math.Sqrt(math.Exp(-diff / width2))
	}

	used, err := l.selectFeatures(binary, target, weights, numFeatures)
	if err != nil {
		return nil, err
	}
	sub := columnsOf(binary, used)
	surrogate := linear.NewRidge(linear.WithAlpha(l.Alpha))
	if err := surrogate.Fit(sub, target, weights); err != nil {
		return nil, errors.Wrap(err, "local surrogate")
	}
	score, err := surrogate.Score(sub, target, weights)
	if err != nil {
		// constant neighbourhood predictions leave R² undefined
		score = 0
	}
	local, err := surrogate.Predict(mat.NewDense(1, len(used), ones(len(used))))
	if err != nil {
		return nil, err
	}

	coef := surrogate.GetWeights()
	contribs := make([]model.Contribution, len(used))
	for k, j := range used {
		contribs[k] = model.Contribution{
			Feature: l.describe(j, inst[j]),
			Weight:  errors.Clip(coef[k], -1, 1),
		}
	}
	model.SortContributions(contribs)

	e := &Explanation{
		Contributions:   contribs,
		Intercept:       surrogate.Intercept,
		Score:           score,
		LocalPrediction: local.AtVec(0),
		Probability:     proba.At(0, 1),
	}

	logger := log.GetLoggerWithName("explain")
	if logger.Enabled(context.Background(), log.LevelDebug) && len(contribs) > 0 {
		logger.Debug("Local explanation fitted",
			log.OperationKey, log.OperationExplain,
			log.NumSamplesKey, n,
			log.TopFeatureKey, contribs[0].Feature,
			log.ConfidenceKey, e.Probability,
			"score", score,
		)
	}
	return e, nil
}

// selectFeatures keeps the k columns with the largest |coefficient| of a
// ridge fit on every column, in column order.
func (l *LimeTabular) selectFeatures(binary, target *mat.Dense, weights []float64, k int) ([]int, error) {
	_, c := binary.Dims()
	all := make([]int, c)
	for j := range all {
		all[j] = j
	}
	if k >= c {
		return all, nil
	}
	full := linear.NewRidge(linear.WithAlpha(l.Alpha))
	if err := full.Fit(binary, target, weights); err != nil {
		return nil, errors.Wrap(err, "feature selection")
	}
	coef := full.GetWeights()
	sort.SliceStable(all, func(a, b int) bool { return math.Abs(coef[all[a]]) > math.Abs(coef[all[b]]) })
	used := all[:k]
	sort.Ints(used)
	return used, nil
}

func columnsOf(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < r; i++ {
			out.Set(i, k, m.At(i, j))
		}
	}
	return out
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
