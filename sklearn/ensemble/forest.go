// Package ensemble provides bagged tree classifiers.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
	"github.com/YuminosukeSato/churnscope/sklearn/tree"
)

func init() {
	gob.Register(&RandomForestClassifier{})
}

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap samples with a random feature subset per split.
type RandomForestClassifier struct {
	model.BaseEstimator

	NEstimators     int
	MaxDepth        int // <= 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // <= 0 means floor(sqrt(n_features))
	Bootstrap       bool
	RandomState     int64

	Trees      []*tree.DecisionTreeClassifier
	classes    []int
	nFeatures  int
	importance []float64
}

// Option configures a RandomForestClassifier
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.NEstimators = n }
}

// WithMaxDepth limits the depth of every tree
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.MaxDepth = d }
}

// WithMinSamplesLeaf sets the minimum leaf size of every tree
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features tried per split
func WithMaxFeatures(n int) Option {
	return func(rf *RandomForestClassifier) { rf.MaxFeatures = n }
}

// WithBootstrap toggles bootstrap sampling
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.Bootstrap = b }
}

// WithRandomState sets the base seed; tree i uses seed+i
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.RandomState = seed }
}

// NewRandomForestClassifier creates a forest with scikit-learn-like defaults.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		RandomState:     0,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit trains every tree on its own bootstrap sample. Trees are fitted in
// parallel; each owns its slot in Trees.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.NEstimators)
	}
	n, nFeatures := X.Dims()
	if n == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}

	logger := log.GetLoggerWithName("ensemble").With(log.EstimatorKey, "RandomForestClassifier")
	start := time.Now()

	trees := make([]*tree.DecisionTreeClassifier, rf.NEstimators)
	err := parallel.Rows(rf.NEstimators, 1, func(s, e int) error {
		for i := s; i < e; i++ {
			seed := rf.RandomState + int64(i)
			idx := make([]int, n)
			r := rand.New(rand.NewSource(seed))
			for j := range idx {
				if rf.Bootstrap {
					idx[j] = r.Intn(n)
				} else {
					idx[j] = j
				}
			}
			t := tree.NewDecisionTreeClassifier(
				tree.WithMaxDepth(rf.MaxDepth),
				tree.WithMinSamplesSplit(rf.MinSamplesSplit),
				tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(seed),
			)
			if err := t.FitIndices(X, y, idx); err != nil {
				return errors.Wrapf(err, "tree %d", i)
			}
			trees[i] = t
		}
		return nil
	})
	if err != nil {
		return err
	}

	rf.Trees = trees
	rf.classes = trees[0].Classes()
	rf.nFeatures = nFeatures
	rf.importance = make([]float64, nFeatures)
	for _, t := range trees {
		for j, v := range t.GetFeatureImportances() {
			rf.importance[j] += v / float64(len(trees))
		}
	}
	rf.SetFitted()

	logger.Info("Random forest fitted",
		log.SamplesKey, n,
		log.FeaturesKey, nFeatures,
		"n_estimators", rf.NEstimators,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba averages tree probabilities; columns follow Classes().
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	r, c := X.Dims()
	if c != rf.nFeatures {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", rf.nFeatures, c, 1)
	}
	out := mat.NewDense(r, len(rf.classes), nil)
	for _, t := range rf.Trees {
		p, err := t.PredictProba(X)
		if err != nil {
			return nil, err
		}
		out.Add(out, p)
	}
	out.Scale(1/float64(len(rf.Trees)), out)
	return out, nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, k := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(rf.classes[best]))
	}
	return out, nil
}

// Score returns mean accuracy.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	if r == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// Classes returns the sorted class labels.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes...)
}

// FeatureImportances returns the mean impurity decrease across trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.importance...)
}

// GetParams returns the model hyperparameters
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"random_state":      rf.RandomState,
	}
}

type forestState struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	Bootstrap       bool
	RandomState     int64
	Trees           [][]byte
	Classes         []int
	NFeatures       int
	Importance      []float64
	Fitted          bool
}

// MarshalBinary encodes the forest and every tree with gob.
func (rf *RandomForestClassifier) MarshalBinary() ([]byte, error) {
	st := forestState{
		NEstimators: rf.NEstimators, MaxDepth: rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit, MinSamplesLeaf: rf.MinSamplesLeaf,
		MaxFeatures: rf.MaxFeatures, Bootstrap: rf.Bootstrap, RandomState: rf.RandomState,
		Classes: rf.classes, NFeatures: rf.nFeatures, Importance: rf.importance,
		Fitted: rf.IsFitted(),
	}
	for _, t := range rf.Trees {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, err
		}
		st.Trees = append(st.Trees, b)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "failed to encode RandomForestClassifier")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a forest written by MarshalBinary.
func (rf *RandomForestClassifier) UnmarshalBinary(data []byte) error {
	var st forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode RandomForestClassifier")
	}
	*rf = RandomForestClassifier{
		NEstimators: st.NEstimators, MaxDepth: st.MaxDepth,
		MinSamplesSplit: st.MinSamplesSplit, MinSamplesLeaf: st.MinSamplesLeaf,
		MaxFeatures: st.MaxFeatures, Bootstrap: st.Bootstrap, RandomState: st.RandomState,
		classes: st.Classes, nFeatures: st.NFeatures, importance: st.Importance,
	}
	for i, b := range st.Trees {
		t := &tree.DecisionTreeClassifier{}
		if err := t.UnmarshalBinary(b); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		rf.Trees = append(rf.Trees, t)
	}
	if st.Fitted {
		if len(rf.Trees) == 0 {
			return errors.NewValueError("RandomForestClassifier.UnmarshalBinary", "fitted forest has no trees")
		}
		rf.SetFitted()
	}
	return nil
}
