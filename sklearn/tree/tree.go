// Package tree implements a CART decision tree classifier.
package tree

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
	gob.Register(&DecisionTreeClassifier{})
}

// Node is one node of a fitted tree, stored in a flat slice. Leaves have
// Feature == -1.
type Node struct {
	Feature   int
	Threshold float64 // go left when x[Feature] <= Threshold
	Left      int
	Right     int
	Value     []float64 // class distribution of the training samples
	NSamples  int
	Impurity  float64
}

// DecisionTreeClassifier implements a CART classifier with gini or entropy
// impurity. Compatible in spirit with scikit-learn's DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features tried per split, <= 0 means all
	randomState     int64

	// Fitted attributes
	nodes_              []Node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64

	rand *rand.Rand
}

// Option is a functional option for DecisionTreeClassifier
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new decision tree classifier
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	dt.seed()
	return dt
}

func (dt *DecisionTreeClassifier) seed() {
	if dt.randomState >= 0 {
		dt.rand = rand.New(rand.NewSource(dt.randomState))
	} else {
		dt.rand = rand.New(rand.NewSource(rand.Int63()))
	}
}

// WithCriterion sets the impurity measure ("gini" or "entropy")
func WithCriterion(c string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = c }
}

// WithMaxDepth sets the maximum depth; <= 0 means unlimited
func WithMaxDepth(d int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples in each leaf
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many randomly chosen features are tried per split
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState sets the random seed
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

func (dt *DecisionTreeClassifier) validate() error {
	switch dt.criterion {
	case "gini", "entropy":
	default:
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// Fit builds the tree from X and the label column y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	nSamples, _ := X.Dims()
	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	return dt.FitIndices(X, y, indices)
}

// FitIndices builds the tree from the rows of X listed in indices. Repeated
// indices count once per occurrence, which is how bootstrap samples are fed.
func (dt *DecisionTreeClassifier) FitIndices(X, y mat.Matrix, indices []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 || len(indices) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}

	dt.extractClasses(y)
	dt.nFeatures_ = nFeatures

	b := &builder{
		dt:       dt,
		cols:     columns(X),
		target:   make([]int, nSamples),
		nClasses: dt.nClasses_,
		imp:      make([]float64, nFeatures),
	}
	classIdx := make(map[int]int, dt.nClasses_)
	for i, c := range dt.classes_ {
		classIdx[c] = i
	}
	for i := 0; i < nSamples; i++ {
		b.target[i] = classIdx[int(y.At(i, 0))]
	}

	idx := make([]int, len(indices))
	copy(idx, indices)
	dt.nodes_ = dt.nodes_[:0]
	b.grow(idx, 0)

	total := 0.0
	for _, v := range b.imp {
		total += v
	}
	dt.featureImportances_ = make([]float64, nFeatures)
	if total > 0 {
		for j, v := range b.imp {
			dt.featureImportances_[j] = v / total
		}
	}

	dt.state.MarkFitted(nFeatures)
	return nil
}

func (dt *DecisionTreeClassifier) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	seen := make(map[int]bool)
	for i := 0; i < rows; i++ {
		seen[int(y.At(i, 0))] = true
	}
	dt.classes_ = dt.classes_[:0]
	for c := range seen {
		dt.classes_ = append(dt.classes_, c)
	}
	sort.Ints(dt.classes_)
	dt.nClasses_ = len(dt.classes_)
}

// columns copies X into column-major slices for fast sorting.
func columns(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = make([]float64, r)
		mat.Col(cols[j], j, X)
	}
	return cols
}

type builder struct {
	dt       *DecisionTreeClassifier
	cols     [][]float64
	target   []int
	nClasses int
	imp      []float64 // unnormalised impurity decrease per feature
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if b.dt.criterion == "entropy" {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	counts := make([]float64, b.nClasses)
	for _, i := range idx {
		counts[b.target[i]]++
	}
	n := float64(len(idx))
	imp := b.impurity(counts, n)

	value := make([]float64, b.nClasses)
	for k, c := range counts {
		value[k] = c / n
	}
	self := len(b.dt.nodes_)
	b.dt.nodes_ = append(b.dt.nodes_, Node{Feature: -1, Value: value, NSamples: len(idx), Impurity: imp})

	if imp <= 1e-12 ||
		len(idx) < b.dt.minSamplesSplit ||
		len(idx) < 2*b.dt.minSamplesLeaf ||
		(b.dt.maxDepth > 0 && depth >= b.dt.maxDepth) {
		return self
	}

	feature, threshold, childImp, ok := b.bestSplit(idx, counts)
	if !ok {
		return self
	}

	var left, right []int
	col := b.cols[feature]
	for _, i := range idx {
		if col[i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.imp[feature] += n*imp - childImp

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	node := &b.dt.nodes_[self]
	node.Feature, node.Threshold, node.Left, node.Right = feature, threshold, l, r
	return self
}

// bestSplit returns the split minimising the weighted child impurity
// (n_left*imp_left + n_right*imp_right).
func (b *builder) bestSplit(idx []int, parent []float64) (feature int, threshold, best float64, ok bool) {
	nFeatures := len(b.cols)
	candidates := make([]int, nFeatures)
	for j := range candidates {
		candidates[j] = j
	}
	if mf := b.dt.maxFeatures; mf > 0 && mf < nFeatures {
		b.dt.rand.Shuffle(nFeatures, func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:mf]
		sort.Ints(candidates)
	}

	n := len(idx)
	minLeaf := b.dt.minSamplesLeaf
	sorted := make([]int, n)
	leftCounts := make([]float64, b.nClasses)
	rightCounts := make([]float64, b.nClasses)
	best = math.Inf(1)

	for _, j := range candidates {
		col := b.cols[j]
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })
		if col[sorted[0]] == col[sorted[n-1]] {
			continue
		}

		for k := range leftCounts {
			leftCounts[k] = 0
			rightCounts[k] = parent[k]
		}
		for pos := 0; pos < n-1; pos++ {
			c := b.target[sorted[pos]]
			leftCounts[c]++
			rightCounts[c]--

			nl := pos + 1
			if col[sorted[pos]] == col[sorted[pos+1]] || nl < minLeaf || n-nl < minLeaf {
				continue
			}
			w := float64(nl)*b.impurity(leftCounts, float64(nl)) +
				float64(n-nl)*b.impurity(rightCounts, float64(n-nl))
			if w < best {
				best = w
				feature = j
				threshold = (col[sorted[pos]] + col[sorted[pos+1]]) / 2
				ok = true
			}
		}
	}
	return feature, threshold, best, ok
}

func (dt *DecisionTreeClassifier) leaf(row []float64) *Node {
	n := &dt.nodes_[0]
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = &dt.nodes_[n.Left]
		} else {
			n = &dt.nodes_[n.Right]
		}
	}
	return n
}

func (dt *DecisionTreeClassifier) check(X mat.Matrix, method string) error {
	_, c := X.Dims()
	return dt.state.Check("DecisionTreeClassifier", method, c)
}

// PredictProba returns class distributions of the reached leaves; columns
// follow Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.check(X, "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, dt.nClasses_, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.leaf(row).Value)
	}
	return out, nil
}

// Predict returns the majority class of the reached leaves.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(dt.classes_[argmax(mat.Row(nil, i, proba))]))
	}
	return out, nil
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

// Score returns the mean accuracy on the given data and labels
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.classes_))
	copy(out, dt.classes_)
	return out
}

// GetFeatureImportances returns the normalised total impurity decrease per
// feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.featureImportances_))
	copy(out, dt.featureImportances_)
	return out
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	if len(dt.nodes_) == 0 {
		return 0
	}
	var depth func(i int) int
	depth = func(i int) int {
		n := dt.nodes_[i]
		if n.Feature < 0 {
			return 0
		}
		l, r := depth(n.Left), depth(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return depth(0)
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, node := range dt.nodes_ {
		if node.Feature < 0 {
			n++
		}
	}
	return n
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.criterion, ok = value.(string)
		case "max_depth":
			dt.maxDepth, ok = value.(int)
		case "min_samples_split":
			dt.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.minSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.maxFeatures, ok = value.(int)
		case "random_state":
			dt.randomState, ok = value.(int64)
			if ok {
				dt.seed()
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("wrong type %T", value), value)
		}
	}
	return nil
}

type treeState struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64
	Nodes           []Node
	Classes         []int
	NFeatures       int
	Importances     []float64
	Fitted          bool
}

// MarshalBinary encodes hyperparameters and the fitted nodes with gob.
func (dt *DecisionTreeClassifier) MarshalBinary() ([]byte, error) {
	st := treeState{
		Criterion: dt.criterion, MaxDepth: dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit, MinSamplesLeaf: dt.minSamplesLeaf,
		MaxFeatures: dt.maxFeatures, RandomState: dt.randomState,
		Nodes: dt.nodes_, Classes: dt.classes_, NFeatures: dt.nFeatures_,
		Importances: dt.featureImportances_,
		Fitted:      dt.state.IsFitted(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "failed to encode DecisionTreeClassifier")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a tree written by MarshalBinary.
func (dt *DecisionTreeClassifier) UnmarshalBinary(data []byte) error {
	var st treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode DecisionTreeClassifier")
	}
	*dt = DecisionTreeClassifier{
		state:     model.NewStateManager(),
		criterion: st.Criterion, maxDepth: st.MaxDepth,
		minSamplesSplit: st.MinSamplesSplit, minSamplesLeaf: st.MinSamplesLeaf,
		maxFeatures: st.MaxFeatures, randomState: st.RandomState,
		nodes_: st.Nodes, classes_: st.Classes, nClasses_: len(st.Classes),
		nFeatures_: st.NFeatures, featureImportances_: st.Importances,
	}
	dt.seed()
	if st.Fitted {
		if len(st.Nodes) == 0 {
			return errors.NewValueError("DecisionTreeClassifier.UnmarshalBinary", "fitted tree has no nodes")
		}
		dt.state.MarkFitted(st.NFeatures)
	}
	return nil
}
