package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// codedChurn returns a coded matrix with a 3-class contract column (code 0
// churns often), a 2-class noise column and a numeric tenure column (short
// tenure churns).
func codedChurn(n int, seed int64) (*mat.Dense, []bool) {
	r := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 3, nil)
	labels := make([]bool, n)
	for i := 0; i < n; i++ {
		contract := r.Intn(3)
		tenure := r.Float64() * 72
		X.Set(i, 0, float64(contract))
		X.Set(i, 1, float64(r.Intn(2)))
		X.Set(i, 2, tenure)
		score := 0.0
		if contract == 0 {
			score += 2
		}
		score -= tenure / 24
		labels[i] = score+r.NormFloat64()*0.3 > 0
	}
	return X, labels
}

var categories = []int{3, 2, 0}

func TestPipeline_LogisticCV(t *testing.T) {
	X, labels := codedChurn(300, 1)
	opts := DefaultOptions()
	opts.Folds = 3
	opts.Cs = []float64{0.1, 1, 10}

	p, err := New(categories, opts)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, labels))

	acc, err := p.Score(X, labels)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.85)

	proba, err := p.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 300, r)
	assert.Equal(t, 2, c)
	pred, err := p.Predict(X)
	require.NoError(t, err)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
		assert.Equal(t, proba.At(i, 1) >= 0.5, pred[i])
	}

	w, err := p.ExportWeights([]string{"Contract", "gender", "tenure"},
		map[int][]string{0: {"Month-to-month", "One year", "Two year"}, 1: {"Female", "Male"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Contract=Month-to-month", "Contract=One year", "Contract=Two year",
		"gender=Female", "gender=Male", "tenure",
	}, w.Features)
	top := w.Top(1)
	require.Len(t, top, 1)
	assert.NotContains(t, top[0].Feature, "gender")
}

func TestPipeline_RandomForest(t *testing.T) {
	X, labels := codedChurn(200, 2)
	opts := DefaultOptions()
	opts.Classifier = RandomForest
	opts.NEstimators = 10
	opts.MaxDepth = 5

	p, err := New(categories, opts)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, labels))

	acc, err := p.Score(X, labels)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.85)

	_, err = p.ExportWeights(nil, nil)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve), "forests have no coefficient vector")
}

func TestPipeline_GobRoundTrip(t *testing.T) {
	for _, kind := range []string{LogisticCV, Logistic, RandomForest} {
		t.Run(kind, func(t *testing.T) {
			X, labels := codedChurn(120, 3)
			opts := DefaultOptions()
			opts.Classifier = kind
			opts.Folds = 3
			opts.Cs = []float64{1}
			opts.NEstimators = 5
			opts.Scaler = "minmax"

			p, err := New(categories, opts)
			require.NoError(t, err)
			require.NoError(t, p.Fit(X, labels))

			data, err := model.EncodeBytes(p)
			require.NoError(t, err)
			var restored Pipeline
			require.NoError(t, model.DecodeBytes(data, &restored))

			want, err := p.PredictProba(X)
			require.NoError(t, err)
			got, err := restored.PredictProba(X)
			require.NoError(t, err)
			assert.True(t, mat.Equal(want, got), "probabilities differ after round trip")
		})
	}
}

func TestPipeline_Errors(t *testing.T) {
	_, err := New(categories, Options{Classifier: "svm"})
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	_, err = New(categories, Options{Scaler: "robust"})
	assert.True(t, errors.As(err, &ce))

	p, err := New(categories, DefaultOptions())
	require.NoError(t, err)

	_, err = p.PredictProba(mat.NewDense(1, 3, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, labels := codedChurn(50, 4)
	err = p.Fit(X, labels[:49])
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	allStay := make([]bool, 50)
	assert.Error(t, p.Fit(X, allStay))

	p, err = New(categories, Options{Classifier: Logistic})
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, labels))
	_, err = p.PredictProba(mat.NewDense(1, 2, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	// code 5 is outside the 3 contract classes
	_, err = p.PredictProba(mat.NewDense(1, 3, []float64{5, 0, 1}))
	var val *errors.ValueError
	assert.True(t, errors.As(err, &val))
}
