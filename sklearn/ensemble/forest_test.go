package ensemble

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

// blobs returns two separated clusters in feature 0 plus a noise feature.
func blobs(n int, seed int64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		X.Set(i, 0, label*3+r.NormFloat64()*0.5)
		X.Set(i, 1, r.NormFloat64())
		y.Set(i, 0, label)
	}
	return X, y
}

func TestRandomForestClassifier_Fit(t *testing.T) {
	X, y := blobs(200, 1)
	rf := NewRandomForestClassifier(WithNEstimators(15), WithMaxDepth(4), WithRandomState(7))
	require.NoError(t, rf.Fit(X, y))

	assert.Len(t, rf.Trees, 15)
	assert.Equal(t, []int{0, 1}, rf.Classes())
	assert.GreaterOrEqual(t, rf.Score(X, y), 0.95)

	imp := rf.FeatureImportances()
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0], imp[1])

	proba, err := rf.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-9)
	}
}

func TestRandomForestClassifier_Deterministic(t *testing.T) {
	X, y := blobs(120, 2)
	a := NewRandomForestClassifier(WithNEstimators(8), WithRandomState(42))
	b := NewRandomForestClassifier(WithNEstimators(8), WithRandomState(42))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb), "same seed must give the same forest")
}

func TestRandomForestClassifier_BinaryRoundTrip(t *testing.T) {
	X, y := blobs(80, 3)
	rf := NewRandomForestClassifier(WithNEstimators(5), WithRandomState(1))
	require.NoError(t, rf.Fit(X, y))

	// gob through the interface, as a pipeline stores it
	data, err := model.EncodeBytes(&struct{ C model.ProbabilisticClassifier }{rf})
	require.NoError(t, err)
	var restored struct{ C model.ProbabilisticClassifier }
	require.NoError(t, model.DecodeBytes(data, &restored))

	want, err := rf.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.C.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestRandomForestClassifier_Errors(t *testing.T) {
	rf := NewRandomForestClassifier()
	_, err := rf.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = NewRandomForestClassifier(WithNEstimators(0)).Fit(mat.NewDense(2, 1, []float64{0, 1}), mat.NewDense(2, 1, []float64{0, 1}))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	X, y := blobs(20, 4)
	require.NoError(t, rf.Fit(X, y))
	_, err = rf.PredictProba(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
