package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// columns: month-to-month contract (0/1), tenure in months, paperless billing (0/1)
func churnRows() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 3, []float64{
		1, 2, 1,
		1, 5, 0,
		1, 9, 1,
		1, 30, 0,
		1, 50, 1,
		0, 3, 0,
		0, 7, 1,
		0, 60, 0,
	})
	// 月契約かつ在籍が短い顧客だけが解約
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 0, 0, 0, 0, 0})
	return X, y
}

func TestDecisionTree_FitsChurnRule(t *testing.T) {
	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			X, y := churnRows()
			dt := NewDecisionTreeClassifier(WithCriterion(criterion))
			require.NoError(t, dt.Fit(X, y))

			assert.Equal(t, []int{0, 1}, dt.Classes())
			assert.Equal(t, 1.0, dt.Score(X, y))

			unseen := mat.NewDense(3, 3, []float64{
				1, 1, 0, // brand new monthly customer
				1, 70, 1,
				0, 1, 1,
			})
			pred, err := dt.Predict(unseen)
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 0, 0}, mat.Col(nil, 0, pred))
		})
	}
}

func TestDecisionTree_PredictProba(t *testing.T) {
	X, y := churnRows()
	// a stump cannot separate the classes, so some leaves are mixed
	dt := NewDecisionTreeClassifier(WithMaxDepth(1))
	require.NoError(t, dt.Fit(X, y))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 8, r)
	require.Equal(t, 2, c)

	mixed := false
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, proba)
		assert.InDelta(t, 1, row[0]+row[1], 1e-12)
		if row[1] > 0 && row[1] < 1 {
			mixed = true
		}
	}
	assert.True(t, mixed)
	assert.Equal(t, 1, dt.GetDepth())
	assert.Equal(t, 2, dt.GetNLeaves())
}

func TestDecisionTree_FeatureImportances(t *testing.T) {
	// tenure alone decides churn, contract alternates
	X := mat.NewDense(8, 2, []float64{
		1, 2,
		0, 4,
		1, 6,
		0, 8,
		1, 20,
		0, 30,
		1, 40,
		0, 50,
	})
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 0, 0, 0, 0})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	imp := dt.GetFeatureImportances()
	require.Len(t, imp, 2)
	assert.InDelta(t, 0, imp[0], 1e-12)
	assert.InDelta(t, 1, imp[1], 1e-12)
	assert.Equal(t, 2, dt.GetNLeaves())
}

func TestDecisionTree_Multiclass(t *testing.T) {
	// 契約種別 (0, 1, 2) を在籍期間から当てる
	X := mat.NewDense(9, 1, []float64{1, 3, 5, 14, 18, 22, 40, 48, 60})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2}, dt.Classes())
	assert.Equal(t, 1.0, dt.Score(X, y))

	proba, err := dt.PredictProba(mat.NewDense(1, 1, []float64{20}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, mat.Row(nil, 0, proba))
}

func TestDecisionTree_Constraints(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	shallow := NewDecisionTreeClassifier(WithMaxDepth(2))
	require.NoError(t, shallow.Fit(X, y))
	assert.LessOrEqual(t, shallow.GetDepth(), 2)

	// every leaf keeps at least two customers
	coarse := NewDecisionTreeClassifier(WithMinSamplesSplit(5), WithMinSamplesLeaf(2))
	require.NoError(t, coarse.Fit(X, y))
	assert.LessOrEqual(t, coarse.GetNLeaves(), 8)
	for _, n := range coarse.nodes_ {
		if n.Feature < 0 {
			assert.GreaterOrEqual(t, n.NSamples, 2)
		}
	}
}

func TestDecisionTree_FitIndices(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	// bootstrap-style multiset with repeated rows
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.FitIndices(X, y, []int{0, 0, 3, 3}))
	assert.Equal(t, 2, dt.GetNLeaves())
	assert.Equal(t, 4, dt.nodes_[0].NSamples)

	pred, err := dt.Predict(mat.NewDense(2, 1, []float64{0.2, 2.8}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, mat.Col(nil, 0, pred))
}

func TestDecisionTree_Params(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	params := dt.GetParams()
	assert.Equal(t, "gini", params["criterion"])
	assert.Equal(t, 2, params["min_samples_split"])
	assert.Equal(t, int64(-1), params["random_state"])

	require.NoError(t, dt.SetParams(map[string]interface{}{
		"criterion":         "entropy",
		"max_depth":         5,
		"min_samples_split": 4,
		"min_samples_leaf":  2,
		"random_state":      int64(9),
	}))
	assert.Equal(t, "entropy", dt.criterion)
	assert.Equal(t, 5, dt.maxDepth)
	assert.Equal(t, 4, dt.minSamplesSplit)
	assert.Equal(t, 2, dt.minSamplesLeaf)
	assert.Equal(t, int64(9), dt.randomState)

	var ve *errors.ValidationError
	err := dt.SetParams(map[string]interface{}{"max_depth": "deep"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "max_depth", ve.ParamName)
	assert.Error(t, dt.SetParams(map[string]interface{}{"splitter": "best"}))
}

func TestDecisionTree_InvalidFit(t *testing.T) {
	X, y := churnRows()
	tests := []struct {
		name  string
		dt    *DecisionTreeClassifier
		param string
	}{
		{"unknown criterion", NewDecisionTreeClassifier(WithCriterion("mse")), "criterion"},
		{"split below two", NewDecisionTreeClassifier(WithMinSamplesSplit(1)), "min_samples_split"},
		{"empty leaf", NewDecisionTreeClassifier(WithMinSamplesLeaf(0)), "min_samples_leaf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *errors.ValidationError
			require.True(t, errors.As(tt.dt.Fit(X, y), &ve))
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}

	dt := NewDecisionTreeClassifier()
	var de *errors.DimensionError
	assert.True(t, errors.As(dt.Fit(X, mat.NewDense(3, 1, nil)), &de))
	assert.ErrorIs(t, dt.FitIndices(X, y, nil), errors.ErrEmptyData)
}

func TestDecisionTree_NotFitted(t *testing.T) {
	X, y := churnRows()
	dt := NewDecisionTreeClassifier()

	var nf *errors.NotFittedError
	_, err := dt.Predict(X)
	assert.True(t, errors.As(err, &nf))
	_, err = dt.PredictProba(X)
	assert.True(t, errors.As(err, &nf))
	assert.Zero(t, dt.Score(X, y))

	require.NoError(t, dt.Fit(X, y))
	var de *errors.DimensionError
	_, err = dt.PredictProba(mat.NewDense(1, 2, nil))
	assert.True(t, errors.As(err, &de))
}

func TestDecisionTree_BinaryRoundTrip(t *testing.T) {
	X, y := churnRows()
	dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(3))
	require.NoError(t, dt.Fit(X, y))

	data, err := dt.MarshalBinary()
	require.NoError(t, err)
	restored := &DecisionTreeClassifier{}
	require.NoError(t, restored.UnmarshalBinary(data))

	want, err := dt.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
	assert.Equal(t, dt.GetNLeaves(), restored.GetNLeaves())
	assert.Equal(t, dt.GetFeatureImportances(), restored.GetFeatureImportances())
	assert.Equal(t, dt.GetParams(), restored.GetParams())

	// unfitted trees survive the round trip unfitted
	data, err = NewDecisionTreeClassifier().MarshalBinary()
	require.NoError(t, err)
	empty := &DecisionTreeClassifier{}
	require.NoError(t, empty.UnmarshalBinary(data))
	_, err = empty.Predict(X)
	assert.Error(t, err)
}
