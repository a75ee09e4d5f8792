package linear_model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// columns: month-to-month contract (0/1), tenure in years
func tenureRows() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		1, 0.2,
		1, 0.5,
		1, 0.8,
		1, 0.3,
		0, 3.0,
		0, 5.0,
		1, 4.0,
		0, 2.5,
	})
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 0, 0, 0, 0})
	return X, y
}

// imbalancedChurn returns roughly one churner in six.
func imbalancedChurn(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0, x1 := rng.NormFloat64(), rng.NormFloat64()
		X.SetRow(i, []float64{x0, x1})
		if x0+0.5*rng.NormFloat64() > 1.2 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestLogisticRegression_ShortTenureChurns(t *testing.T) {
	X, y := tenureRows()
	lr := NewLogisticRegression(WithLRC(10), WithLRMaxIter(2000), WithLRRandomState(1))
	require.NoError(t, lr.Fit(X, y))

	assert.True(t, lr.IsFitted())
	assert.Equal(t, []int{0, 1}, lr.Classes())
	assert.Equal(t, 1.0, lr.Score(X, y))
	// 在籍が長いほど解約確率は下がる
	assert.Less(t, lr.Coef()[1], 0.0)

	newcomers := mat.NewDense(2, 2, []float64{
		1, 0.1,
		1, 4.5,
	})
	proba, err := lr.PredictProba(newcomers)
	require.NoError(t, err)
	assert.Greater(t, proba.At(0, 1), 0.5)
	assert.Less(t, proba.At(1, 1), 0.5)
}

func TestLogisticRegression_ProbaAgreesWithPredict(t *testing.T) {
	X, y := churnLikeData(120, 7)
	lr := NewLogisticRegression(WithLRRandomState(0), WithLRMaxIter(500))
	require.NoError(t, lr.Fit(X, y))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	pred, err := lr.Predict(X)
	require.NoError(t, err)
	z, err := lr.DecisionFunction(X)
	require.NoError(t, err)

	r, c := proba.Dims()
	require.Equal(t, 120, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		stay, churn := proba.At(i, 0), proba.At(i, 1)
		assert.InDelta(t, 1, stay+churn, 1e-12)
		assert.InDelta(t, errors.Sigmoid(z.At(i, 0)), churn, 1e-12)
		if churn >= 0.5 {
			assert.Equal(t, 1.0, pred.At(i, 0), "row %d", i)
		} else {
			assert.Equal(t, 0.0, pred.At(i, 0), "row %d", i)
		}
	}
}

func TestLogisticRegression_Regularization(t *testing.T) {
	X, y := churnLikeData(200, 4)
	norm := func(c float64) float64 {
		lr := NewLogisticRegression(WithLRC(c), WithLRMaxIter(1000), WithLRRandomState(0))
		require.NoError(t, lr.Fit(X, y))
		s := 0.0
		for _, w := range lr.Coef() {
			s += w * w
		}
		return math.Sqrt(s)
	}
	assert.Less(t, norm(0.01), norm(100))

	free := NewLogisticRegression(WithLRPenalty("none"), WithLRMaxIter(50), WithLRRandomState(0))
	require.NoError(t, free.Fit(X, y))
	assert.Equal(t, "none", free.GetParams()["penalty"])
}

func TestLogisticRegression_BalancedClassWeight(t *testing.T) {
	X, y := imbalancedChurn(400, 11)
	meanChurn := func(weight string) float64 {
		lr := NewLogisticRegression(WithLRClassWeight(weight), WithLRMaxIter(1000), WithLRRandomState(0))
		require.NoError(t, lr.Fit(X, y))
		proba, err := lr.PredictProba(X)
		require.NoError(t, err)
		return mat.Sum(proba.(*mat.Dense).ColView(1)) / 400
	}
	// balanced weighting pushes probability mass toward the rare churners
	assert.Greater(t, meanChurn("balanced"), meanChurn("none"))
}

func TestLogisticRegression_NoIntercept(t *testing.T) {
	X, y := churnLikeData(100, 5)
	lr := NewLogisticRegression(WithLogisticFitIntercept(false), WithLRMaxIter(300), WithLRRandomState(0))
	require.NoError(t, lr.Fit(X, y))
	assert.Zero(t, lr.Intercept())
	assert.Equal(t, false, lr.GetParams()["fit_intercept"])
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warned []error
	errors.SetZerologWarnFunc(func(w error) { warned = append(warned, w) })
	t.Cleanup(func() { errors.SetZerologWarnFunc(nil) })

	X, y := churnLikeData(100, 6)
	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRRandomState(0))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, 1, lr.NIter())

	require.Len(t, warned, 1)
	var cw *errors.ConvergenceWarning
	require.True(t, errors.As(warned[0], &cw))
	assert.Equal(t, "LogisticRegression", cw.Algorithm)
	assert.Equal(t, 1, cw.Iterations)
}

func TestLogisticRegression_InvalidFit(t *testing.T) {
	X, y := tenureRows()
	tests := []struct {
		name  string
		lr    *LogisticRegression
		param string
	}{
		{"zero C", NewLogisticRegression(WithLRC(0)), "C"},
		{"no iterations", NewLogisticRegression(WithLRMaxIter(0)), "max_iter"},
		{"l1 penalty", NewLogisticRegression(WithLRPenalty("l1")), "penalty"},
		{"unknown weighting", NewLogisticRegression(WithLRClassWeight("auto")), "class_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *errors.ValidationError
			require.True(t, errors.As(tt.lr.Fit(X, y), &ve))
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}

	var valueErr *errors.ValueError
	threeWay := mat.NewDense(8, 1, []float64{0, 0, 1, 1, 2, 2, 0, 1})
	assert.True(t, errors.As(NewLogisticRegression().Fit(X, threeWay), &valueErr))
	nobodyLeft := mat.NewDense(8, 1, nil)
	assert.True(t, errors.As(NewLogisticRegression().Fit(X, nobodyLeft), &valueErr))

	var de *errors.DimensionError
	assert.True(t, errors.As(NewLogisticRegression().Fit(X, mat.NewDense(4, 1, nil)), &de))
}

func TestLogisticRegression_Params(t *testing.T) {
	lr := NewLogisticRegression()
	params := lr.GetParams()
	assert.Equal(t, 1.0, params["C"])
	assert.Equal(t, 100, params["max_iter"])
	assert.Equal(t, "none", params["class_weight"])

	require.NoError(t, lr.SetParams(map[string]interface{}{
		"C":            2.0,
		"max_iter":     200,
		"penalty":      "none",
		"tol":          1e-5,
		"class_weight": "balanced",
	}))
	assert.Equal(t, 2.0, lr.C)
	assert.Equal(t, 200, lr.maxIter)
	assert.Equal(t, "none", lr.penalty)
	assert.Equal(t, 1e-5, lr.tol)
	assert.Equal(t, "balanced", lr.classWeight)

	var ve *errors.ValidationError
	require.True(t, errors.As(lr.SetParams(map[string]interface{}{"C": 3}), &ve))
	assert.Equal(t, "C", ve.ParamName)
	assert.Error(t, lr.SetParams(map[string]interface{}{"solver": "lbfgs"}))
}

func TestLogisticRegression_NotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X, y := tenureRows()

	var nf *errors.NotFittedError
	_, err := lr.Predict(X)
	assert.True(t, errors.As(err, &nf))
	_, err = lr.PredictProba(X)
	assert.True(t, errors.As(err, &nf))
	_, err = lr.ExportWeights()
	assert.True(t, errors.As(err, &nf))
	assert.False(t, lr.IsFitted())

	require.NoError(t, lr.Fit(X, y))
	var de *errors.DimensionError
	_, err = lr.DecisionFunction(mat.NewDense(1, 3, nil))
	assert.True(t, errors.As(err, &de))
}
