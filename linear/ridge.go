// Package linear provides the weighted ridge regression fitted as the local
// surrogate of an explanation.
package linear

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/metrics"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// Ridge は L2 正則化付きの重み付き線形回帰モデル
type Ridge struct {
	model.BaseEstimator

	Alpha        float64 // 正則化の強さ
	FitIntercept bool

	Weights   *mat.VecDense // 重み（係数）
	Intercept float64       // 切片
	NFeatures int           // 特徴量の数
}

// NewRidge は新しいリッジ回帰モデルを作成する。既定値は alpha=1, 切片あり。
func NewRidge(opts ...Option) *Ridge {
	r := &Ridge{Alpha: 1, FitIntercept: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fit は標本重み sampleWeight のもとで
// (Xcᵀ W Xc + αI) w = Xcᵀ W yc を解く。Xc, yc は重み付き平均で中心化した値で、
// 切片は正則化しない。sampleWeight が nil なら一様重み。
func (rg *Ridge) Fit(X, y mat.Matrix, sampleWeight []float64) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("Ridge.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("Ridge.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("Ridge.Fit", "y must be a column vector")
	}
	if rg.Alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", rg.Alpha)
	}

	w := sampleWeight
	if w == nil {
		w = make([]float64, r)
		for i := range w {
			w[i] = 1
		}
	}
	if len(w) != r {
		return errors.NewDimensionError("Ridge.Fit", r, len(w), 0)
	}

	// 重み付き平均
	xMean := make([]float64, c)
	var yMean, wSum float64
	if rg.FitIntercept {
		for i := 0; i < r; i++ {
			wSum += w[i]
			yMean += w[i] * y.At(i, 0)
			for j := 0; j < c; j++ {
				xMean[j] += w[i] * X.At(i, j)
			}
		}
		if wSum <= 0 {
			return errors.NewValueError("Ridge.Fit", "sample weights sum to zero")
		}
		yMean /= wSum
		for j := range xMean {
			xMean[j] /= wSum
		}
	}

	// sqrt(w) を掛けた中心化行列を作り、正規方程式を通常の最小二乗と同じ形にする
	Xs := mat.NewDense(r, c, nil)
	ys := mat.NewVecDense(r, nil)
	parallel.Parallelize(r, parallel.DefaultRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			sw := math.Sqrt(math.Max(w[i], 0))
			ys.SetVec(i, sw*(y.At(i, 0)-yMean))
			for j := 0; j < c; j++ {
				Xs.Set(i, j, sw*(X.At(i, j)-xMean[j]))
			}
		}
	})

	var gram mat.SymDense
	gram.SymOuterK(1, Xs.T())
	for j := 0; j < c; j++ {
		gram.SetSym(j, j, gram.At(j, j)+rg.Alpha)
	}

	var rhs mat.VecDense
	rhs.MulVec(Xs.T(), ys)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.NewModelError("Ridge.Fit", "singular matrix", errors.ErrSingularMatrix)
	}
	coef := mat.NewVecDense(c, nil)
	if err := chol.SolveVecTo(coef, &rhs); err != nil {
		return errors.NewModelError("Ridge.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	rg.Weights = coef
	rg.NFeatures = c
	rg.Intercept = 0
	if rg.FitIntercept {
		rg.Intercept = yMean
		for j := 0; j < c; j++ {
			rg.Intercept -= xMean[j] * coef.AtVec(j)
		}
	}
	rg.SetFitted()
	return nil
}

// Predict は y = X·w + b を返す
func (rg *Ridge) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if !rg.IsFitted() {
		return nil, errors.NewNotFittedError("Ridge", "Predict")
	}
	r, c := X.Dims()
	if c != rg.NFeatures {
		return nil, errors.NewDimensionError("Ridge.Predict", rg.NFeatures, c, 1)
	}
	out := mat.NewVecDense(r, nil)
	out.MulVec(X, rg.Weights)
	for i := 0; i < r; i++ {
		out.SetVec(i, out.AtVec(i)+rg.Intercept)
	}
	return out, nil
}

// Score は重み付き決定係数を返す
func (rg *Ridge) Score(X, y mat.Matrix, sampleWeight []float64) (float64, error) {
	pred, err := rg.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	yv := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		yv.SetVec(i, y.At(i, 0))
	}
	return metrics.R2Score(yv, pred, sampleWeight)
}

// GetWeights は学習された重み（係数）を返す
func (rg *Ridge) GetWeights() []float64 {
	if rg.Weights == nil {
		return nil
	}
	out := make([]float64, rg.Weights.Len())
	for i := range out {
		out[i] = rg.Weights.AtVec(i)
	}
	return out
}
