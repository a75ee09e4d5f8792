package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// weightsFor は重みを検証し、nil の場合は一様重みを返す
func weightsFor(op string, n int, w []float64) ([]float64, error) {
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w, nil
	}
	if len(w) != n {
		return nil, errors.NewDimensionError(op, n, len(w), 0)
	}
	var total float64
	for _, v := range w {
		if v < 0 {
			return nil, errors.NewValueError(op, "negative sample weight")
		}
		total += v
	}
	if total == 0 {
		return nil, errors.NewValueError(op, "sample weights sum to zero")
	}
	return w, nil
}

// MSE は重み付き平均二乗誤差を計算する。weights が nil なら一様重み。
func MSE(yTrue, yPred *mat.VecDense, weights []float64) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	w, err := weightsFor("MSE", n, weights)
	if err != nil {
		return 0, err
	}

	var sum, total float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += w[i] * diff * diff
		total += w[i]
	}
	return sum / total, nil
}

// R2Score は重み付き決定係数（R²）を計算する。
// ローカル説明の代理モデルの当てはまりとして使う。
func R2Score(yTrue, yPred *mat.VecDense, weights []float64) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	w, err := weightsFor("R2Score", n, weights)
	if err != nil {
		return 0, err
	}

	var yMean, total float64
	for i := 0; i < n; i++ {
		yMean += w[i] * yTrue.AtVec(i)
		total += w[i]
	}
	yMean /= total

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		p := yPred.AtVec(i)
		tss += w[i] * (t - yMean) * (t - yMean)
		rss += w[i] * (t - p) * (t - p)
	}

	// すべてのyTrueが同じ値
	if tss == 0 {
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}
