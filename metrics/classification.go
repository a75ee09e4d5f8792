// Package metrics provides the classification scores reported after
// training and the weighted regression scores used by local explanations.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// logLossEps は log(0) を避けるためのクリッピング幅
const logLossEps = 1e-15

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC は ROC 曲線下面積を計算する。同順位のスコアは平均順位で扱う。
// 片方のクラスしか存在しない場合は 0.5 を返し警告を出す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	// Mann-Whitney U: sum of positive ranks with ties averaged.
	var rankSum float64
	var nPos int
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSum += avg
				nPos++
			}
		}
		i = j + 1
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列入力の先頭列に対して AUC を計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	yt, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	ys, err := firstColumn("AUCMatrix", yScore)
	if err != nil {
		return 0, err
	}
	return AUC(yt, ys)
}

func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// BinaryLogLoss は二値分類の対数損失を計算する
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.Clip(yProb.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ClassificationError は誤分類率を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix holds binary counts with churn as the positive class.
type ConfusionMatrix struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

// NewConfusionMatrix counts outcomes of boolean predictions.
func NewConfusionMatrix(yTrue, yPred []bool) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(yTrue) == 0 {
		return cm, errors.NewValueError("ConfusionMatrix", "empty labels")
	}
	if len(yTrue) != len(yPred) {
		return cm, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	for i, t := range yTrue {
		switch {
		case t && yPred[i]:
			cm.TruePositive++
		case t:
			cm.FalseNegative++
		case yPred[i]:
			cm.FalsePositive++
		default:
			cm.TrueNegative++
		}
	}
	return cm, nil
}

// Total returns the number of counted samples.
func (cm ConfusionMatrix) Total() int {
	return cm.TruePositive + cm.FalsePositive + cm.TrueNegative + cm.FalseNegative
}

// PrecisionRecallF1 returns precision, recall and F1 of the positive class.
// Undefined ratios are 0 and raise an UndefinedMetricWarning.
func (cm ConfusionMatrix) PrecisionRecallF1() (precision, recall, f1 float64) {
	if d := cm.TruePositive + cm.FalsePositive; d > 0 {
		precision = float64(cm.TruePositive) / float64(d)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted positives", 0))
	}
	if d := cm.TruePositive + cm.FalseNegative; d > 0 {
		recall = float64(cm.TruePositive) / float64(d)
	} else {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true positives", 0))
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// BoolVec converts labels to a 0/1 vector for the vector metrics.
func BoolVec(labels []bool) *mat.VecDense {
	if len(labels) == 0 {
		return nil
	}
	v := mat.NewVecDense(len(labels), nil)
	for i, l := range labels {
		if l {
			v.SetVec(i, 1)
		}
	}
	return v
}
