package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// OneHotEncoder は整数コード列を指示変数列に展開する。数値列はそのまま通す。
//
// 入力は CategoricalEncoder の出力行列。Categories[j] > 0 の列 j は
// Categories[j] 個の 0/1 列に、0 の列は1列のまま出力される。
type OneHotEncoder struct {
	model.BaseEstimator

	// Categories は入力列ごとのクラス数（数値列は 0）
	Categories []int

	// Offsets は入力列 j が出力行列で始まる列位置
	Offsets []int

	NOutputs int
}

// NewOneHotEncoder はカテゴリ列の位置とクラス数から OneHotEncoder を作成する。
// categories[j] は入力列 j のクラス数、数値列なら 0
func NewOneHotEncoder(categories []int) *OneHotEncoder {
	c := make([]int, len(categories))
	copy(c, categories)
	return &OneHotEncoder{Categories: c}
}

// Fit は出力レイアウトを確定する。X は列数の検証にのみ使う
func (o *OneHotEncoder) Fit(X mat.Matrix) error {
	_, c := X.Dims()
	if c != len(o.Categories) {
		return errors.NewDimensionError("OneHotEncoder.Fit", len(o.Categories), c, 1)
	}
	o.Offsets = make([]int, c)
	off := 0
	for j, k := range o.Categories {
		if k < 0 {
			return errors.NewValidationError("categories", "class count must be >= 0", k)
		}
		o.Offsets[j] = off
		if k == 0 {
			off++
		} else {
			off += k
		}
	}
	o.NOutputs = off
	o.SetFitted()
	return nil
}

// Transform はコード行列を展開する。範囲外のコードは ValueError
func (o *OneHotEncoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !o.IsFitted() {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	r, c := X.Dims()
	if c != len(o.Categories) {
		return nil, errors.NewDimensionError("OneHotEncoder.Transform", len(o.Categories), c, 1)
	}

	out := mat.NewDense(r, o.NOutputs, nil)
	err := parallel.Rows(r, parallel.DefaultRowThreshold, func(start, end int) error {
		for i := start; i < end; i++ {
			row := out.RawRowView(i)
			for j, k := range o.Categories {
				v := X.At(i, j)
				if k == 0 {
					row[o.Offsets[j]] = v
					continue
				}
				code := int(v)
				if v != math.Trunc(v) || code < 0 || code >= k {
					return errors.NewValueError("OneHotEncoder.Transform",
						fmt.Sprintf("row %d column %d: code %v outside [0, %d)", i, j, v, k))
				}
				row[o.Offsets[j]+code] = 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FitTransform は Fit と Transform を順に実行する
func (o *OneHotEncoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := o.Fit(X); err != nil {
		return nil, err
	}
	return o.Transform(X)
}

// OutputNames は展開後の列名を返す。カテゴリ列は "column=class"
func (o *OneHotEncoder) OutputNames(features []string, classes map[int][]string) []string {
	names := make([]string, 0, o.NOutputs)
	for j, k := range o.Categories {
		if k == 0 {
			names = append(names, features[j])
			continue
		}
		for c := 0; c < k; c++ {
			label := fmt.Sprint(c)
			if cls, ok := classes[j]; ok && c < len(cls) {
				label = cls[c]
			}
			names = append(names, features[j]+"="+label)
		}
	}
	return names
}
