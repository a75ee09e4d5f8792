package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/core/parallel"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// Scaler は one-hot 展開後の行列を列ごとにアフィン変換する。
// pipeline.Options.Scaler の名前で選ぶ
type Scaler interface {
	model.Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// NewScaler returns the scaler named by kind: "standard" (also the empty
// string), "minmax" or "none".
func NewScaler(kind string) (Scaler, error) {
	switch kind {
	case "", "standard":
		return NewStandardScaler(true, true), nil
	case "minmax":
		return NewMinMaxScaler([2]float64{0, 1}), nil
	case "none":
		return NewStandardScaler(false, false), nil
	}
	return nil, errors.NewConfigurationError("training.scaler", fmt.Sprintf("unknown scaler %q", kind))
}

// 分散・幅がこれ未満の列は定数列として扱う
const constantColumnTol = 1e-8

// trainingColumns copies X column by column for the Fit statistics.
func trainingColumns(op string, X mat.Matrix) ([][]float64, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols, nil
}

// mapCells applies f to every cell of X, splitting rows across goroutines
// for large batches.
func mapCells(estimator, method string, fitted bool, width int, X mat.Matrix, f func(j int, v float64) float64) (mat.Matrix, error) {
	if !fitted {
		return nil, errors.NewNotFittedError(estimator, method)
	}
	r, c := X.Dims()
	if c != width {
		return nil, errors.NewDimensionError(estimator+"."+method, width, c, 1)
	}
	out := mat.NewDense(r, c, nil)
	parallel.Parallelize(r, parallel.DefaultRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			row := out.RawRowView(i)
			for j := range row {
				row[j] = f(j, X.At(i, j))
			}
		}
	})
	return out, nil
}

// StandardScaler centres each column on its mean and divides by the
// population standard deviation. Constant columns keep a scale of 1.
// Exported fields are what gob stores inside a saved pipeline.
type StandardScaler struct {
	model.BaseEstimator

	Mean      []float64 // all zero when WithMean is false
	Scale     []float64 // all one when WithStd is false
	NFeatures int

	WithMean bool
	WithStd  bool
}

// NewStandardScaler returns an unfitted scaler. With both flags false it is
// the identity, which is how the "none" scaler is built.
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// Fit は列ごとの平均と標準偏差を記録する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	cols, err := trainingColumns("StandardScaler.Fit", X)
	if err != nil {
		return err
	}
	s.NFeatures = len(cols)
	s.Mean = make([]float64, len(cols))
	s.Scale = make([]float64, len(cols))
	for j, col := range cols {
		mean, variance := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if sd := math.Sqrt(variance); s.WithStd && sd >= constantColumnTol {
			s.Scale[j] = sd
		}
	}
	s.SetFitted()
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return mapCells("StandardScaler", "Transform", s.IsFitted(), s.NFeatures, X, func(j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps scaled values back to the training units.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return mapCells("StandardScaler", "InverseTransform", s.IsFitted(), s.NFeatures, X, func(j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

// MinMaxScaler maps each column's training range onto FeatureRange.
// Values outside the training range are not clipped.
type MinMaxScaler struct {
	model.BaseEstimator

	DataMin   []float64
	Scale     []float64 // max - min, 1 for constant columns
	NFeatures int

	FeatureRange [2]float64
}

// NewMinMaxScaler returns an unfitted scaler targeting featureRange.
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: featureRange}
}

// Fit は列ごとの最小値と幅を記録する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	if m.FeatureRange[1] <= m.FeatureRange[0] {
		return errors.NewValidationError("feature_range", "max must be greater than min", m.FeatureRange)
	}
	cols, err := trainingColumns("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}
	m.NFeatures = len(cols)
	m.DataMin = make([]float64, len(cols))
	m.Scale = make([]float64, len(cols))
	for j, col := range cols {
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		m.DataMin[j] = lo
		m.Scale[j] = 1
		if hi-lo >= constantColumnTol {
			m.Scale[j] = hi - lo
		}
	}
	m.SetFitted()
	return nil
}

func (m *MinMaxScaler) width() float64 {
	return m.FeatureRange[1] - m.FeatureRange[0]
}

func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	w := m.width()
	return mapCells("MinMaxScaler", "Transform", m.IsFitted(), m.NFeatures, X, func(j int, v float64) float64 {
		return (v-m.DataMin[j])/m.Scale[j]*w + m.FeatureRange[0]
	})
}

func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform maps values in FeatureRange back to the training units.
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	w := m.width()
	return mapCells("MinMaxScaler", "InverseTransform", m.IsFitted(), m.NFeatures, X, func(j int, v float64) float64 {
		return (v-m.FeatureRange[0])/w*m.Scale[j] + m.DataMin[j]
	})
}
