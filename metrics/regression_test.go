package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		weights []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred: mat.NewVecDense(3, []float64{1, 2, 3}),
			want:  0,
		},
		{
			name:  "uniform weights",
			yTrue: mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			yPred: mat.NewVecDense(4, []float64{2, 2, 3, 2}),
			want:  1.25, // (1 + 0 + 0 + 4) / 4
		},
		{
			name:    "weighted",
			yTrue:   mat.NewVecDense(2, []float64{0, 0}),
			yPred:   mat.NewVecDense(2, []float64{1, 3}),
			weights: []float64{3, 1},
			want:    3, // (3*1 + 1*9) / 4
		},
		{
			name:    "weight length mismatch",
			yTrue:   mat.NewVecDense(2, []float64{0, 0}),
			yPred:   mat.NewVecDense(2, []float64{1, 3}),
			weights: []float64{1},
			wantErr: true,
		},
		{
			name:    "zero weights",
			yTrue:   mat.NewVecDense(2, []float64{0, 0}),
			yPred:   mat.NewVecDense(2, []float64{1, 3}),
			weights: []float64{0, 0},
			wantErr: true,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred:   mat.NewVecDense(2, []float64{1, 2}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred, tt.weights)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MSE() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("MSE() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     *mat.VecDense
		yPred     *mat.VecDense
		weights   []float64
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{
			name:      "perfect prediction",
			yTrue:     mat.NewVecDense(5, []float64{1.0, 2.0, 3.0, 4.0, 5.0}),
			yPred:     mat.NewVecDense(5, []float64{1.0, 2.0, 3.0, 4.0, 5.0}),
			want:      1.0,
			tolerance: 1e-10,
		},
		{
			name:    "no variance in yTrue",
			yTrue:   mat.NewVecDense(5, []float64{3.0, 3.0, 3.0, 3.0, 3.0}),
			yPred:   mat.NewVecDense(5, []float64{2.0, 3.0, 4.0, 3.0, 3.0}),
			wantErr: true,
		},
		{
			name:      "worse than mean baseline",
			yTrue:     mat.NewVecDense(4, []float64{1.0, 2.0, 3.0, 4.0}),
			yPred:     mat.NewVecDense(4, []float64{4.0, 3.0, 2.0, 1.0}),
			want:      -3.0,
			tolerance: 0.01,
		},
		{
			// zero weight on the badly predicted sample leaves a perfect fit
			name:      "weights mask residuals",
			yTrue:     mat.NewVecDense(4, []float64{1, 2, 3, 10}),
			yPred:     mat.NewVecDense(4, []float64{1, 2, 3, 0}),
			weights:   []float64{1, 1, 1, 0},
			want:      1.0,
			tolerance: 1e-10,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1.0, 2.0, 3.0}),
			yPred:   mat.NewVecDense(2, []float64{1.0, 2.0}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(tt.yTrue, tt.yPred, tt.weights)
			if (err != nil) != tt.wantErr {
				t.Fatalf("R2Score() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("R2Score() = %v, want %v", got, tt.want)
			}
		})
	}
}
