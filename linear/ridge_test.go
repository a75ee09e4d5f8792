package linear

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

func TestRidge_RecoversLinearFunction(t *testing.T) {
	// y = 2*x1 - 3*x2 + 1
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
		2, 1,
		1, 2,
	})
	y := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		y.Set(i, 0, 2*X.At(i, 0)-3*X.At(i, 1)+1)
	}

	r := NewRidge(WithAlpha(1e-9))
	if err := r.Fit(X, y, nil); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	w := r.GetWeights()
	if math.Abs(w[0]-2) > 1e-6 || math.Abs(w[1]+3) > 1e-6 || math.Abs(r.Intercept-1) > 1e-6 {
		t.Errorf("got w=%v b=%v, want [2 -3] 1", w, r.Intercept)
	}

	score, err := r.Score(X, y, nil)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("Score() = %v, want 1", score)
	}
}

func TestRidge_PenaltyShrinks(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 1, 2, 3})

	small := NewRidge(WithAlpha(0.01))
	large := NewRidge(WithAlpha(100))
	if err := small.Fit(X, y, nil); err != nil {
		t.Fatal(err)
	}
	if err := large.Fit(X, y, nil); err != nil {
		t.Fatal(err)
	}
	if math.Abs(large.GetWeights()[0]) >= math.Abs(small.GetWeights()[0]) {
		t.Errorf("alpha=100 weight %v should be smaller than alpha=0.01 weight %v",
			large.GetWeights()[0], small.GetWeights()[0])
	}
}

func TestRidge_SampleWeights(t *testing.T) {
	// the last point is an outlier; zero weight removes its influence
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 1, 2, 30})

	r := NewRidge(WithAlpha(1e-9))
	if err := r.Fit(X, y, []float64{1, 1, 1, 0}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if math.Abs(r.GetWeights()[0]-1) > 1e-6 || math.Abs(r.Intercept) > 1e-6 {
		t.Errorf("got w=%v b=%v, want 1 0", r.GetWeights(), r.Intercept)
	}
}

func TestRidge_Errors(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	r := NewRidge()
	if _, err := r.Predict(X); err == nil {
		t.Error("expected NotFittedError")
	}
	if err := r.Fit(X, mat.NewDense(3, 1, nil), nil); err == nil {
		t.Error("expected dimension error")
	}
	if err := r.Fit(X, y, []float64{1}); err == nil {
		t.Error("expected weight length error")
	}
	var ve *errors.ValidationError
	if err := NewRidge(WithAlpha(-1)).Fit(X, y, nil); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if err := r.Fit(X, y, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Predict(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected dimension error on predict")
	}
}
