package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "churnscope: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "churnscope: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Transform", 3, 2, 1)

	want := "churnscope: Transform: dimension mismatch on axis 1 (features). Expected 3, got 2"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("CategoricalEncoder", "Transform")

	want := "churnscope: CategoricalEncoder: this model is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

// 仕様で定義された5種類のエラーがすべて型として判定できることを確認
func TestTaxonomyErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		check   func(error) bool
	}{
		{
			name:    "schema",
			err:     NewSchemaError("CategoricalEncoder.Fit", "gender", "tenure"),
			wantMsg: "churnscope: CategoricalEncoder.Fit: missing column(s) gender, tenure",
			check: func(err error) bool {
				var e *SchemaError
				return As(err, &e) && len(e.Columns) == 2
			},
		},
		{
			name:    "configuration",
			err:     NewConfigurationError("schema", "must contain at least one column"),
			wantMsg: "churnscope: invalid configuration 'schema': must contain at least one column",
			check: func(err error) bool {
				var e *ConfigurationError
				return As(err, &e) && e.Field == "schema"
			},
		},
		{
			name:    "unseen category",
			err:     NewUnseenCategoryError("gender", "NonBinary", 0),
			wantMsg: `churnscope: unseen category "NonBinary" in column 'gender' (row 0)`,
			check: func(err error) bool {
				var e *UnseenCategoryError
				return As(err, &e) && e.Value == "NonBinary"
			},
		},
		{
			name:    "validation",
			err:     NewValidationError("labels", "row count must match data", 99),
			wantMsg: "churnscope: validation failed for parameter 'labels': row count must match data (got: 99)",
			check: func(err error) bool {
				var e *ValidationError
				return As(err, &e) && e.ParamName == "labels"
			},
		},
		{
			name:    "not found component",
			err:     NewNotFoundError("churn-v1", "explainer", "checksum mismatch"),
			wantMsg: "churnscope: component 'explainer' of model 'churn-v1' not found: checksum mismatch",
			check: func(err error) bool {
				var e *NotFoundError
				return As(err, &e) && e.Component == "explainer"
			},
		},
		{
			name:    "not found model",
			err:     NewNotFoundError("churn-v1", "", "no manifest"),
			wantMsg: "churnscope: model 'churn-v1' not found: no manifest",
			check: func(err error) bool {
				var e *NotFoundError
				return As(err, &e) && e.Model == "churn-v1"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
			if !tt.check(tt.err) {
				t.Errorf("type check failed for %T", tt.err)
			}
			// ラップしても型判定が維持されること
			if !tt.check(Wrap(tt.err, "outer")) {
				t.Error("type check should survive wrapping")
			}
		})
	}
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("CategoricalEncoder.Transform", `column 'tenure': cannot parse "abc" as number`)

	want := `churnscope: CategoricalEncoder.Transform: column 'tenure': cannot parse "abc" as number`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValueError")
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("LogisticRegression", 100, "gradient norm 0.01")

	want := "LogisticRegression failed to converge after 100 iterations: gradient norm 0.01"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewUndefinedMetricWarning("auc", "only one class present", 0.5))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "'auc' is ill-defined") {
		t.Errorf("unexpected warning text: %v", got[0])
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "Fit", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Fit: expected 10 rows, got 0") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestNumericalHelpers(t *testing.T) {
	if err := CheckNumericalStability("loss", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckNumericalStability("LogisticRegression.gradient", []float64{0.1, 1.0 / zero()}, 7)
	var ni *NumericalInstabilityError
	if !As(err, &ni) || ni.Iteration != 7 {
		t.Errorf("expected instability error at iteration 7, got %v", err)
	}
	if got := Clip(1.7, -1, 1); got != 1 {
		t.Errorf("Clip = %v, want 1", got)
	}
	if got := Clip(-0.2, 1e-15, 1); got != 1e-15 {
		t.Errorf("Clip = %v, want 1e-15", got)
	}
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(-1000); got != 0 {
		t.Errorf("Sigmoid(-1000) = %v, want 0", got)
	}
	if got := Sigmoid(1000); got != 1 {
		t.Errorf("Sigmoid(1000) = %v, want 1", got)
	}
}

func zero() float64 { return 0 }
