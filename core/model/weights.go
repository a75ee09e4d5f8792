package model

import (
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// ModelWeights はモデルの重みを表す構造体（inspect 出力用）
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegression 等）
	ModelType string `json:"model_type"`

	// Coefficients は重み係数。Features と同じ順序
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// WeightExporter is implemented by estimators whose fitted state can be
// summarised as a coefficient vector.
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if !mw.IsFitted && len(mw.Coefficients) > 0 {
		return errors.NewValidationError("coefficients", "unfitted model should not have coefficients", len(mw.Coefficients))
	}
	if mw.IsFitted && len(mw.Coefficients) == 0 {
		return errors.NewValidationError("coefficients", "fitted model must have coefficients", 0)
	}
	if len(mw.Features) > 0 && len(mw.Features) != len(mw.Coefficients) {
		return errors.NewDimensionError("ModelWeights.Validate", len(mw.Coefficients), len(mw.Features), 1)
	}
	return nil
}

// Top returns the n (feature, coefficient) pairs with the largest absolute
// coefficient, as contributions. n <= 0 returns all of them.
func (mw *ModelWeights) Top(n int) []Contribution {
	out := make([]Contribution, len(mw.Coefficients))
	for i, c := range mw.Coefficients {
		name := ""
		if i < len(mw.Features) {
			name = mw.Features[i]
		}
		out[i] = Contribution{Feature: name, Weight: c}
	}
	SortContributions(out)
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
