// Package model defines the contracts shared by the encoder, the trained
// pipeline and the local explainer, plus helpers for persisting them.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Pipeline is a trained encode→scale→classify chain seen as an opaque
// probability function. It consumes the integer-coded matrix produced by
// the categorical encoder; the positive class is churn.
type Pipeline interface {
	// Predict returns the churn label of each row.
	Predict(X mat.Matrix) ([]bool, error)

	// PredictProba returns an n × 2 matrix: column 0 is P(no churn),
	// column 1 is P(churn).
	PredictProba(X mat.Matrix) (*mat.Dense, error)

	// Score returns the mean accuracy on X against labels.
	Score(X mat.Matrix, labels []bool) (float64, error)
}

// ProbaFunc maps a coded matrix to class probabilities, the shape returned by
// Pipeline.PredictProba.
type ProbaFunc func(X mat.Matrix) (*mat.Dense, error)

// Contribution is one entry of a local explanation. Weight lies in [-1, 1];
// positive values push the prediction towards churn.
type Contribution struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Explainer produces local explanations for single coded rows. It is built
// once against the training distribution and reused per instance.
type Explainer interface {
	// ExplainInstance returns contributions ordered by decreasing |Weight|.
	// numFeatures <= 0 returns every feature.
	ExplainInstance(x []float64, fn ProbaFunc, numFeatures int) ([]Contribution, error)
}
