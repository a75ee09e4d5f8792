package model

import (
	"sync"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// StateManager records whether an estimator held by composition has been
// fitted and on how many columns. Estimators persist the fields they need
// themselves, so the manager is rebuilt with MarkFitted after decoding.
type StateManager struct {
	mu        sync.RWMutex
	fitted    bool
	nFeatures int
}

// NewStateManager returns an unfitted manager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// MarkFitted records a completed fit on nFeatures columns.
func (s *StateManager) MarkFitted(nFeatures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
}

// IsFitted reports whether MarkFitted has been called.
func (s *StateManager) IsFitted() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// Check returns a NotFittedError before the first fit and a DimensionError
// when nFeatures differs from the training width. estimator and method
// name the caller in both errors.
func (s *StateManager) Check(estimator, method string, nFeatures int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return errors.NewNotFittedError(estimator, method)
	}
	if nFeatures != s.nFeatures {
		return errors.NewDimensionError(estimator+"."+method, s.nFeatures, nFeatures, 1)
	}
	return nil
}
