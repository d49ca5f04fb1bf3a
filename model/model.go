// Package model provides ready-made predictors satisfying the ensemble
// Predictor contract, so graphs can be fitted end-to-end without external
// model implementations. The predictors deliberately mirror the familiar
// fit/predict surface of scikit-learn style estimators.
package model

import (
	"errors"
	"fmt"

	"github.com/ensemblekit/ensemble/tensor"
)

// ErrNotFitted is returned when Predict is called before Fit.
var ErrNotFitted = errors.New("model: predictor is not fitted")

// features coerces a 1-D or 2-D tensor into row-matrix form. A vector is
// treated as a single-feature column.
func features(x *tensor.Dense) (*tensor.Dense, error) {
	switch x.Rank() {
	case 2:
		return x, nil
	case 1:
		return x.Reshape(-1, 1)
	default:
		return nil, fmt.Errorf("model: rank-%d features, want 1 or 2", x.Rank())
	}
}

// targets coerces a 1-D tensor or a single-column matrix into a flat
// target vector.
func targets(y *tensor.Dense) ([]float64, error) {
	switch {
	case y.Rank() == 1:
		return y.Data(), nil
	case y.Rank() == 2 && y.Shape()[1] == 1:
		return y.Data(), nil
	default:
		return nil, fmt.Errorf("model: target shape %v, want a vector", y.Shape())
	}
}
