package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/tensor"
)

// LeastSquares is an ordinary least squares regressor with an intercept
// term, solved by QR factorization. Fit returns a freshly fitted instance
// and leaves the receiver untouched, exercising the adopt-the-return-value
// path of the Predictor contract.
type LeastSquares struct {
	coef      []float64
	intercept float64
}

// NewLeastSquares creates an unfitted least squares regressor.
func NewLeastSquares() *LeastSquares {
	return &LeastSquares{}
}

// Fit solves min ||[X 1]w - y|| and returns the fitted regressor.
func (m *LeastSquares) Fit(x, y *tensor.Dense) (ensemble.Predictor, error) {
	xm, err := features(x)
	if err != nil {
		return nil, err
	}
	yv, err := targets(y)
	if err != nil {
		return nil, err
	}
	shape := xm.Shape()
	rows, cols := shape[0], shape[1]
	if rows != len(yv) {
		return nil, fmt.Errorf("model: %d samples with %d targets", rows, len(yv))
	}
	if rows < cols+1 {
		return nil, fmt.Errorf("model: %d samples cannot determine %d coefficients", rows, cols+1)
	}

	// Design matrix with a trailing column of ones for the intercept.
	a := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		row := xm.Row(i)
		for j, v := range row {
			a.Set(i, j, v)
		}
		a.Set(i, cols, 1)
	}
	b := mat.NewVecDense(rows, yv)

	var w mat.VecDense
	if err := w.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("model: least squares solve: %w", err)
	}

	fitted := &LeastSquares{
		coef:      make([]float64, cols),
		intercept: w.AtVec(cols),
	}
	for j := 0; j < cols; j++ {
		fitted.coef[j] = w.AtVec(j)
	}
	return fitted, nil
}

// Predict returns the fitted linear response for each row of x as a
// 1-D tensor.
func (m *LeastSquares) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}
	xm, err := features(x)
	if err != nil {
		return nil, err
	}
	shape := xm.Shape()
	rows, cols := shape[0], shape[1]
	if cols != len(m.coef) {
		return nil, fmt.Errorf("model: %d features, fitted with %d", cols, len(m.coef))
	}
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := xm.Row(i)
		sum := m.intercept
		for j, v := range row {
			sum += v * m.coef[j]
		}
		out[i] = sum
	}
	return tensor.Vector(out), nil
}

// Coefficients returns the fitted feature weights.
func (m *LeastSquares) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}

// Intercept returns the fitted intercept term.
func (m *LeastSquares) Intercept() float64 {
	return m.intercept
}
