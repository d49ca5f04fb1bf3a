package model_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/ensemblekit/ensemble/model"
	"github.com/ensemblekit/ensemble/tensor"
)

func mustRows(t *testing.T, rows [][]float64) *tensor.Dense {
	t.Helper()
	d, err := tensor.FromRows(rows)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return d
}

func TestLeastSquaresRecoversLine(t *testing.T) {
	// y = 2x + 1, exactly.
	x := tensor.Vector([]float64{0, 1, 2, 3, 4})
	y := tensor.Vector([]float64{1, 3, 5, 7, 9})

	unfitted := model.NewLeastSquares()
	fitted, err := unfitted.Fit(x, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	ls, ok := fitted.(*model.LeastSquares)
	if !ok {
		t.Fatalf("Fit returned %T, want *model.LeastSquares", fitted)
	}
	if math.Abs(ls.Coefficients()[0]-2) > 1e-9 {
		t.Errorf("slope = %v, want 2", ls.Coefficients()[0])
	}
	if math.Abs(ls.Intercept()-1) > 1e-9 {
		t.Errorf("intercept = %v, want 1", ls.Intercept())
	}

	out, err := fitted.Predict(tensor.Vector([]float64{5, 6}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := []float64{11, 13}
	for i, v := range out.Data() {
		if math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("prediction = %v, want %v", out.Data(), want)
		}
	}

	// Fit returns a fresh instance and leaves the receiver unfitted.
	if _, err := unfitted.Predict(x); !errors.Is(err, model.ErrNotFitted) {
		t.Errorf("original predictor after Fit: err = %v, want ErrNotFitted", err)
	}
}

func TestLeastSquaresMultipleFeatures(t *testing.T) {
	// y = x0 + 3*x1 - 2, exactly.
	x := mustRows(t, [][]float64{
		{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 1}, {2, 3},
	})
	y := tensor.Vector([]float64{-2, -1, 1, 2, 3, 9})

	fitted, err := model.NewLeastSquares().Fit(x, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	ls := fitted.(*model.LeastSquares)
	coef := ls.Coefficients()
	if math.Abs(coef[0]-1) > 1e-9 || math.Abs(coef[1]-3) > 1e-9 {
		t.Errorf("coefficients = %v, want [1 3]", coef)
	}
	if math.Abs(ls.Intercept()+2) > 1e-9 {
		t.Errorf("intercept = %v, want -2", ls.Intercept())
	}
}

func TestLeastSquaresErrors(t *testing.T) {
	tests := []struct {
		name string
		x    *tensor.Dense
		y    *tensor.Dense
	}{
		{
			name: "sample count mismatch",
			x:    tensor.Vector([]float64{1, 2, 3}),
			y:    tensor.Vector([]float64{1, 2}),
		},
		{
			name: "underdetermined",
			x:    tensor.Vector([]float64{1}),
			y:    tensor.Vector([]float64{1}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := model.NewLeastSquares().Fit(tt.x, tt.y); err == nil {
				t.Error("Fit succeeded, want error")
			}
		})
	}
}

func TestKNNPredict(t *testing.T) {
	// Two well separated clusters labelled 1 and 2.
	x := mustRows(t, [][]float64{
		{0, 0}, {0, 1}, {1, 0},
		{10, 10}, {10, 11}, {11, 10},
	})
	y := tensor.Vector([]float64{1, 1, 1, 2, 2, 2})

	knn := model.NewKNN(3)
	if _, err := knn.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := knn.Classes(); !slices.Equal(got, []float64{1, 2}) {
		t.Fatalf("Classes = %v, want [1 2]", got)
	}

	out, err := knn.Predict(mustRows(t, [][]float64{{0.5, 0.5}, {10.5, 10.5}}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !slices.Equal(out.Data(), []float64{1, 2}) {
		t.Errorf("predictions = %v, want [1 2]", out.Data())
	}
}

func TestKNNPredictProba(t *testing.T) {
	x := mustRows(t, [][]float64{
		{0}, {1}, {10},
	})
	y := tensor.Vector([]float64{1, 1, 2})

	knn := model.NewKNN(3)
	if _, err := knn.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := knn.PredictProba(mustRows(t, [][]float64{{0.5}}))
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if got := out.Shape(); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("shape = %v, want [1 2]", got)
	}
	want := []float64{2.0 / 3, 1.0 / 3}
	for i, v := range out.Row(0) {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("shares = %v, want %v", out.Row(0), want)
		}
	}
}

func TestKNNClampsK(t *testing.T) {
	x := tensor.Vector([]float64{0, 10})
	y := tensor.Vector([]float64{1, 2})

	knn := model.NewKNN(25)
	if _, err := knn.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	// k exceeds the training size, so every neighbour votes; the tie
	// resolves to the smallest label.
	out, err := knn.Predict(tensor.Vector([]float64{5}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !slices.Equal(out.Data(), []float64{1}) {
		t.Errorf("prediction = %v, want [1]", out.Data())
	}
}

func TestKNNNotFitted(t *testing.T) {
	if _, err := model.NewKNN(1).Predict(tensor.Vector([]float64{1})); !errors.Is(err, model.ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
}
