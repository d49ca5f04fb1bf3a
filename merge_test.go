package ensemble_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/tensor"
)

func TestNewMerge(t *testing.T) {
	a := ensemble.NewSource()
	b := ensemble.NewSource()

	tests := []struct {
		name    string
		combine ensemble.Combiner
		deps    []ensemble.Node
		wantErr error
	}{
		{name: "two dependencies", combine: ensemble.Mean(), deps: []ensemble.Node{a, b}},
		{name: "no combiner", combine: nil, deps: []ensemble.Node{a, b}, wantErr: ensemble.ErrNoCombiner},
		{name: "no dependencies", combine: ensemble.Mean(), wantErr: ensemble.ErrMergeArity},
		{name: "one dependency", combine: ensemble.Mean(), deps: []ensemble.Node{a}, wantErr: ensemble.ErrMergeArity},
		{name: "nil dependency", combine: ensemble.Mean(), deps: []ensemble.Node{a, nil}, wantErr: ensemble.ErrNotNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ensemble.NewMerge(tt.combine, tt.deps...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeFitsEveryDependency(t *testing.T) {
	src := ensemble.NewSource()
	first := &countingPredictor{}
	second := &countingPredictor{}
	join, err := ensemble.NewMerge(ensemble.Mean(),
		ensemble.NewModel(src, first),
		ensemble.NewModel(src, second))
	if err != nil {
		t.Fatalf("NewMerge: %v", err)
	}
	g, err := ensemble.NewSingle(src, join)
	if err != nil {
		t.Fatalf("NewSingle: %v", err)
	}

	if err := g.FitOne(context.Background(), vec(1, 2), vec(4, 6)); err != nil {
		t.Fatalf("FitOne: %v", err)
	}
	if first.fits != 1 || second.fits != 1 {
		t.Errorf("dependency fits = %d, %d, want 1, 1", first.fits, second.fits)
	}

	out, err := g.PredictOne(context.Background(), vec(1, 2))
	if err != nil {
		t.Fatalf("PredictOne: %v", err)
	}
	if !slices.Equal(out.Data(), []float64{5, 5}) {
		t.Errorf("mean of model outputs = %v, want [5 5]", out.Data())
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	a := ensemble.NewSource()
	b := ensemble.NewSource()
	join, err := ensemble.NewMerge(ensemble.Concat(0), a, b)
	if err != nil {
		t.Fatalf("NewMerge: %v", err)
	}
	g, err := ensemble.New([]*ensemble.Source{a, b}, []ensemble.Node{join})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := g.Predict(context.Background(), []*tensor.Dense{
		vec(1, 2, 3, 4),
		vec(5, 6, 7, 8),
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := out[0].Shape(); !slices.Equal(got, []int{8}) {
		t.Errorf("shape = %v, want [8]", got)
	}
	if !slices.Equal(out[0].Data(), []float64{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("concat = %v, want inputs joined in declared order", out[0].Data())
	}
}

func TestCombiners(t *testing.T) {
	matrix := func(data []float64, rows, cols int) *tensor.Dense {
		d, err := tensor.New(data, rows, cols)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return d
	}

	tests := []struct {
		name      string
		combine   ensemble.Combiner
		inputs    []*tensor.Dense
		wantShape []int
		want      []float64
	}{
		{
			name:      "sum",
			combine:   ensemble.Sum(),
			inputs:    []*tensor.Dense{vec(1, 2), vec(3, 4), vec(5, 6)},
			wantShape: []int{2},
			want:      []float64{9, 12},
		},
		{
			name:      "mean",
			combine:   ensemble.Mean(),
			inputs:    []*tensor.Dense{vec(1, 2), vec(3, 4), vec(5, 6)},
			wantShape: []int{2},
			want:      []float64{3, 4},
		},
		{
			name:      "median",
			combine:   ensemble.Median(),
			inputs:    []*tensor.Dense{vec(1, 9), vec(7, 2), vec(3, 5)},
			wantShape: []int{2},
			want:      []float64{3, 5},
		},
		{
			name:      "weighted average",
			combine:   ensemble.WeightedAverage([]float64{3, 1}),
			inputs:    []*tensor.Dense{vec(0, 4), vec(8, 8)},
			wantShape: []int{2},
			want:      []float64{2, 5},
		},
		{
			name:      "sum along trailing axis",
			combine:   ensemble.Sum(ensemble.Along(-1)),
			inputs:    []*tensor.Dense{vec(1, 2, 3), vec(4, 5, 6)},
			wantShape: []int{2},
			want:      []float64{6, 15},
		},
		{
			name:    "dot",
			combine: ensemble.Dot(),
			inputs: []*tensor.Dense{
				matrix([]float64{1, 2, 3, 4}, 2, 2),
				matrix([]float64{5, 6, 7, 8}, 2, 2),
			},
			wantShape: []int{2, 2},
			want:      []float64{19, 22, 43, 50},
		},
		{
			name:    "tensordot",
			combine: ensemble.TensorDot(2),
			inputs: []*tensor.Dense{
				matrix([]float64{1, 2, 3, 4}, 2, 2),
				matrix([]float64{5, 6, 7, 8}, 2, 2),
			},
			wantShape: []int{},
			want:      []float64{70},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.combine(tt.inputs)
			if err != nil {
				t.Fatalf("combine: %v", err)
			}
			if !slices.Equal(got.Shape(), tt.wantShape) {
				t.Fatalf("shape = %v, want %v", got.Shape(), tt.wantShape)
			}
			for i, v := range got.Data() {
				if math.Abs(v-tt.want[i]) > 1e-12 {
					t.Fatalf("result = %v, want %v", got.Data(), tt.want)
				}
			}
		})
	}
}

func TestCombinerShapeMismatch(t *testing.T) {
	if _, err := ensemble.Mean()([]*tensor.Dense{vec(1, 2), vec(1, 2, 3)}); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("mean of mismatched shapes: err = %v, want tensor.ErrShape", err)
	}
	if _, err := ensemble.WeightedAverage([]float64{1, 2, 3})([]*tensor.Dense{vec(1), vec(2)}); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("weighted average with wrong weight count: err = %v, want tensor.ErrShape", err)
	}
}
