package script_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/script"
	"github.com/ensemblekit/ensemble/tensor"
)

func TestCombinerMean(t *testing.T) {
	combine, err := script.Combiner(`
function combine(inputs)
    local out = {}
    for i, v in ipairs(inputs[1].data) do
        out[i] = (v + inputs[2].data[i]) / 2
    end
    return { shape = inputs[1].shape, data = out }
end
`)
	if err != nil {
		t.Fatalf("Combiner: %v", err)
	}

	got, err := combine([]*tensor.Dense{
		tensor.Vector([]float64{1, 2, 3}),
		tensor.Vector([]float64{3, 4, 5}),
	})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if !slices.Equal(got.Shape(), []int{3}) {
		t.Errorf("shape = %v, want [3]", got.Shape())
	}
	if !slices.Equal(got.Data(), []float64{2, 3, 4}) {
		t.Errorf("data = %v, want [2 3 4]", got.Data())
	}
}

func TestCombinerFlatResult(t *testing.T) {
	combine, err := script.Combiner(`
function combine(inputs)
    return { #inputs, inputs[1].shape[1] }
end
`)
	if err != nil {
		t.Fatalf("Combiner: %v", err)
	}
	got, err := combine([]*tensor.Dense{
		tensor.Vector([]float64{9, 9}),
		tensor.Vector([]float64{9, 9}),
	})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if !slices.Equal(got.Data(), []float64{2, 2}) {
		t.Errorf("data = %v, want [2 2]", got.Data())
	}
}

func TestCombinerShapedResult(t *testing.T) {
	combine, err := script.Combiner(`
function combine(inputs)
    local out = {}
    for i, v in ipairs(inputs[1].data) do
        out[i] = v
    end
    return { shape = {2, 2}, data = out }
end
`)
	if err != nil {
		t.Fatalf("Combiner: %v", err)
	}
	got, err := combine([]*tensor.Dense{
		tensor.Vector([]float64{1, 2, 3, 4}),
		tensor.Vector([]float64{0, 0, 0, 0}),
	})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if !slices.Equal(got.Shape(), []int{2, 2}) {
		t.Errorf("shape = %v, want [2 2]", got.Shape())
	}
}

func TestCombinerErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{
			name:    "syntax error",
			source:  `function combine(`,
			wantErr: nil, // any error
		},
		{
			name:    "no combine function",
			source:  `x = 1`,
			wantErr: script.ErrNoCombine,
		},
		{
			name:    "combine is not a function",
			source:  `combine = 42`,
			wantErr: script.ErrNoCombine,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Combiner(tt.source)
			if err == nil {
				t.Fatal("Combiner succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCombinerRuntimeError(t *testing.T) {
	combine, err := script.Combiner(`
function combine(inputs)
    error("boom")
end
`)
	if err != nil {
		t.Fatalf("Combiner: %v", err)
	}
	if _, err := combine([]*tensor.Dense{tensor.Vector([]float64{1}), tensor.Vector([]float64{2})}); err == nil {
		t.Error("combine succeeded, want error")
	}
}

func TestCombinerSandbox(t *testing.T) {
	// File and chunk loading are stripped from the sandbox.
	for _, fn := range []string{"dofile", "loadfile", "load", "require"} {
		combine, err := script.Combiner(`
function combine(inputs)
    if ` + fn + ` == nil then
        return { 1 }
    end
    return { 0 }
end
`)
		if err != nil {
			t.Fatalf("Combiner: %v", err)
		}
		got, err := combine([]*tensor.Dense{tensor.Vector([]float64{1}), tensor.Vector([]float64{2})})
		if err != nil {
			t.Fatalf("combine: %v", err)
		}
		if got.Data()[0] != 1 {
			t.Errorf("%s is reachable from the sandbox", fn)
		}
	}
}

func TestCombinerInGraph(t *testing.T) {
	combine, err := script.Combiner(`
function combine(inputs)
    local out = {}
    for i, v in ipairs(inputs[1].data) do
        out[i] = v - inputs[2].data[i]
    end
    return { shape = inputs[1].shape, data = out }
end
`)
	if err != nil {
		t.Fatalf("Combiner: %v", err)
	}

	a := ensemble.NewSource()
	b := ensemble.NewSource()
	diff, err := ensemble.NewMerge(combine, a, b)
	if err != nil {
		t.Fatalf("NewMerge: %v", err)
	}
	g, err := ensemble.New([]*ensemble.Source{a, b}, []ensemble.Node{diff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := g.Predict(context.Background(), []*tensor.Dense{
		tensor.Vector([]float64{5, 7}),
		tensor.Vector([]float64{1, 2}),
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !slices.Equal(out[0].Data(), []float64{4, 5}) {
		t.Errorf("difference = %v, want [4 5]", out[0].Data())
	}
}
