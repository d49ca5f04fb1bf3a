// Package tensor provides the dense n-dimensional float64 arrays exchanged
// between ensemble graph nodes, along with the shape-aware arithmetic the
// merge and transform nodes are built on.
//
// A Dense is row-major and immutable by convention: the engine never mutates
// the data of a tensor it did not allocate, and reshaped tensors share their
// backing data with the original. Negative axis arguments count from the
// trailing dimension, so -1 always addresses the innermost axis.
package tensor

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Common errors.
var (
	// ErrShape is returned when a shape does not match the data it describes
	// or two operand shapes are incompatible.
	ErrShape = errors.New("tensor: incompatible shape")

	// ErrAxis is returned when an axis argument is out of range for the
	// operand's rank.
	ErrAxis = errors.New("tensor: axis out of range")
)

// Dense is a dense, row-major n-dimensional array of float64 values.
// A Dense with an empty shape is a scalar holding exactly one value.
type Dense struct {
	shape []int
	data  []float64
}

// New creates a tensor with the given shape backed by data. The product of
// the dimensions must equal len(data). The data slice is retained, not
// copied.
func New(data []float64, shape ...int) (*Dense, error) {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, dim)
		}
		n *= dim
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d values, got %d", ErrShape, shape, n, len(data))
	}
	return &Dense{shape: slices.Clone(shape), data: data}, nil
}

// Vector creates a 1-D tensor backed by data.
func Vector(data []float64) *Dense {
	return &Dense{shape: []int{len(data)}, data: data}
}

// Scalar creates a 0-D tensor holding v.
func Scalar(v float64) *Dense {
	return &Dense{shape: nil, data: []float64{v}}
}

// FromRows creates a 2-D tensor from a slice of equally sized rows.
func FromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return &Dense{shape: []int{0, 0}}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Dense{shape: []int{len(rows), cols}, data: data}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape ...int) *Dense {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return &Dense{shape: slices.Clone(shape), data: make([]float64, n)}
}

// Shape returns a copy of the tensor's dimensions.
func (d *Dense) Shape() []int {
	return slices.Clone(d.shape)
}

// Rank returns the number of dimensions.
func (d *Dense) Rank() int {
	return len(d.shape)
}

// Size returns the total number of elements.
func (d *Dense) Size() int {
	return len(d.data)
}

// Data returns the backing slice. It is shared, not copied; callers must
// treat it as read-only.
func (d *Dense) Data() []float64 {
	return d.data
}

// At returns the element at the given indices. It panics if the number of
// indices does not match the rank or an index is out of range.
func (d *Dense) At(indices ...int) float64 {
	if len(indices) != len(d.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(indices), len(d.shape)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= d.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d (size %d)", idx, i, d.shape[i]))
		}
		offset = offset*d.shape[i] + idx
	}
	return d.data[offset]
}

// Row returns the i-th row of a 2-D tensor as a shared slice. It panics if
// the tensor is not 2-D or i is out of range.
func (d *Dense) Row(i int) []float64 {
	if len(d.shape) != 2 {
		panic(fmt.Sprintf("tensor: Row on rank-%d tensor", len(d.shape)))
	}
	cols := d.shape[1]
	return d.data[i*cols : (i+1)*cols]
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	return &Dense{shape: slices.Clone(d.shape), data: slices.Clone(d.data)}
}

// Reshape returns a tensor with the same data and a new shape. At most one
// dimension may be -1, in which case it is inferred from the element count.
// The result shares its backing data with the receiver.
func (d *Dense) Reshape(shape ...int) (*Dense, error) {
	resolved := slices.Clone(shape)
	free := -1
	known := 1
	for i, dim := range resolved {
		switch {
		case dim == -1:
			if free >= 0 {
				return nil, fmt.Errorf("%w: more than one free dimension in %v", ErrShape, shape)
			}
			free = i
		case dim < 0:
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, dim)
		default:
			known *= dim
		}
	}
	if free >= 0 {
		if known == 0 || len(d.data)%known != 0 {
			return nil, fmt.Errorf("%w: cannot infer free dimension of %v from %d elements", ErrShape, shape, len(d.data))
		}
		resolved[free] = len(d.data) / known
		known *= resolved[free]
	}
	if known != len(d.data) {
		return nil, fmt.Errorf("%w: cannot reshape %d elements to %v", ErrShape, len(d.data), shape)
	}
	return &Dense{shape: resolved, data: d.data}, nil
}

// String renders the shape and, for small tensors, the values.
func (d *Dense) String() string {
	if len(d.data) <= 16 {
		return fmt.Sprintf("tensor%v%v", d.shape, d.data)
	}
	return fmt.Sprintf("tensor%v[%d values]", d.shape, len(d.data))
}

// normalizeAxis maps negative axes onto [0, rank) and range-checks.
func normalizeAxis(axis, rank int) (int, error) {
	a := axis
	if a < 0 {
		a += rank
	}
	if a < 0 || a >= rank {
		return 0, fmt.Errorf("%w: axis %d for rank %d", ErrAxis, axis, rank)
	}
	return a, nil
}

// Concat joins tensors along the given axis. All operands must share rank
// and every dimension except the concatenation axis.
func Concat(axis int, ts ...*Dense) (*Dense, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: concat of zero tensors", ErrShape)
	}
	rank := ts[0].Rank()
	a, err := normalizeAxis(axis, rank)
	if err != nil {
		return nil, err
	}
	outShape := ts[0].Shape()
	outShape[a] = 0
	for _, t := range ts {
		if t.Rank() != rank {
			return nil, fmt.Errorf("%w: concat of rank %d with rank %d", ErrShape, rank, t.Rank())
		}
		for i, dim := range t.shape {
			if i == a {
				continue
			}
			if dim != outShape[i] {
				return nil, fmt.Errorf("%w: concat axis %d mismatch on dimension %d: %v vs %v", ErrShape, axis, i, ts[0].shape, t.shape)
			}
		}
		outShape[a] += t.shape[a]
	}

	outer := 1
	for _, dim := range outShape[:a] {
		outer *= dim
	}
	inner := 1
	for _, dim := range outShape[a+1:] {
		inner *= dim
	}
	out := make([]float64, 0, outer*outShape[a]*inner)
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			block := t.shape[a] * inner
			out = append(out, t.data[o*block:(o+1)*block]...)
		}
	}
	return &Dense{shape: outShape, data: out}, nil
}

// Stack joins equally shaped tensors along a new leading axis.
func Stack(ts ...*Dense) (*Dense, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: stack of zero tensors", ErrShape)
	}
	for _, t := range ts {
		if !slices.Equal(t.shape, ts[0].shape) {
			return nil, fmt.Errorf("%w: stack of %v with %v", ErrShape, ts[0].shape, t.shape)
		}
	}
	data := make([]float64, 0, len(ts)*ts[0].Size())
	for _, t := range ts {
		data = append(data, t.data...)
	}
	shape := append([]int{len(ts)}, ts[0].shape...)
	return &Dense{shape: shape, data: data}, nil
}

// reduceAxis collapses the given axis with fn, which receives one lane of
// values at a time. The lane slice is reused between calls.
func reduceAxis(t *Dense, axis int, fn func(lane []float64) float64) (*Dense, error) {
	a, err := normalizeAxis(axis, t.Rank())
	if err != nil {
		return nil, err
	}
	n := t.shape[a]
	outer := 1
	for _, dim := range t.shape[:a] {
		outer *= dim
	}
	inner := 1
	for _, dim := range t.shape[a+1:] {
		inner *= dim
	}
	outShape := append(slices.Clone(t.shape[:a]), t.shape[a+1:]...)
	out := make([]float64, 0, outer*inner)
	lane := make([]float64, n)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			for k := 0; k < n; k++ {
				lane[k] = t.data[(o*n+k)*inner+i]
			}
			out = append(out, fn(lane))
		}
	}
	return &Dense{shape: outShape, data: out}, nil
}

// SumAxis sums along the given axis, removing it from the shape.
func SumAxis(t *Dense, axis int) (*Dense, error) {
	return reduceAxis(t, axis, floats.Sum)
}

// MeanAxis averages along the given axis, removing it from the shape.
func MeanAxis(t *Dense, axis int) (*Dense, error) {
	return reduceAxis(t, axis, func(lane []float64) float64 {
		return stat.Mean(lane, nil)
	})
}

// AverageAxis computes the weighted mean along the given axis. The weight
// vector must match the size of the reduced axis; nil weighs all values
// equally.
func AverageAxis(t *Dense, axis int, weights []float64) (*Dense, error) {
	if weights != nil {
		a, err := normalizeAxis(axis, t.Rank())
		if err != nil {
			return nil, err
		}
		if len(weights) != t.shape[a] {
			return nil, fmt.Errorf("%w: %d weights for axis of size %d", ErrShape, len(weights), t.shape[a])
		}
	}
	return reduceAxis(t, axis, func(lane []float64) float64 {
		return stat.Mean(lane, weights)
	})
}

// MedianAxis computes the median along the given axis, interpolating halfway
// between the two central values when the axis has even size.
func MedianAxis(t *Dense, axis int) (*Dense, error) {
	var sorted []float64
	return reduceAxis(t, axis, func(lane []float64) float64 {
		sorted = append(sorted[:0], lane...)
		slices.Sort(sorted)
		n := len(sorted)
		if n%2 == 1 {
			return sorted[n/2]
		}
		return (sorted[n/2-1] + sorted[n/2]) / 2
	})
}

// MatMul computes the matrix product of two 2-D tensors.
func MatMul(a, b *Dense) (*Dense, error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("%w: matmul of rank %d with rank %d", ErrShape, a.Rank(), b.Rank())
	}
	if a.shape[1] != b.shape[0] {
		return nil, fmt.Errorf("%w: matmul %v with %v", ErrShape, a.shape, b.shape)
	}
	am := mat.NewDense(a.shape[0], a.shape[1], a.data)
	bm := mat.NewDense(b.shape[0], b.shape[1], b.data)
	var cm mat.Dense
	cm.Mul(am, bm)
	raw := cm.RawMatrix()
	return &Dense{shape: []int{raw.Rows, raw.Cols}, data: raw.Data}, nil
}

// Contract computes the tensor contraction of a with b over the trailing
// `axes` dimensions of a and the leading `axes` dimensions of b, which must
// match pairwise. With two 2-D operands and axes=1 this is the matrix
// product; contracting all axes of both operands yields a scalar.
func Contract(a, b *Dense, axes int) (*Dense, error) {
	if axes < 0 || axes > a.Rank() || axes > b.Rank() {
		return nil, fmt.Errorf("%w: contracting %d axes of ranks %d and %d", ErrAxis, axes, a.Rank(), b.Rank())
	}
	split := a.Rank() - axes
	contracted := a.shape[split:]
	if !slices.Equal(contracted, b.shape[:axes]) {
		return nil, fmt.Errorf("%w: contract %v with %v over %d axes", ErrShape, a.shape, b.shape, axes)
	}
	m, k, n := 1, 1, 1
	for _, dim := range a.shape[:split] {
		m *= dim
	}
	for _, dim := range contracted {
		k *= dim
	}
	for _, dim := range b.shape[axes:] {
		n *= dim
	}
	prod, err := MatMul(
		&Dense{shape: []int{m, k}, data: a.data},
		&Dense{shape: []int{k, n}, data: b.data},
	)
	if err != nil {
		return nil, err
	}
	shape := append(slices.Clone(a.shape[:split]), b.shape[axes:]...)
	return &Dense{shape: shape, data: prod.data}, nil
}
