package ensemble

import (
	"github.com/ensemblekit/ensemble/tensor"
)

// CombineOption configures the stacking combiners Sum, Mean, Median, and
// WeightedAverage.
type CombineOption func(*combineConfig)

type combineConfig struct {
	axis int
}

// Along sets the axis of the stacked inputs the reduction runs over. The
// inputs are stacked onto a new leading axis, so the default axis 0 reduces
// element-wise across the inputs, which is the usual way to blend
// predictions.
// Negative axes count from the trailing dimension.
func Along(axis int) CombineOption {
	return func(c *combineConfig) {
		c.axis = axis
	}
}

func applyCombineOptions(opts []CombineOption) combineConfig {
	var cfg combineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Concat returns a combiner concatenating the inputs along the given axis,
// preserving their declared order. Negative axes count from the trailing
// dimension, so Concat(-1) joins along the innermost (feature) axis.
func Concat(axis int) Combiner {
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		return tensor.Concat(axis, inputs...)
	}
}

// Sum returns a combiner adding the stacked inputs along the configured
// axis. By default each element of the result is the sum of the matching
// elements across all inputs.
func Sum(opts ...CombineOption) Combiner {
	cfg := applyCombineOptions(opts)
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		stacked, err := tensor.Stack(inputs...)
		if err != nil {
			return nil, err
		}
		return tensor.SumAxis(stacked, cfg.axis)
	}
}

// Mean returns a combiner averaging the stacked inputs along the configured
// axis. By default each element of the result is the arithmetic mean of the
// matching elements across all inputs.
func Mean(opts ...CombineOption) Combiner {
	cfg := applyCombineOptions(opts)
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		stacked, err := tensor.Stack(inputs...)
		if err != nil {
			return nil, err
		}
		return tensor.MeanAxis(stacked, cfg.axis)
	}
}

// Median returns a combiner taking the median of the stacked inputs along
// the configured axis.
func Median(opts ...CombineOption) Combiner {
	cfg := applyCombineOptions(opts)
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		stacked, err := tensor.Stack(inputs...)
		if err != nil {
			return nil, err
		}
		return tensor.MedianAxis(stacked, cfg.axis)
	}
}

// WeightedAverage returns a combiner computing the weighted mean of the
// stacked inputs along the configured axis. With the default axis the
// weight vector assigns one weight per input; nil weights fall back to
// equal weighting.
func WeightedAverage(weights []float64, opts ...CombineOption) Combiner {
	cfg := applyCombineOptions(opts)
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		stacked, err := tensor.Stack(inputs...)
		if err != nil {
			return nil, err
		}
		return tensor.AverageAxis(stacked, cfg.axis, weights)
	}
}

// Dot returns a combiner reducing the inputs left-to-right by matrix
// product. All inputs must be 2-D with pairwise compatible shapes.
func Dot() Combiner {
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		acc := inputs[0]
		for _, next := range inputs[1:] {
			var err error
			acc, err = tensor.MatMul(acc, next)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}
}

// TensorDot returns a combiner reducing the inputs left-to-right by tensor
// contraction over the given number of axes: the trailing axes of the
// accumulated result are contracted with the leading axes of the next
// input.
func TensorDot(axes int) Combiner {
	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		acc := inputs[0]
		for _, next := range inputs[1:] {
			var err error
			acc, err = tensor.Contract(acc, next, axes)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}
}
