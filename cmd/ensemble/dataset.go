package main

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/ensemblekit/ensemble/tensor"
)

// loadDataset parses a JSON document and extracts its feature and label
// tensors with the configured JSONPath expressions. Features may be a
// single matrix or, for multi-input graphs, a list of matrices; labels may
// be a single vector or a list of vectors. Labels are optional: a dataset
// without a match at the labels path returns nil labels.
func loadDataset(path, featuresPath, labelsPath string) (features, labels []*tensor.Dense, err error) {
	data, err := os.ReadFile(path) // #nosec G304 - datasets are user-supplied paths
	if err != nil {
		return nil, nil, err
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	rawFeatures, err := extract(doc, featuresPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	features, err = toTensors(rawFeatures)
	if err != nil {
		return nil, nil, fmt.Errorf("%s features: %w", path, err)
	}

	if rawLabels, lerr := extract(doc, labelsPath); lerr == nil {
		labels, err = toTensors(rawLabels)
		if err != nil {
			return nil, nil, fmt.Errorf("%s labels: %w", path, err)
		}
	}
	return features, labels, nil
}

// extract evaluates a JSONPath expression and returns its first match.
func extract(doc any, pathStr string) (any, error) {
	expr, err := jp.ParseString(pathStr)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", pathStr, err)
	}
	got := expr.Get(doc)
	if len(got) == 0 {
		return nil, fmt.Errorf("no match for path %q", pathStr)
	}
	return got[0], nil
}

// toTensors converts a parsed JSON value into tensors: a flat numeric
// array becomes one vector, an array of numeric rows becomes one matrix,
// and an array of matrices becomes one tensor per matrix.
func toTensors(v any) ([]*tensor.Dense, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("expected a non-empty array, got %T", v)
	}

	if _, ok := toFloat(arr[0]); ok {
		vec, err := toVector(arr)
		if err != nil {
			return nil, err
		}
		return []*tensor.Dense{tensor.Vector(vec)}, nil
	}

	first, ok := arr[0].([]any)
	if !ok || len(first) == 0 {
		return nil, fmt.Errorf("expected numbers or arrays, got %T", arr[0])
	}

	if _, ok := toFloat(first[0]); ok {
		m, err := toMatrix(arr)
		if err != nil {
			return nil, err
		}
		return []*tensor.Dense{m}, nil
	}

	// List of matrices (one per graph input) or list of vectors (one per
	// graph output).
	out := make([]*tensor.Dense, len(arr))
	for i, elem := range arr {
		rows, ok := elem.([]any)
		if !ok || len(rows) == 0 {
			return nil, fmt.Errorf("entry %d: expected a non-empty array, got %T", i, elem)
		}
		if _, ok := toFloat(rows[0]); ok {
			vec, err := toVector(rows)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out[i] = tensor.Vector(vec)
			continue
		}
		m, err := toMatrix(rows)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

func toMatrix(rows []any) (*tensor.Dense, error) {
	parsed := make([][]float64, len(rows))
	for i, row := range rows {
		cells, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d: expected an array, got %T", i, row)
		}
		vec, err := toVector(cells)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		parsed[i] = vec
	}
	return tensor.FromRows(parsed)
}

func toVector(cells []any) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		f, ok := toFloat(c)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want number", i, c)
		}
		out[i] = f
	}
	return out, nil
}

// toFloat accepts the numeric types the JSON parser produces.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
