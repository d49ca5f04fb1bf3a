package model

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/tensor"
)

// KNN is a k-nearest-neighbours classifier with euclidean distance and
// majority voting. It implements ProbabilityPredictor: PredictProba reports
// the neighbour share of each class, with classes ordered by ascending
// label value. Fit stores the training data in place and returns the
// receiver.
type KNN struct {
	k       int
	train   *tensor.Dense
	labels  []float64
	classes []float64
}

// NewKNN creates a classifier voting over the k nearest neighbours.
func NewKNN(k int) *KNN {
	if k < 1 {
		k = 1
	}
	return &KNN{k: k}
}

// Fit memorizes the training samples and their labels.
func (m *KNN) Fit(x, y *tensor.Dense) (ensemble.Predictor, error) {
	xm, err := features(x)
	if err != nil {
		return nil, err
	}
	yv, err := targets(y)
	if err != nil {
		return nil, err
	}
	if xm.Shape()[0] != len(yv) {
		return nil, fmt.Errorf("model: %d samples with %d targets", xm.Shape()[0], len(yv))
	}
	if len(yv) == 0 {
		return nil, fmt.Errorf("model: empty training set")
	}

	m.train = xm.Clone()
	m.labels = slices.Clone(yv)

	classes := slices.Clone(yv)
	slices.Sort(classes)
	m.classes = slices.Compact(classes)
	return m, nil
}

// Classes returns the distinct training labels in ascending order. The
// columns of PredictProba follow this order.
func (m *KNN) Classes() []float64 {
	return append([]float64(nil), m.classes...)
}

// Predict returns the majority label among the k nearest neighbours of
// each row of x, as a 1-D tensor. Ties resolve to the smallest label.
func (m *KNN) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	votes, err := m.neighbourShares(x)
	if err != nil {
		return nil, err
	}
	rows := len(votes)
	out := make([]float64, rows)
	for i, shares := range votes {
		best := 0
		for c := 1; c < len(shares); c++ {
			if shares[c] > shares[best] {
				best = c
			}
		}
		out[i] = m.classes[best]
	}
	return tensor.Vector(out), nil
}

// PredictProba returns, for each row of x, the fraction of the k nearest
// neighbours belonging to each class. The result is 2-D with one column
// per class in Classes order.
func (m *KNN) PredictProba(x *tensor.Dense) (*tensor.Dense, error) {
	votes, err := m.neighbourShares(x)
	if err != nil {
		return nil, err
	}
	data := make([]float64, 0, len(votes)*len(m.classes))
	for _, shares := range votes {
		data = append(data, shares...)
	}
	return tensor.New(data, len(votes), len(m.classes))
}

// neighbourShares computes the per-class neighbour fraction for every query
// row. Rows are independent, so the search fans out across a bounded worker
// group; graph sessions themselves stay single-threaded.
func (m *KNN) neighbourShares(x *tensor.Dense) ([][]float64, error) {
	if m.train == nil {
		return nil, ErrNotFitted
	}
	xm, err := features(x)
	if err != nil {
		return nil, err
	}
	shape := xm.Shape()
	if shape[1] != m.train.Shape()[1] {
		return nil, fmt.Errorf("model: %d features, fitted with %d", shape[1], m.train.Shape()[1])
	}

	classIndex := make(map[float64]int, len(m.classes))
	for i, c := range m.classes {
		classIndex[c] = i
	}
	k := m.k
	if k > len(m.labels) {
		k = len(m.labels)
	}

	votes := make([][]float64, shape[0])
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < shape[0]; i++ {
		g.Go(func() error {
			query := xm.Row(i)
			dists := make([]float64, len(m.labels))
			order := make([]int, len(m.labels))
			for j := range m.labels {
				dists[j] = euclidean(query, m.train.Row(j))
				order[j] = j
			}
			sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })

			shares := make([]float64, len(m.classes))
			for _, j := range order[:k] {
				shares[classIndex[m.labels[j]]] += 1 / float64(k)
			}
			votes[i] = shares
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return votes, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
