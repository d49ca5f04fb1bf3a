package ensemble

import (
	"github.com/ensemblekit/ensemble/tensor"
)

// Predictor is the capability contract for the predictive models a Model
// node wraps. Fit may mutate the receiver in place or return a freshly
// fitted instance; the node adopts the returned predictor as canonical
// either way.
type Predictor interface {
	Fit(features, labels *tensor.Dense) (Predictor, error)
	Predict(features *tensor.Dense) (*tensor.Dense, error)
}

// ProbabilityPredictor is implemented by predictors that can report
// per-class probabilities. It is required only when a model node is
// configured with WithProbabilities.
type ProbabilityPredictor interface {
	Predictor
	PredictProba(features *tensor.Dense) (*tensor.Dense, error)
}

// Model is a node with exactly one dependency wrapping a trainable
// predictor. Fitting trains the predictor on the dependency's output and
// the session labels; the node's output is the predictor's prediction on
// the dependency's output.
type Model struct {
	dep       Node
	predictor Predictor
	useProbas bool
}

// ModelOption configures a Model node.
type ModelOption func(*Model)

// WithProbabilities makes the node output the predictor's per-class
// probabilities instead of its predictions. The wrapped predictor must
// implement ProbabilityPredictor; a session fails with ErrNoProbability
// otherwise.
func WithProbabilities() ModelOption {
	return func(m *Model) {
		m.useProbas = true
	}
}

// NewModel creates a model node reading from dep and wrapping p. The
// dependency may be nil and set later with SetDependency, but must be
// wired before the node is used in a graph.
func NewModel(dep Node, p Predictor, opts ...ModelOption) *Model {
	m := &Model{dep: dep, predictor: p}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDependency sets the node's upstream dependency.
func (m *Model) SetDependency(dep Node) error {
	if dep == nil {
		return ErrNotNode
	}
	m.dep = dep
	return nil
}

// Predictor returns the node's current predictor. After a fit session this
// is the fitted predictor the node adopted.
func (m *Model) Predictor() Predictor {
	return m.predictor
}

func (m *Model) dependencies() []Node {
	if m.dep == nil {
		return nil
	}
	return []Node{m.dep}
}

func (m *Model) kind() string { return "model" }

func (m *Model) train(s *session, labels *tensor.Dense) error {
	return trainSingle(s, m, labels, func(features, labels *tensor.Dense) error {
		if m.predictor == nil {
			return ErrNoPredictor
		}
		fitted, err := m.predictor.Fit(features, labels)
		if err != nil {
			return err
		}
		if fitted != nil {
			m.predictor = fitted
		}
		return nil
	})
}

func (m *Model) compute(s *session) (*tensor.Dense, error) {
	if m.dep == nil {
		return nil, ErrNoDependency
	}
	if m.predictor == nil {
		return nil, ErrNoPredictor
	}
	features, err := s.output(m.dep)
	if err != nil {
		return nil, err
	}
	if m.useProbas {
		pp, ok := m.predictor.(ProbabilityPredictor)
		if !ok {
			return nil, ErrNoProbability
		}
		return pp.PredictProba(features)
	}
	return m.predictor.Predict(features)
}
