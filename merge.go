package ensemble

import (
	"fmt"

	"github.com/ensemblekit/ensemble/tensor"
)

// Combiner combines the ordered outputs of a merge node's dependencies into
// one output. Combiners must be pure: the engine may cache their result for
// the duration of a session.
type Combiner func(inputs []*tensor.Dense) (*tensor.Dense, error)

// Merge is a node with two or more ordered dependencies whose output is a
// combination function applied to the tuple of upstream outputs. Merge
// nodes are untrainable themselves: fitting a merge node fits every one of
// its dependencies and runs no local training step. This is the one
// variant that overrides the single-dependency fit protocol, since a merge
// node has no single predecessor to delegate to.
type Merge struct {
	deps    []Node
	combine Combiner
}

// NewMerge creates a merge node combining deps, in order, with combine.
// It fails with ErrMergeArity when fewer than two dependencies are given.
func NewMerge(combine Combiner, deps ...Node) (*Merge, error) {
	if combine == nil {
		return nil, ErrNoCombiner
	}
	m := &Merge{combine: combine}
	if err := m.SetDependencies(deps...); err != nil {
		return nil, err
	}
	return m, nil
}

// SetDependencies replaces the node's dependencies. At least two nodes are
// required.
func (m *Merge) SetDependencies(deps ...Node) error {
	if len(deps) < 2 {
		return fmt.Errorf("%w: got %d", ErrMergeArity, len(deps))
	}
	for _, dep := range deps {
		if dep == nil {
			return ErrNotNode
		}
	}
	m.deps = append([]Node(nil), deps...)
	return nil
}

// AddDependency appends one more upstream node.
func (m *Merge) AddDependency(dep Node) error {
	if dep == nil {
		return ErrNotNode
	}
	m.deps = append(m.deps, dep)
	return nil
}

func (m *Merge) dependencies() []Node { return m.deps }

func (m *Merge) kind() string { return "merge" }

// train fits every dependency. There is no local step to run.
func (m *Merge) train(s *session, labels *tensor.Dense) error {
	for _, dep := range m.deps {
		if err := s.fit(dep, labels); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merge) compute(s *session) (*tensor.Dense, error) {
	inputs := make([]*tensor.Dense, len(m.deps))
	for i, dep := range m.deps {
		out, err := s.output(dep)
		if err != nil {
			return nil, err
		}
		inputs[i] = out
	}
	return m.combine(inputs)
}
