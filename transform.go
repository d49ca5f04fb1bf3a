package ensemble

import (
	"github.com/ensemblekit/ensemble/tensor"
)

// TransformFunc is a pure, deterministic function of one upstream output.
type TransformFunc func(*tensor.Dense) (*tensor.Dense, error)

// Transform is a node with exactly one dependency and no trainable state:
// its output is fn applied to the dependency's output. A nil fn passes the
// dependency output through unchanged.
type Transform struct {
	dep Node
	fn  TransformFunc
}

// NewTransform creates a transform node reading from dep. The dependency
// may be nil and set later with SetDependency, but must be wired before the
// node is used in a graph.
func NewTransform(dep Node, fn TransformFunc) *Transform {
	return &Transform{dep: dep, fn: fn}
}

// NewReshape creates a transform node that reshapes the dependency's output
// to the given shape. At most one dimension may be -1, in which case it is
// inferred from the element count. A session fails with a shape error when
// the requested shape is incompatible with the upstream output.
func NewReshape(dep Node, shape ...int) *Transform {
	return NewTransform(dep, func(x *tensor.Dense) (*tensor.Dense, error) {
		return x.Reshape(shape...)
	})
}

// SetDependency sets the node's upstream dependency.
func (t *Transform) SetDependency(dep Node) error {
	if dep == nil {
		return ErrNotNode
	}
	t.dep = dep
	return nil
}

func (t *Transform) dependencies() []Node {
	if t.dep == nil {
		return nil
	}
	return []Node{t.dep}
}

func (t *Transform) kind() string { return "transform" }

// train propagates fitting upstream; the transform itself has no trainable
// step.
func (t *Transform) train(s *session, labels *tensor.Dense) error {
	return trainSingle(s, t, labels, nil)
}

func (t *Transform) compute(s *session) (*tensor.Dense, error) {
	if t.dep == nil {
		return nil, ErrNoDependency
	}
	x, err := s.output(t.dep)
	if err != nil {
		return nil, err
	}
	if t.fn == nil {
		return x, nil
	}
	return t.fn(x)
}
