// Package ensemble builds ensembles of predictive models arranged as an
// arbitrary directed acyclic graph. Each node consumes the output of its
// upstream node(s), trains on it together with externally supplied labels,
// and exposes its own output to downstream nodes. This generalizes linear
// stacking into multi-level, multi-branch ensembling topologies.
//
// A graph is wired from a closed set of node variants:
//
//   - Source: a leaf holding one externally injected value per session.
//   - Transform: a pure deterministic function of one upstream output,
//     such as Reshape.
//   - Model: wraps a Predictor; fitting trains the predictor on the
//     upstream output, and the node's output is its prediction.
//   - Merge: combines two or more upstream outputs with a Combiner.
//
// Graph.Fit and Graph.Predict are the only entry points. Each call is one
// session: the graph injects the per-session data into its source nodes and
// pulls results from its terminal nodes; every node recursively pulls from
// its own dependencies. Session state is memoized so that a node shared by
// several downstream consumers trains and computes at most once per
// session, and it is discarded when the call returns, so a graph is
// reusable across sessions with no residual state.
//
// Sessions are synchronous and single-threaded; callers must serialize Fit
// and Predict invocations on a given graph.
package ensemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/ensemblekit/ensemble/tensor"
)

// Common errors.
var (
	// ErrNotNode is returned when nil is supplied where a node is required.
	ErrNotNode = errors.New("ensemble: not a valid node")

	// ErrNoDependency is returned when a node that requires an upstream
	// dependency is used before one was set.
	ErrNoDependency = errors.New("ensemble: node has no dependency")

	// ErrArity is returned when the number of supplied inputs or labels
	// does not match the graph's declared source or terminal nodes.
	ErrArity = errors.New("ensemble: arity mismatch")

	// ErrMergeArity is returned when a merge node is given fewer than two
	// dependencies.
	ErrMergeArity = errors.New("ensemble: merge node needs at least 2 dependencies")

	// ErrNoCombiner is returned when a merge node is constructed without a
	// combination function.
	ErrNoCombiner = errors.New("ensemble: merge node needs a combiner")

	// ErrNoPredictor is returned when a model node is constructed without a
	// predictor.
	ErrNoPredictor = errors.New("ensemble: model node needs a predictor")

	// ErrNoProbability is returned when probability output is requested
	// from a predictor that does not implement ProbabilityPredictor.
	ErrNoProbability = errors.New("ensemble: predictor does not support probability output")

	// ErrGraph is returned for structural problems detected at graph
	// construction: dependency cycles, undeclared reachable sources, or
	// unwired nodes.
	ErrGraph = errors.New("ensemble: invalid graph")
)

// Node is a unit in the computation graph. The variants are the concrete
// types Source, Transform, Model, and Merge; nodes have reference identity
// and may be shared as the dependency of more than one downstream node.
type Node interface {
	// dependencies returns the upstream nodes in declared order. Sources
	// return none.
	dependencies() []Node

	// train runs this node's side of the fit protocol within a session.
	// The session guarantees it runs at most once per node per session.
	train(s *session, labels *tensor.Dense) error

	// compute produces this node's output within a session, without
	// memoization; the session caches the result.
	compute(s *session) (*tensor.Dense, error)

	// kind names the variant for errors and logs.
	kind() string
}

// session is the per-call execution context for one Fit or Predict
// invocation. All transient state (memoized outputs and fitted markers)
// lives here, keyed by node identity, and is discarded with the call. This
// is what makes a node's training and computation steps run at most once
// per session regardless of fan-out, and what guarantees that no session
// state survives an error.
type session struct {
	ctx     context.Context
	logger  Logger
	outputs map[Node]*tensor.Dense
	fitted  map[Node]bool
}

func newSession(ctx context.Context, logger Logger) *session {
	return &session{
		ctx:     ctx,
		logger:  logger,
		outputs: make(map[Node]*tensor.Dense),
		fitted:  make(map[Node]bool),
	}
}

// fit runs a node's training protocol exactly once per session.
func (s *session) fit(n Node, labels *tensor.Dense) error {
	if s.fitted[n] {
		return nil
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Debug(s.ctx, "fitting node", "kind", n.kind())
	}
	if err := n.train(s, labels); err != nil {
		return fmt.Errorf("fit %s node: %w", n.kind(), err)
	}
	s.fitted[n] = true
	return nil
}

// output returns a node's output, computing it at most once per session.
func (s *session) output(n Node) (*tensor.Dense, error) {
	if out, ok := s.outputs[n]; ok {
		return out, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug(s.ctx, "computing node output", "kind", n.kind())
	}
	out, err := n.compute(s)
	if err != nil {
		return nil, fmt.Errorf("%s node: %w", n.kind(), err)
	}
	s.outputs[n] = out
	return out, nil
}

// trainSingle is the default fit protocol shared by the single-dependency
// variants: fit the dependency first, read its output, then run the node's
// own training step. Nodes without a trainable step pass a nil own step and
// still propagate. Merge nodes override this protocol entirely.
func trainSingle(s *session, n Node, labels *tensor.Dense, own func(features, labels *tensor.Dense) error) error {
	deps := n.dependencies()
	if len(deps) == 0 || deps[0] == nil {
		return ErrNoDependency
	}
	if err := s.fit(deps[0], labels); err != nil {
		return err
	}
	features, err := s.output(deps[0])
	if err != nil {
		return err
	}
	if own == nil {
		return nil
	}
	return own(features, labels)
}

// Logger provides structured logging for graph sessions.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}
