package ensemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/ensemblekit/ensemble/tensor"
)

// Graph orchestrates one or more source nodes and one or more terminal
// nodes. It drives whole-graph fit and predict sessions: per-session data
// is injected into the sources, results are pulled from the terminals, and
// all per-session state is released when the call returns, on error paths
// too, so the graph is immediately reusable.
//
// The graph does not own its nodes exclusively: a node may be the
// dependency of several downstream nodes, so diamond and fan-out shapes
// are legal and intended.
type Graph struct {
	sources   []*Source
	terminals []Node
	opts      graphOptions
}

// graphOptions holds configuration for a Graph.
type graphOptions struct {
	logger Logger
}

// GraphOption configures a Graph.
type GraphOption func(*graphOptions)

// WithLogger adds session logging to the graph.
func WithLogger(logger Logger) GraphOption {
	return func(o *graphOptions) {
		o.logger = logger
	}
}

// New creates a graph from its declared source nodes (in input order) and
// terminal nodes (in output order). The dependency structure induced by the
// terminals is validated eagerly: it must be acyclic, every node must be
// fully wired, every source leaf reachable from a terminal must be among
// the declared sources, and every declared source must be reachable.
// Structural problems fail with an error wrapping ErrGraph.
func New(sources []*Source, terminals []Node, opts ...GraphOption) (*Graph, error) {
	g := &Graph{
		sources:   append([]*Source(nil), sources...),
		terminals: append([]Node(nil), terminals...),
	}
	for _, opt := range opts {
		opt(&g.opts)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewSingle creates the common one-input, one-output graph.
func NewSingle(source *Source, terminal Node, opts ...GraphOption) (*Graph, error) {
	return New([]*Source{source}, []Node{terminal}, opts...)
}

// Sources returns the graph's declared source nodes in input order.
func (g *Graph) Sources() []*Source {
	return append([]*Source(nil), g.sources...)
}

// Terminals returns the graph's declared terminal nodes in output order.
func (g *Graph) Terminals() []Node {
	return append([]Node(nil), g.terminals...)
}

// validate checks the dependency structure induced by the terminal nodes.
func (g *Graph) validate() error {
	var errs []error

	if len(g.sources) == 0 {
		errs = append(errs, fmt.Errorf("%w: no source nodes declared", ErrGraph))
	}
	declared := make(map[*Source]bool, len(g.sources))
	for i, src := range g.sources {
		if src == nil {
			errs = append(errs, fmt.Errorf("%w: source %d is nil", ErrGraph, i))
			continue
		}
		if declared[src] {
			errs = append(errs, fmt.Errorf("%w: source %d declared twice", ErrGraph, i))
		}
		declared[src] = true
	}

	if len(g.terminals) == 0 {
		errs = append(errs, fmt.Errorf("%w: no terminal nodes declared", ErrGraph))
	}

	visited := make(map[Node]bool)
	onStack := make(map[Node]bool)
	reachable := make(map[*Source]bool)

	var walk func(n Node) error
	walk = func(n Node) error {
		if onStack[n] {
			return fmt.Errorf("%w: dependency cycle through %s node", ErrGraph, n.kind())
		}
		if visited[n] {
			return nil
		}
		visited[n] = true
		onStack[n] = true
		defer func() { onStack[n] = false }()

		if src, ok := n.(*Source); ok {
			reachable[src] = true
			if !declared[src] {
				return fmt.Errorf("%w: reachable source is not among the declared sources", ErrGraph)
			}
			return nil
		}
		deps := n.dependencies()
		if len(deps) == 0 {
			return fmt.Errorf("%w: %s node has no dependency", ErrGraph, n.kind())
		}
		for _, dep := range deps {
			if dep == nil {
				return fmt.Errorf("%w: %s node has a nil dependency", ErrGraph, n.kind())
			}
			if err := walk(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for i, t := range g.terminals {
		if t == nil {
			errs = append(errs, fmt.Errorf("%w: terminal %d is nil", ErrGraph, i))
			continue
		}
		if err := walk(t); err != nil {
			errs = append(errs, err)
		}
	}

	for i, src := range g.sources {
		if src != nil && !reachable[src] {
			errs = append(errs, fmt.Errorf("%w: source %d is not reachable from any terminal", ErrGraph, i))
		}
	}

	return errors.Join(errs...)
}

// broadcast validates a supplied value collection against a declared arity.
// A single value is broadcast to every node; otherwise the collection's
// length must equal the arity.
func broadcast(values []*tensor.Dense, arity int, what string) ([]*tensor.Dense, error) {
	if len(values) == 1 && arity != 1 {
		out := make([]*tensor.Dense, arity)
		for i := range out {
			out[i] = values[0]
		}
		values = out
	}
	if len(values) != arity {
		return nil, fmt.Errorf("%w: %d %ss for %d declared nodes", ErrArity, len(values), what, arity)
	}
	for i, v := range values {
		if v == nil {
			return nil, fmt.Errorf("%w: %s %d is nil", ErrArity, what, i)
		}
	}
	return values, nil
}

// Fit trains every node in the graph on the supplied inputs and labels.
// A single input is broadcast to all declared sources; otherwise the
// collection must match the source arity. Labels are validated and
// broadcast against the terminal arity the same way. Arity violations fail
// before any node state is touched.
func (g *Graph) Fit(ctx context.Context, inputs, labels []*tensor.Dense) error {
	x, err := broadcast(inputs, len(g.sources), "input")
	if err != nil {
		return err
	}
	y, err := broadcast(labels, len(g.terminals), "label")
	if err != nil {
		return err
	}

	defer g.reset()
	for i, src := range g.sources {
		src.store(x[i])
	}

	s := newSession(ctx, g.opts.logger)
	for i, terminal := range g.terminals {
		if err := s.fit(terminal, y[i]); err != nil {
			return err
		}
	}
	return nil
}

// FitOne is the single-input convenience form of Fit: the one input is
// broadcast to every declared source and the labels to every terminal.
func (g *Graph) FitOne(ctx context.Context, x, y *tensor.Dense) error {
	return g.Fit(ctx, []*tensor.Dense{x}, []*tensor.Dense{y})
}

// Predict computes the output of every terminal node on the supplied
// inputs, in declared order. Input arity is validated and broadcast the
// same way as in Fit.
func (g *Graph) Predict(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	x, err := broadcast(inputs, len(g.sources), "input")
	if err != nil {
		return nil, err
	}

	defer g.reset()
	for i, src := range g.sources {
		src.store(x[i])
	}

	s := newSession(ctx, g.opts.logger)
	outputs := make([]*tensor.Dense, len(g.terminals))
	for i, terminal := range g.terminals {
		out, err := s.output(terminal)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

// PredictOne is the convenience form of Predict for graphs with exactly one
// terminal node: the single input is broadcast to every declared source and
// the bare output is returned rather than a one-element collection.
func (g *Graph) PredictOne(ctx context.Context, x *tensor.Dense) (*tensor.Dense, error) {
	if len(g.terminals) != 1 {
		return nil, fmt.Errorf("%w: PredictOne on a graph with %d terminals", ErrArity, len(g.terminals))
	}
	outputs, err := g.Predict(ctx, []*tensor.Dense{x})
	if err != nil {
		return nil, err
	}
	return outputs[0], nil
}

// reset clears the injected source values after a session. Memoized
// outputs and fitted markers live in the session itself and are released
// with it.
func (g *Graph) reset() {
	for _, src := range g.sources {
		src.store(nil)
	}
}
