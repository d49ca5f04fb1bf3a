package yaml

import (
	"fmt"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/model"
	"github.com/ensemblekit/ensemble/script"
)

// PredictorFactory builds a predictor from the params block of a model
// node definition.
type PredictorFactory func(params map[string]any) (ensemble.Predictor, error)

// Loader turns graph definitions into runnable graphs. Predictors are
// created through a registry of named factories; the built-in
// "least_squares" and "knn" predictors are pre-registered.
type Loader struct {
	parser     *Parser
	predictors map[string]PredictorFactory
}

// NewLoader creates a loader with the built-in predictors registered.
func NewLoader() *Loader {
	l := &Loader{
		parser:     NewParser(),
		predictors: make(map[string]PredictorFactory),
	}
	l.RegisterPredictor("least_squares", func(_ map[string]any) (ensemble.Predictor, error) {
		return model.NewLeastSquares(), nil
	})
	l.RegisterPredictor("knn", func(params map[string]any) (ensemble.Predictor, error) {
		k, err := intParam(params, "k", 5)
		if err != nil {
			return nil, err
		}
		return model.NewKNN(k), nil
	})
	return l
}

// RegisterPredictor registers a factory for the given predictor name,
// replacing any previous registration.
func (l *Loader) RegisterPredictor(name string, factory PredictorFactory) {
	l.predictors[name] = factory
}

// LoadFile parses a definition file and builds its graph.
func (l *Loader) LoadFile(filename string, opts ...ensemble.GraphOption) (*ensemble.Graph, error) {
	def, err := l.parser.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return l.LoadDefinition(def, opts...)
}

// LoadString parses a definition string and builds its graph.
func (l *Loader) LoadString(s string, opts ...ensemble.GraphOption) (*ensemble.Graph, error) {
	def, err := l.parser.ParseString(s)
	if err != nil {
		return nil, err
	}
	return l.LoadDefinition(def, opts...)
}

// LoadDefinition builds the graph a validated definition describes. Nodes
// are constructed on demand, walking upstream from the declared outputs;
// reference cycles in the definition are rejected here, and the structural
// invariants of the finished graph are enforced by ensemble.New.
func (l *Loader) LoadDefinition(def *GraphDefinition, opts ...ensemble.GraphOption) (*ensemble.Graph, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	defs := make(map[string]*NodeDefinition, len(def.Nodes))
	for i := range def.Nodes {
		defs[def.Nodes[i].Name] = &def.Nodes[i]
	}

	nodes := make(map[string]ensemble.Node)
	sources := make([]*ensemble.Source, len(def.Sources))
	for i, name := range def.Sources {
		src := ensemble.NewSource()
		sources[i] = src
		nodes[name] = src
	}

	building := make(map[string]bool)
	var build func(name string) (ensemble.Node, error)
	build = func(name string) (ensemble.Node, error) {
		if n, ok := nodes[name]; ok {
			return n, nil
		}
		if building[name] {
			return nil, fmt.Errorf("yaml: node %q is part of a reference cycle", name)
		}
		building[name] = true
		defer delete(building, name)

		nd := defs[name]
		var (
			n   ensemble.Node
			err error
		)
		switch nd.Type {
		case "model":
			n, err = l.buildModel(nd, build)
		case "reshape":
			var dep ensemble.Node
			if dep, err = build(nd.Input); err == nil {
				n = ensemble.NewReshape(dep, nd.Shape...)
			}
		case "merge", "lua_merge":
			n, err = l.buildMerge(nd, build)
		}
		if err != nil {
			return nil, err
		}
		nodes[name] = n
		return n, nil
	}

	terminals := make([]ensemble.Node, len(def.Outputs))
	for i, name := range def.Outputs {
		n, err := build(name)
		if err != nil {
			return nil, err
		}
		terminals[i] = n
	}

	return ensemble.New(sources, terminals, opts...)
}

func (l *Loader) buildModel(nd *NodeDefinition, build func(string) (ensemble.Node, error)) (ensemble.Node, error) {
	dep, err := build(nd.Input)
	if err != nil {
		return nil, err
	}
	factory, ok := l.predictors[nd.Predictor]
	if !ok {
		return nil, fmt.Errorf("yaml: node %q uses unregistered predictor %q", nd.Name, nd.Predictor)
	}
	p, err := factory(nd.Params)
	if err != nil {
		return nil, fmt.Errorf("yaml: node %q predictor: %w", nd.Name, err)
	}
	var opts []ensemble.ModelOption
	if nd.Probabilities {
		opts = append(opts, ensemble.WithProbabilities())
	}
	return ensemble.NewModel(dep, p, opts...), nil
}

func (l *Loader) buildMerge(nd *NodeDefinition, build func(string) (ensemble.Node, error)) (ensemble.Node, error) {
	deps := make([]ensemble.Node, len(nd.Inputs))
	for i, in := range nd.Inputs {
		dep, err := build(in)
		if err != nil {
			return nil, err
		}
		deps[i] = dep
	}

	var (
		combine ensemble.Combiner
		err     error
	)
	if nd.Type == "lua_merge" {
		combine, err = script.Combiner(nd.Script)
		if err != nil {
			return nil, fmt.Errorf("yaml: node %q: %w", nd.Name, err)
		}
	} else {
		combine, err = builtinCombiner(nd)
		if err != nil {
			return nil, err
		}
	}
	return ensemble.NewMerge(combine, deps...)
}

// builtinCombiner maps a merge definition onto the ensemble combiners.
func builtinCombiner(nd *NodeDefinition) (ensemble.Combiner, error) {
	var along []ensemble.CombineOption
	if nd.Axis != nil {
		along = append(along, ensemble.Along(*nd.Axis))
	}
	switch nd.Combiner {
	case "concat":
		axis := 0
		if nd.Axis != nil {
			axis = *nd.Axis
		}
		return ensemble.Concat(axis), nil
	case "sum":
		return ensemble.Sum(along...), nil
	case "mean":
		return ensemble.Mean(along...), nil
	case "median":
		return ensemble.Median(along...), nil
	case "average":
		return ensemble.WeightedAverage(nd.Weights, along...), nil
	case "dot":
		return ensemble.Dot(), nil
	case "tensordot":
		axes := nd.Axes
		if axes == 0 {
			axes = 2
		}
		return ensemble.TensorDot(axes), nil
	}
	return nil, fmt.Errorf("yaml: merge node %q has unknown combiner %q", nd.Name, nd.Combiner)
}

// intParam reads an integer from a params block, tolerating the numeric
// types YAML decoding produces.
func intParam(params map[string]any, key string, fallback int) (int, error) {
	v, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("yaml: param %q is %T, want integer", key, v)
	}
}
