// Package yaml provides declarative graph definitions for ensemble. A
// definition names the graph's sources, its output nodes, and a list of
// typed node declarations; the Loader turns a parsed definition into a
// runnable *ensemble.Graph.
package yaml

import (
	"fmt"
)

// GraphDefinition is a complete ensemble graph described in YAML.
type GraphDefinition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Version     string           `yaml:"version,omitempty"`
	Sources     []string         `yaml:"sources"`
	Outputs     []string         `yaml:"outputs"`
	Nodes       []NodeDefinition `yaml:"nodes"`
}

// NodeDefinition declares one node. Which fields apply depends on Type:
//
//   - "model": Input, Predictor, Params, Probabilities
//   - "reshape": Input, Shape
//   - "merge": Inputs, Combiner, Axis, Axes, Weights
//   - "lua_merge": Inputs, Script
type NodeDefinition struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Input names the upstream node for single-dependency types; Inputs
	// lists the ordered upstream nodes for merge types.
	Input  string   `yaml:"input,omitempty"`
	Inputs []string `yaml:"inputs,omitempty"`

	// Model fields.
	Predictor     string         `yaml:"predictor,omitempty"`
	Params        map[string]any `yaml:"params,omitempty"`
	Probabilities bool           `yaml:"probabilities,omitempty"`

	// Reshape fields.
	Shape []int `yaml:"shape,omitempty"`

	// Merge fields.
	Combiner string    `yaml:"combiner,omitempty"`
	Axis     *int      `yaml:"axis,omitempty"`
	Axes     int       `yaml:"axes,omitempty"`
	Weights  []float64 `yaml:"weights,omitempty"`

	// Lua merge fields.
	Script string `yaml:"script,omitempty"`
}

// nodeTypes and combinerNames are the accepted values for NodeDefinition.
var (
	nodeTypes     = map[string]bool{"model": true, "reshape": true, "merge": true, "lua_merge": true}
	combinerNames = map[string]bool{"concat": true, "sum": true, "mean": true, "median": true, "average": true, "dot": true, "tensordot": true}
)

// Validate checks the definition for structural consistency: unique names,
// resolvable references, and per-type required fields.
func (gd *GraphDefinition) Validate() error {
	if gd.Name == "" {
		return fmt.Errorf("yaml: graph name is required")
	}
	if len(gd.Sources) == 0 {
		return fmt.Errorf("yaml: at least one source is required")
	}
	if len(gd.Outputs) == 0 {
		return fmt.Errorf("yaml: at least one output is required")
	}

	names := make(map[string]bool)
	for _, src := range gd.Sources {
		if src == "" {
			return fmt.Errorf("yaml: empty source name")
		}
		if names[src] {
			return fmt.Errorf("yaml: duplicate name %q", src)
		}
		names[src] = true
	}
	for _, nd := range gd.Nodes {
		if nd.Name == "" {
			return fmt.Errorf("yaml: node without a name")
		}
		if names[nd.Name] {
			return fmt.Errorf("yaml: duplicate name %q", nd.Name)
		}
		names[nd.Name] = true
	}

	for _, nd := range gd.Nodes {
		if err := nd.validate(names); err != nil {
			return err
		}
	}

	for _, out := range gd.Outputs {
		if !names[out] {
			return fmt.Errorf("yaml: output %q references an unknown node", out)
		}
	}
	return nil
}

func (nd *NodeDefinition) validate(names map[string]bool) error {
	if !nodeTypes[nd.Type] {
		return fmt.Errorf("yaml: node %q has unknown type %q", nd.Name, nd.Type)
	}

	switch nd.Type {
	case "model", "reshape":
		if nd.Input == "" {
			return fmt.Errorf("yaml: node %q needs an input", nd.Name)
		}
		if !names[nd.Input] {
			return fmt.Errorf("yaml: node %q input %q references an unknown node", nd.Name, nd.Input)
		}
		if nd.Type == "model" && nd.Predictor == "" {
			return fmt.Errorf("yaml: model node %q needs a predictor", nd.Name)
		}
		if nd.Type == "reshape" && len(nd.Shape) == 0 {
			return fmt.Errorf("yaml: reshape node %q needs a shape", nd.Name)
		}
	case "merge", "lua_merge":
		if len(nd.Inputs) < 2 {
			return fmt.Errorf("yaml: merge node %q needs at least 2 inputs, got %d", nd.Name, len(nd.Inputs))
		}
		for _, in := range nd.Inputs {
			if !names[in] {
				return fmt.Errorf("yaml: node %q input %q references an unknown node", nd.Name, in)
			}
		}
		if nd.Type == "merge" && !combinerNames[nd.Combiner] {
			return fmt.Errorf("yaml: merge node %q has unknown combiner %q", nd.Name, nd.Combiner)
		}
		if nd.Type == "lua_merge" && nd.Script == "" {
			return fmt.Errorf("yaml: lua_merge node %q needs a script", nd.Name)
		}
	}
	return nil
}
