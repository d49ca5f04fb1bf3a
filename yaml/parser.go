package yaml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"
)

// graphSchema is the JSON schema every definition is checked against
// before semantic validation. It catches malformed documents (wrong field
// types, missing required keys) before any node is considered.
const graphSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "sources", "outputs", "nodes"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "sources": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "outputs": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["model", "reshape", "merge", "lua_merge"]},
          "input": {"type": "string"},
          "inputs": {"type": "array", "items": {"type": "string"}},
          "predictor": {"type": "string"},
          "params": {"type": "object"},
          "probabilities": {"type": "boolean"},
          "shape": {"type": "array", "items": {"type": "integer"}},
          "combiner": {"enum": ["concat", "sum", "mean", "median", "average", "dot", "tensordot"]},
          "axis": {"type": "integer"},
          "axes": {"type": "integer"},
          "weights": {"type": "array", "items": {"type": "number"}},
          "script": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// Parser parses YAML graph definitions.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a graph definition from r, checks it against the definition
// schema, and runs semantic validation.
func (p *Parser) Parse(r io.Reader) (*GraphDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("yaml: read definition: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var def GraphDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("yaml: parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile reads a graph definition from a file.
func (p *Parser) ParseFile(filename string) (*GraphDefinition, error) {
	f, err := os.Open(filename) // #nosec G304 - definitions are user-supplied paths
	if err != nil {
		return nil, fmt.Errorf("yaml: open definition: %w", err)
	}
	defer func() { _ = f.Close() }()
	return p.Parse(f)
}

// ParseString reads a graph definition from a string.
func (p *Parser) ParseString(s string) (*GraphDefinition, error) {
	return p.Parse(strings.NewReader(s))
}

// validateSchema checks the raw document against graphSchema by converting
// it to JSON first.
func validateSchema(data []byte) error {
	var doc any
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("yaml: parse definition: %w", err)
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("yaml: convert definition for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(graphSchema),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return fmt.Errorf("yaml: schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("yaml: invalid definition: %s", strings.Join(msgs, "; "))
	}
	return nil
}
