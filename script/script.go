// Package script compiles Lua scripts into ensemble combiners, so custom
// merge arithmetic can be supplied as text instead of Go code, for
// instance from a declarative graph definition.
//
// A script must define a global function combine(inputs). Each entry of
// inputs is a table with a `shape` array and a flat row-major `data` array.
// The function returns either a table of the same form or a flat array of
// numbers, which is taken as a 1-D result.
//
//	function combine(inputs)
//	    local out = {}
//	    for i, v in ipairs(inputs[1].data) do
//	        out[i] = (v + inputs[2].data[i]) / 2
//	    end
//	    return { shape = inputs[1].shape, data = out }
//	end
//
// Scripts run in a sandbox with only the base, table, math, and string
// libraries loaded.
package script

import (
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"

	"github.com/ensemblekit/ensemble"
	"github.com/ensemblekit/ensemble/tensor"
)

// ErrNoCombine is returned when a script does not define a global
// combine function.
var ErrNoCombine = errors.New("script: no combine function defined")

// Combiner compiles source into an ensemble.Combiner. The script is
// validated eagerly: it must compile, execute, and define combine. Each
// combiner invocation runs in a fresh sandboxed Lua state, so scripts
// cannot leak state between sessions.
func Combiner(source string) (ensemble.Combiner, error) {
	l := lua.NewState()
	setupSandbox(l)
	if err := lua.DoString(l, source); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	l.Global("combine")
	if l.TypeOf(-1) != lua.TypeFunction {
		return nil, ErrNoCombine
	}
	l.Pop(1)

	return func(inputs []*tensor.Dense) (*tensor.Dense, error) {
		return run(source, inputs)
	}, nil
}

// run executes one combine call in a fresh state.
func run(source string, inputs []*tensor.Dense) (*tensor.Dense, error) {
	l := lua.NewState()
	setupSandbox(l)
	if err := lua.DoString(l, source); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	l.Global("combine")
	if l.TypeOf(-1) != lua.TypeFunction {
		return nil, ErrNoCombine
	}
	pushInputs(l, inputs)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("script: combine: %w", err)
	}
	out, err := pullResult(l)
	l.Pop(1)
	return out, err
}

// setupSandbox loads only the safe libraries.
func setupSandbox(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)

	// No file or chunk loading inside scripts.
	l.PushNil()
	l.SetGlobal("dofile")
	l.PushNil()
	l.SetGlobal("loadfile")
	l.PushNil()
	l.SetGlobal("load")
	l.PushNil()
	l.SetGlobal("require")
}

// pushInputs pushes the input tensors as an array of {shape, data} tables.
func pushInputs(l *lua.State, inputs []*tensor.Dense) {
	l.NewTable()
	for i, t := range inputs {
		l.PushInteger(i + 1)
		l.NewTable()

		l.PushString("shape")
		pushIntArray(l, t.Shape())
		l.SetTable(-3)

		l.PushString("data")
		pushFloatArray(l, t.Data())
		l.SetTable(-3)

		l.SetTable(-3)
	}
}

func pushIntArray(l *lua.State, values []int) {
	l.NewTable()
	for i, v := range values {
		l.PushInteger(i + 1)
		l.PushInteger(v)
		l.SetTable(-3)
	}
}

func pushFloatArray(l *lua.State, values []float64) {
	l.NewTable()
	for i, v := range values {
		l.PushInteger(i + 1)
		l.PushNumber(v)
		l.SetTable(-3)
	}
}

// pullResult reads the combine return value at the top of the stack: a
// {shape, data} table, or a flat array taken as a 1-D result.
func pullResult(l *lua.State) (*tensor.Dense, error) {
	if l.TypeOf(-1) != lua.TypeTable {
		return nil, fmt.Errorf("script: combine returned %s, want table", lua.TypeNameOf(l, -1))
	}

	l.Field(-1, "data")
	hasData := l.TypeOf(-1) == lua.TypeTable
	if !hasData {
		l.Pop(1)
		// Flat array form.
		data, err := pullFloatArray(l, -1)
		if err != nil {
			return nil, err
		}
		return tensor.Vector(data), nil
	}
	data, err := pullFloatArray(l, -1)
	l.Pop(1)
	if err != nil {
		return nil, err
	}

	l.Field(-1, "shape")
	if l.TypeOf(-1) != lua.TypeTable {
		l.Pop(1)
		return tensor.Vector(data), nil
	}
	raw, err := pullFloatArray(l, -1)
	l.Pop(1)
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(raw))
	for i, v := range raw {
		shape[i] = int(v)
	}
	out, err := tensor.New(data, shape...)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return out, nil
}

// pullFloatArray reads a numeric array table at idx.
func pullFloatArray(l *lua.State, idx int) ([]float64, error) {
	l.PushValue(idx)

	length := 0
	l.PushNil()
	for l.Next(-2) {
		if l.TypeOf(-2) != lua.TypeNumber {
			l.Pop(3)
			return nil, errors.New("script: array table has non-numeric keys")
		}
		n, _ := l.ToNumber(-2)
		if int(n) > length {
			length = int(n)
		}
		l.Pop(1)
	}

	out := make([]float64, length)
	for i := 1; i <= length; i++ {
		l.PushInteger(i)
		l.Table(-2)
		if l.TypeOf(-1) != lua.TypeNumber {
			l.Pop(2)
			return nil, fmt.Errorf("script: array element %d is not a number", i)
		}
		out[i-1], _ = l.ToNumber(-1)
		l.Pop(1)
	}
	l.Pop(1)
	return out, nil
}
