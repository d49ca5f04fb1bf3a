package ensemble

import (
	"errors"

	"github.com/ensemblekit/ensemble/tensor"
)

// Source is a leaf node holding the externally injected data for one
// session. Sources are never trained; they exist so the graph has a place
// to feed each of its inputs. The owning graph stores a value before
// driving a session and clears it again when the session ends, on every
// exit path.
type Source struct {
	value *tensor.Dense
}

// NewSource creates a source node.
func NewSource() *Source {
	return &Source{}
}

func (s *Source) dependencies() []Node { return nil }

func (s *Source) kind() string { return "source" }

// train is a no-op: sources only hold injected values.
func (s *Source) train(_ *session, _ *tensor.Dense) error { return nil }

func (s *Source) compute(_ *session) (*tensor.Dense, error) {
	if s.value == nil {
		return nil, errors.New("ensemble: source has no injected value")
	}
	return s.value, nil
}

// store sets the value the source yields for the current session. Called
// only by the owning graph.
func (s *Source) store(v *tensor.Dense) {
	s.value = v
}
