// Package graph implements SignalGraph, the immutable tree value capturing a
// signal's id and the recursive graphs of its upstreams.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/signalrt/internal/chain"
)

// ErrEmptyID is returned by New when id is empty.
var ErrEmptyID = errors.New("graph: id must not be empty")

// SignalGraph is an immutable tree: an id plus an ordered list of upstream
// graphs. A graph with no dependencies is a leaf.
type SignalGraph struct {
	id           string
	dependencies []*SignalGraph
}

// New constructs a SignalGraph for id with the given upstream graphs in
// declared order. Pass no upstreams to construct a leaf.
func New(id string, dependencies ...*SignalGraph) (*SignalGraph, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	deps := make([]*SignalGraph, len(dependencies))
	copy(deps, dependencies)

	return &SignalGraph{id: id, dependencies: deps}, nil
}

// MustNew is New, panicking on error. Intended for tests and literals with a
// known-valid id.
func MustNew(id string, dependencies ...*SignalGraph) *SignalGraph {
	g, err := New(id, dependencies...)
	if err != nil {
		panic(err)
	}

	return g
}

// ID returns the signal id this graph node names.
func (g *SignalGraph) ID() string {
	return g.id
}

// Dependencies returns the direct upstream graphs in declared order. The
// returned slice must not be mutated by callers.
func (g *SignalGraph) Dependencies() []*SignalGraph {
	return g.dependencies
}

// IsLeaf reports whether this graph has no upstream dependencies.
func (g *SignalGraph) IsLeaf() bool {
	return len(g.dependencies) == 0
}

// Equal reports structural equality: same id, same dependencies in the same
// order, recursively. No identity semantics are involved.
func (g *SignalGraph) Equal(other *SignalGraph) bool {
	if other == nil {
		return false
	}

	if g.id != other.id || len(g.dependencies) != len(other.dependencies) {
		return false
	}

	for i, dep := range g.dependencies {
		if !dep.Equal(other.dependencies[i]) {
			return false
		}
	}

	return true
}

// AllPaths returns every root-to-leaf chain through this graph as a
// SignalChain with event counters left unset. Each returned chain is
// independent: mutating one never affects another, including siblings that
// share a common upstream graph (a diamond).
//
// For a leaf, this is one chain containing just the leaf's id. For an
// interior graph with id r and upstream graphs u1..un, this is the union
// over i of every chain produced by ui.AllPaths() with r appended.
func (g *SignalGraph) AllPaths() []*chain.SignalChain {
	if g.IsLeaf() {
		return []*chain.SignalChain{chain.New().Chain(g.id, chain.UnsetCounter)}
	}

	paths := make([]*chain.SignalChain, 0)

	for _, dep := range g.dependencies {
		for _, upstreamPath := range dep.AllPaths() {
			paths = append(paths, upstreamPath.Chain(g.id, chain.UnsetCounter))
		}
	}

	return paths
}

// wireGraph is the JSON wire shape: {"id":…, "dependencies":[…]}.
type wireGraph struct {
	ID           string      `json:"id"`
	Dependencies []wireGraph `json:"dependencies"`
}

func (g *SignalGraph) toWire() wireGraph {
	w := wireGraph{ID: g.id, Dependencies: make([]wireGraph, len(g.dependencies))}
	for i, dep := range g.dependencies {
		w.Dependencies[i] = dep.toWire()
	}

	return w
}

func fromWire(w wireGraph) (*SignalGraph, error) {
	if w.ID == "" {
		return nil, ErrEmptyID
	}

	deps := make([]*SignalGraph, len(w.Dependencies))

	for i, dw := range w.Dependencies {
		dep, err := fromWire(dw)
		if err != nil {
			return nil, err
		}

		deps[i] = dep
	}

	return &SignalGraph{id: w.ID, dependencies: deps}, nil
}

// ToJSON serializes the graph to its recursive wire representation.
func (g *SignalGraph) ToJSON() ([]byte, error) {
	data, err := json.Marshal(g.toWire())
	if err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}

	return data, nil
}

// FromJSON restores a SignalGraph from its wire representation.
func FromJSON(data []byte) (*SignalGraph, error) {
	var w wireGraph
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("graph: unmarshal: %w", err)
	}

	g, err := fromWire(w)
	if err != nil {
		return nil, fmt.Errorf("graph: unmarshal: %w", err)
	}

	return g, nil
}

// MarshalJSON implements json.Marshaler using the wire representation.
func (g *SignalGraph) MarshalJSON() ([]byte, error) {
	return g.ToJSON()
}

// UnmarshalJSON implements json.Unmarshaler using the wire representation.
func (g *SignalGraph) UnmarshalJSON(data []byte) error {
	restored, err := FromJSON(data)
	if err != nil {
		return err
	}

	g.id = restored.id
	g.dependencies = restored.dependencies

	return nil
}
