package schema

import (
	"fmt"
	"sync/atomic"
)

// SubgraphSource names one subgraph's SDL and upstream host, as listed in
// the supergraph source (config file or fetched from a registry).
type SubgraphSource struct {
	Name string
	Host string
	SDL  []byte
}

// State is the immutable, fully-derived schema generation the rest of the
// router reads from: the composed supergraph, the consumer-facing schema,
// the satisfiability graph, possible-types map, and authorization metadata.
//
// Grounded on gateway/engine.go's schemaStore/buildEngine pattern, which
// builds an "execution engine" off the request path and swaps it in behind
// an atomic.Value; generalized here to atomic.Pointer[State].
type State struct {
	Generation      uint64
	Supergraph      *Supergraph
	PossibleTypes   map[string]map[string]bool
	Satisfiability  *SatisfiabilityGraph
	Authorization   *AuthorizationMetadata
}

// Build parses every subgraph source, composes them, and derives every
// downstream structure. Construction errors never mutate any existing
// live state — the caller decides whether to swap.
func Build(generation uint64, sources []SubgraphSource) (*State, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("schema: no subgraph sources supplied")
	}

	subgraphs := make([]*Subgraph, 0, len(sources))
	for _, src := range sources {
		sg, err := NewSubgraph(src.Name, src.SDL, src.Host)
		if err != nil {
			return nil, fmt.Errorf("schema: building subgraph %q: %w", src.Name, err)
		}
		subgraphs = append(subgraphs, sg)
	}

	supergraph, err := NewSupergraph(subgraphs)
	if err != nil {
		return nil, fmt.Errorf("schema: composing supergraph: %w", err)
	}

	return &State{
		Generation:     generation,
		Supergraph:     supergraph,
		PossibleTypes:  supergraph.PossibleTypesMap(),
		Satisfiability: BuildSatisfiabilityGraph(subgraphs),
		Authorization:  BuildAuthorizationMetadata(supergraph),
	}, nil
}

// Store is the single atomically-swapped reference to the live schema
// generation. Readers never lock; writers build off-path and swap once.
type Store struct {
	ptr atomic.Pointer[State]
}

// NewStore wraps an initial state, or starts empty if nil.
func NewStore(initial *State) *Store {
	s := &Store{}
	if initial != nil {
		s.ptr.Store(initial)
	}
	return s
}

// Load returns the current schema generation, or nil if none has loaded yet.
func (s *Store) Load() *State { return s.ptr.Load() }

// Swap atomically replaces the live generation. Call sites only reach here
// after a successful Build; a failed build must retain the previous state
// and report the error, per the reload contract.
func (s *Store) Swap(next *State) { s.ptr.Store(next) }

// Ready reports whether a schema generation has ever loaded, backing the
// router's /ready endpoint.
func (s *Store) Ready() bool { return s.ptr.Load() != nil }
