package schema_test

import (
	"testing"

	"github.com/graphql-hive/federation-router/internal/schema"
)

func TestBuildDerivesFullState(t *testing.T) {
	state, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "users", Host: "http://users", SDL: []byte(usersSDL)},
		{Name: "reviews", Host: "http://reviews", SDL: []byte(reviewsSDL)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", state.Generation)
	}
	if state.Supergraph == nil || state.Satisfiability == nil || state.Authorization == nil {
		t.Fatalf("expected every derived structure to be populated, got %+v", state)
	}
	if len(state.Supergraph.GetSubgraphsForField("User", "name")) == 0 {
		t.Fatal("expected User.name ownership to be derivable from the built state")
	}
}

func TestBuildRejectsEmptySources(t *testing.T) {
	if _, err := schema.Build(1, nil); err == nil {
		t.Fatal("expected an error building state with no subgraph sources")
	}
}

func TestBuildPropagatesSubgraphParseErrors(t *testing.T) {
	_, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "broken", Host: "http://broken", SDL: []byte("type {{{")},
	})
	if err == nil {
		t.Fatal("expected a parse error to propagate")
	}
}

func TestStoreLoadSwapReady(t *testing.T) {
	store := schema.NewStore(nil)
	if store.Ready() {
		t.Fatal("expected a fresh store to not be ready")
	}
	if store.Load() != nil {
		t.Fatal("expected Load to return nil before any Swap")
	}

	state, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "users", Host: "http://users", SDL: []byte(usersSDL)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Swap(state)

	if !store.Ready() {
		t.Fatal("expected the store to be ready after Swap")
	}
	if store.Load() != state {
		t.Fatal("expected Load to return the swapped state")
	}
}

func TestNewStoreWithInitialState(t *testing.T) {
	state, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "users", Host: "http://users", SDL: []byte(usersSDL)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := schema.NewStore(state)
	if !store.Ready() {
		t.Fatal("expected a store initialized with state to be immediately ready")
	}
}
