package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/executor"
	"github.com/graphql-hive/federation-router/internal/planner"
	"github.com/graphql-hive/federation-router/internal/schema"
)

const execUsersSDL = `type Query { ping: String }`
const execReviewsSDL = `type Query { pong: String }`

func buildExecTestState(t *testing.T) *schema.State {
	t.Helper()
	state, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "users", Host: "http://users", SDL: []byte(execUsersSDL)},
		{Name: "reviews", Host: "http://reviews", SDL: []byte(execReviewsSDL)},
	})
	if err != nil {
		t.Fatalf("unexpected error building state: %v", err)
	}
	return state
}

func fieldSel(name string) *ast.Field {
	return &ast.Field{Name: &ast.Name{Value: name}}
}

type funcTransport struct {
	fn func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error)
}

func (f *funcTransport) Execute(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
	return f.fn(ctx, req)
}

func TestExecuteRootFetchMergesData(t *testing.T) {
	state := buildExecTestState(t)
	transport := &funcTransport{fn: func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
		return &executor.SubgraphResponse{Data: map[string]any{"me": map[string]any{"id": "1"}}}, nil
	}}
	ex := executor.New(state, transport)

	plan := &planner.Plan{Root: &planner.FetchNode{
		Subgraph:      "users",
		OperationKind: "query",
		Selections:    []ast.Selection{fieldSel("me")},
	}}

	data, errs := ex.Execute(context.Background(), plan, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	me, ok := data["me"].(map[string]any)
	if !ok || me["id"] != "1" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestExecuteRootFetchTransportErrorNullifiesSelectedFieldsAndRecordsError(t *testing.T) {
	state := buildExecTestState(t)
	transport := &funcTransport{fn: func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
		return nil, errors.New("connection refused")
	}}
	ex := executor.New(state, transport)

	plan := &planner.Plan{Root: &planner.FetchNode{
		Subgraph:      "users",
		OperationKind: "query",
		Selections:    []ast.Selection{fieldSel("me")},
	}}

	data, errs := ex.Execute(context.Background(), plan, nil, nil)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if errs[0].Extensions["serviceName"] != "users" {
		t.Fatalf("expected the error to be attributed to the failing subgraph, got %v", errs[0].Extensions)
	}
	if v, ok := data["me"]; !ok || v != nil {
		t.Fatalf("expected the failed fetch's selection to be nulled out, got %v", data)
	}
}

// TestExecuteParallelMergesBothBranches is scenario S4: two independent
// root fetches dispatched under a ParallelNode both complete and their
// results merge into one response tree, regardless of completion order.
func TestExecuteParallelMergesBothBranches(t *testing.T) {
	state := buildExecTestState(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	barrier := make(chan struct{})
	var once sync.Once

	transport := &funcTransport{fn: func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
		mu.Lock()
		seen[req.Subgraph] = true
		bothSeen := len(seen) == 2
		mu.Unlock()

		if bothSeen {
			once.Do(func() { close(barrier) })
		} else {
			<-barrier // block until the sibling fetch has also started, proving concurrency
		}

		switch req.Subgraph {
		case "users":
			return &executor.SubgraphResponse{Data: map[string]any{"a": map[string]any{"x": "hello"}}}, nil
		case "reviews":
			return &executor.SubgraphResponse{Data: map[string]any{"b": map[string]any{"y": "world"}}}, nil
		default:
			t.Fatalf("unexpected subgraph %q", req.Subgraph)
			return nil, nil
		}
	}}
	ex := executor.New(state, transport)

	plan := &planner.Plan{Root: &planner.ParallelNode{Nodes: []planner.PlanNode{
		&planner.FetchNode{Subgraph: "users", OperationKind: "query", Selections: []ast.Selection{fieldSel("a")}},
		&planner.FetchNode{Subgraph: "reviews", OperationKind: "query", Selections: []ast.Selection{fieldSel("b")}},
	}}}

	data, errs := ex.Execute(context.Background(), plan, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	a, ok := data["a"].(map[string]any)
	if !ok || a["x"] != "hello" {
		t.Fatalf("unexpected data[a]: %v", data["a"])
	}
	b, ok := data["b"].(map[string]any)
	if !ok || b["y"] != "world" {
		t.Fatalf("unexpected data[b]: %v", data["b"])
	}
}

// TestExecuteEntityFetchRebasesSubgraphErrorPath is testable property 7:
// a subgraph-reported error path rooted at "_entities"/index must rebase
// onto the client-facing path, replacing the Flatten's "@" placeholder
// with the representation index instead of appending a redundant
// "_entities" segment.
func TestExecuteEntityFetchRebasesSubgraphErrorPath(t *testing.T) {
	state := buildExecTestState(t)

	transport := &funcTransport{fn: func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
		switch req.Subgraph {
		case "users":
			return &executor.SubgraphResponse{Data: map[string]any{
				"me": map[string]any{
					"reviews": []any{
						map[string]any{"id": "r1"},
						map[string]any{"id": "r2"},
					},
				},
			}}, nil
		case "reviews":
			return &executor.SubgraphResponse{
				Data: map[string]any{
					"_entities": []any{
						map[string]any{"body": "first review"},
						nil,
					},
				},
				Errors: []any{
					map[string]any{
						"message": "could not resolve body",
						"path":    []any{"_entities", float64(1), "body"},
					},
				},
			}, nil
		default:
			t.Fatalf("unexpected subgraph %q", req.Subgraph)
			return nil, nil
		}
	}}
	ex := executor.New(state, transport)

	plan := &planner.Plan{Root: &planner.SequenceNode{Nodes: []planner.PlanNode{
		&planner.FetchNode{
			Subgraph:      "users",
			OperationKind: "query",
			Selections:    []ast.Selection{fieldSel("me")},
		},
		&planner.FlattenNode{
			Path: []string{"me", "reviews", "@"},
			Child: &planner.FetchNode{
				Subgraph:       "reviews",
				OperationKind:  "_entities",
				EntityTypeName: "Review",
				Requires:       []string{"id"},
				Selections:     []ast.Selection{fieldSel("body")},
			},
		},
	}}}

	data, errs := ex.Execute(context.Background(), plan, nil, nil)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one rebased error, got %v", errs)
	}

	wantPath := []any{"me", "reviews", 1, "body"}
	gotPath := errs[0].Path
	if len(gotPath) != len(wantPath) {
		t.Fatalf("unexpected error path: %v", gotPath)
	}
	for i := range wantPath {
		if gotPath[i] != wantPath[i] {
			t.Fatalf("unexpected error path: %v want %v", gotPath, wantPath)
		}
	}

	reviews := data["me"].(map[string]any)["reviews"].([]any)
	first := reviews[0].(map[string]any)
	if first["body"] != "first review" {
		t.Fatalf("unexpected merged first review: %v", first)
	}
}

func TestExecuteConditionNodeSkipsFalseBranch(t *testing.T) {
	state := buildExecTestState(t)
	called := false
	transport := &funcTransport{fn: func(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
		called = true
		return &executor.SubgraphResponse{Data: map[string]any{"secret": "shhh"}}, nil
	}}
	ex := executor.New(state, transport)

	plan := &planner.Plan{Root: &planner.ConditionNode{
		Variable: "includeSecret",
		IfTrue: &planner.FetchNode{
			Subgraph: "users", OperationKind: "query", Selections: []ast.Selection{fieldSel("secret")},
		},
	}}

	data, errs := ex.Execute(context.Background(), plan, map[string]any{"includeSecret": false}, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if called {
		t.Fatal("expected the gated fetch to not run when its condition variable is false")
	}
	if len(data) != 0 {
		t.Fatalf("expected no data when the condition's branch doesn't run, got %v", data)
	}
}
