// Package executor drives a query plan against live subgraphs: it issues
// fetches, threads entity representations through Flatten boundaries,
// deep-merges responses into one response tree, and collects GraphQL
// errors along the way.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/n9te9/graphql-parser/ast"
	"golang.org/x/sync/errgroup"

	"github.com/graphql-hive/federation-router/internal/planner"
	"github.com/graphql-hive/federation-router/internal/schema"
)

// GraphQLError is one entry of a GraphQL response's top-level "errors"
// array, extended with the serviceName of the subgraph that produced it.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// SubgraphRequest is one outbound operation to a subgraph.
type SubgraphRequest struct {
	Subgraph  string
	Host      string
	Operation string
	Variables map[string]any
	// Headers carries the original client request's headers, for the
	// transport to apply its configured propagation rules against.
	Headers http.Header
}

// SubgraphResponse is a subgraph's decoded GraphQL envelope: Data is the
// "data" object (or nil), Errors is the raw "errors" array if present.
type SubgraphResponse struct {
	Data   map[string]any
	Errors []any
}

// Transport sends one subgraph operation and returns its decoded
// response. Implemented by internal/subgraphexec, kept as an interface
// here so the plan-tree driver doesn't depend on HTTP transport,
// dedupe, retry, or signing concerns.
type Transport interface {
	Execute(ctx context.Context, req SubgraphRequest) (*SubgraphResponse, error)
}

// Executor drives one plan to completion against one schema generation.
//
// Grounded on executor_v2.go's ExecutorV2, generalized from a flat
// StepV2/DependsOn list driven by findReadySteps into a direct recursive
// walk of the Fetch/Flatten/Sequence/Parallel/Condition tree.
type Executor struct {
	state     *schema.State
	transport Transport
}

// New binds an Executor to one schema generation and transport.
func New(state *schema.State, transport Transport) *Executor {
	return &Executor{state: state, transport: transport}
}

type execState struct {
	mu        sync.Mutex
	data      map[string]any
	errors    []GraphQLError
	variables map[string]any
	headers   http.Header
}

// Execute runs plan and returns the merged response data alongside any
// GraphQL errors collected from failed or partially-failed fetches.
// headers is the original client request's headers, forwarded to every
// subgraph fetch for the transport's propagation rules to consume.
func (ex *Executor) Execute(ctx context.Context, plan *planner.Plan, variables map[string]any, headers http.Header) (map[string]any, []GraphQLError) {
	st := &execState{data: make(map[string]any), variables: variables, headers: headers}
	ex.run(ctx, plan.Root, st)

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data, st.errors
}

func (ex *Executor) run(ctx context.Context, node planner.PlanNode, st *execState) {
	switch n := node.(type) {
	case nil:
		return
	case *planner.SequenceNode:
		for _, child := range n.Nodes {
			ex.run(ctx, child, st)
		}
	case *planner.ParallelNode:
		var eg errgroup.Group
		for _, child := range n.Nodes {
			child := child
			eg.Go(func() error {
				ex.run(ctx, child, st)
				return nil
			})
		}
		_ = eg.Wait()
	case *planner.ConditionNode:
		branch := n.IfFalse
		if truthy(st.variables[n.Variable]) {
			branch = n.IfTrue
		}
		if branch != nil {
			ex.run(ctx, branch, st)
		}
	case *planner.FlattenNode:
		ex.runFlatten(ctx, n, st)
	case *planner.FetchNode:
		ex.runRootFetch(ctx, n, st)
	}
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// runFlatten resolves the entity fetch at the base of n.Child against the
// representations reached by n.Path, merges the result back in place, then
// runs any further self-addressed Flatten siblings the planner attached
// for deeper entity jumps.
func (ex *Executor) runFlatten(ctx context.Context, n *planner.FlattenNode, st *execState) {
	fetch, rest := splitFlattenChild(n.Child)
	if fetch != nil {
		ex.runEntityFetch(ctx, fetch, n.Path, st)
	}
	for _, r := range rest {
		ex.run(ctx, r, st)
	}
}

func splitFlattenChild(node planner.PlanNode) (*planner.FetchNode, []planner.PlanNode) {
	switch n := node.(type) {
	case *planner.FetchNode:
		return n, nil
	case *planner.SequenceNode:
		if len(n.Nodes) == 0 {
			return nil, nil
		}
		if f, ok := n.Nodes[0].(*planner.FetchNode); ok {
			return f, n.Nodes[1:]
		}
		return nil, n.Nodes
	default:
		return nil, []planner.PlanNode{node}
	}
}

// runRootFetch issues a top-level query/mutation fetch and merges its
// response data at the root.
func (ex *Executor) runRootFetch(ctx context.Context, n *planner.FetchNode, st *execState) {
	sg := ex.findSubgraph(n.Subgraph)
	if sg == nil {
		ex.recordFetchError(st, n, nil, fmt.Errorf("no such subgraph %q", n.Subgraph))
		return
	}

	st.mu.Lock()
	argDefs := InferArgumentTypes(sg, rootTypeNameForKind(n.OperationKind), n.Selections, st.variables)
	vars := st.variables
	st.mu.Unlock()

	opText, err := BuildRootOperation(n, argDefs)
	if err != nil {
		ex.recordFetchError(st, n, nil, err)
		return
	}

	resp, err := ex.transport.Execute(ctx, SubgraphRequest{
		Subgraph: n.Subgraph, Host: sg.Host, Operation: opText, Variables: vars, Headers: st.headers,
	})
	if err != nil {
		ex.recordFetchError(st, n, nil, err)
		ex.nullifyRootFetch(st, n)
		return
	}

	ex.recordSubgraphErrors(st, n, nil, resp.Errors)

	if resp.Data == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := Merge(st.data, resp.Data, nil); err != nil {
		st.errors = append(st.errors, GraphQLError{
			Message:    fmt.Sprintf("failed to merge response from %s: %v", n.Subgraph, err),
			Extensions: map[string]any{"serviceName": n.Subgraph},
		})
	}
}

// runEntityFetch extracts entity representations from the data already
// merged at path, sends an _entities query, and merges the results back
// at path. A fetch with zero reachable representations is skipped
// silently, matching the source-has-nothing-to-resolve case.
func (ex *Executor) runEntityFetch(ctx context.Context, n *planner.FetchNode, path []string, st *execState) {
	sg := ex.findSubgraph(n.Subgraph)
	if sg == nil {
		ex.recordFetchError(st, n, path, fmt.Errorf("no such subgraph %q", n.Subgraph))
		return
	}

	st.mu.Lock()
	reps := ExtractRepresentations(st.data, path, n.EntityTypeName, n.Requires)
	st.mu.Unlock()

	if len(reps) == 0 {
		return
	}

	opText, err := BuildEntityOperation(n)
	if err != nil {
		ex.recordFetchError(st, n, path, err)
		return
	}

	repsAny := make([]any, len(reps))
	for i, r := range reps {
		repsAny[i] = r
	}

	resp, err := ex.transport.Execute(ctx, SubgraphRequest{
		Subgraph: n.Subgraph, Host: sg.Host, Operation: opText,
		Variables: map[string]any{"representations": repsAny}, Headers: st.headers,
	})
	if err != nil {
		ex.recordFetchError(st, n, path, err)
		ex.nullifyEntityFetch(st, n, path)
		return
	}

	ex.recordSubgraphErrors(st, n, path, resp.Errors)

	if resp.Data == nil {
		return
	}
	entities, _ := resp.Data["_entities"].([]any)
	if entities == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := MergeEntityResults(st.data, path, entities); err != nil {
		st.errors = append(st.errors, GraphQLError{
			Message:    fmt.Sprintf("failed to merge entity results from %s: %v", n.Subgraph, err),
			Path:       pathToErrorSegments(path),
			Extensions: map[string]any{"serviceName": n.Subgraph},
		})
	}
}

func (ex *Executor) nullifyRootFetch(st *execState, n *planner.FetchNode) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sel := range n.Selections {
		if f, ok := sel.(*ast.Field); ok {
			key := selectionResponseKey(f)
			if _, exists := st.data[key]; !exists {
				st.data[key] = nil
			}
		}
	}
}

func (ex *Executor) nullifyEntityFetch(st *execState, n *planner.FetchNode, path []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	keySet := make(map[string]bool, len(n.Requires))
	for _, k := range n.Requires {
		keySet[k] = true
	}

	for _, entity := range NavigatePath(st.data, path) {
		for _, sel := range n.Selections {
			f, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			key := selectionResponseKey(f)
			if key == "__typename" || keySet[key] {
				continue
			}
			entity[key] = nil
		}
	}
}

func selectionResponseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.String() != "" {
		return f.Alias.String()
	}
	return f.Name.String()
}

func (ex *Executor) findSubgraph(name string) *schema.Subgraph {
	for _, sg := range ex.state.Supergraph.Subgraphs {
		if sg.Name == name {
			return sg
		}
	}
	return nil
}

func rootTypeNameForKind(operationKind string) string {
	switch operationKind {
	case "mutation":
		return "Mutation"
	case "subscription":
		return "Subscription"
	default:
		return "Query"
	}
}

func pathToErrorSegments(path []string) []any {
	var out []any
	for _, seg := range path {
		if seg == "@" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// timeoutError matches the net.Error convention: a transport error can
// report whether it was a deadline expiry without recordFetchError
// needing to import subgraphexec (which itself imports this package).
type timeoutError interface {
	Timeout() bool
}

func (ex *Executor) recordFetchError(st *execState, n *planner.FetchNode, path []string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ext := map[string]any{"serviceName": n.Subgraph}
	if te, ok := err.(timeoutError); ok && te.Timeout() {
		ext["timeout"] = true
	}
	st.errors = append(st.errors, GraphQLError{
		Message:    err.Error(),
		Path:       pathToErrorSegments(path),
		Extensions: ext,
	})
}

func (ex *Executor) recordSubgraphErrors(st *execState, n *planner.FetchNode, path []string, errs []any) {
	if len(errs) == 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, item := range errs {
		em, ok := item.(map[string]any)
		if !ok {
			continue
		}
		message, _ := em["message"].(string)
		if message == "" {
			message = "subgraph returned an error"
		}

		errPath := rebaseErrorPath(path, toAnySlice(em["path"]))
		ext := map[string]any{"serviceName": n.Subgraph}
		if extras, ok := em["extensions"].(map[string]any); ok {
			for k, v := range extras {
				ext[k] = v
			}
		}

		st.errors = append(st.errors, GraphQLError{Message: message, Path: errPath, Extensions: ext})
	}
}

// rebaseErrorPath rewrites a subgraph-reported error path onto the
// client-facing path. For a root fetch, path carries no "@" placeholder
// and subgraphPath is appended as-is. For an entity fetch, path ends in
// the Flatten node's "@" placeholder (e.g. ["me","friends",@]) and the
// subgraph reports its own path rooted at the _entities query
// (["_entities", i, "x", "y"]); "@" is replaced with the representation
// index i and the "_entities"/i prefix is dropped, so the two combine
// into ["me","friends",i,"x","y"] rather than growing an extra
// "_entities" segment.
func rebaseErrorPath(path []string, subgraphPath []any) []any {
	if len(subgraphPath) >= 2 && subgraphPath[0] == "_entities" {
		index := subgraphPath[1]
		if f, ok := index.(float64); ok {
			index = int(f)
		}
		rest := subgraphPath[2:]

		out := make([]any, 0, len(path)+len(rest))
		for _, seg := range path {
			if seg == "@" {
				out = append(out, index)
				continue
			}
			out = append(out, seg)
		}
		return append(out, rest...)
	}

	return append(pathToErrorSegments(path), subgraphPath...)
}

func toAnySlice(v any) []any {
	arr, _ := v.([]any)
	return arr
}
