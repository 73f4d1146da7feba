// Package pipeline sequences one request through every stage between an
// HTTP body and a GraphQL response envelope: parse, validate, normalize,
// authorize, plan, execute, and project. Parse, validation, normalization
// and planning failures short-circuit with a client-facing error. The
// request body size limit is applied before this package, by the
// gateway's HTTP handler.
//
// Grounded on gateway/gateway.go's ServeHTTP, which runs the same
// decode -> parse -> validateAccessibility -> plan -> execute -> encode
// sequence inline in one method; generalized here into named layers so
// caching, authorization, and introspection gating can each own their
// stage instead of being folded into the HTTP handler.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/executor"
	"github.com/graphql-hive/federation-router/internal/normalizer"
	"github.com/graphql-hive/federation-router/internal/parser"
	"github.com/graphql-hive/federation-router/internal/planner"
	"github.com/graphql-hive/federation-router/internal/policy"
	"github.com/graphql-hive/federation-router/internal/projector"
	"github.com/graphql-hive/federation-router/internal/schema"
)

// GraphQLParams is the decoded request body: the three fields every
// GraphQL-over-HTTP transport (POST JSON body, GET query string) reduces
// to before the pipeline's parse stage runs.
type GraphQLParams struct {
	Query         string
	OperationName string
	Variables     map[string]any
}

// Response is the client-facing GraphQL envelope, serialized verbatim as
// the HTTP response body.
type Response struct {
	Data   map[string]any          `json:"data"`
	Errors []projector.GraphQLError `json:"errors,omitempty"`
}

// Result pairs the response envelope with the HTTP status it must be
// served under; a fatal pipeline-stage error and a partial
// (200-with-errors) execution both produce one.
type Result struct {
	Response   Response
	HTTPStatus int
}

// IntrospectionGate decides whether an operation's introspection fields
// may execute, given the request's claims and variables. A nil gate
// never disables introspection.
type IntrospectionGate interface {
	Allow(ctx context.Context, claims policy.AuthClaims, variables map[string]any) bool
}

// OnGraphQLParams runs immediately after request-body decoding, able to
// rewrite params (e.g. resolving a persisted-query hash to query text) or
// reject the request outright.
type OnGraphQLParams func(ctx context.Context, params *GraphQLParams) error

// OnHTTPResponse runs immediately before serialization, even along a
// short-circuit path, letting observability/plugin code see every
// response regardless of which layer produced it.
type OnHTTPResponse func(ctx context.Context, result *Result)

// Pipeline owns every cache and collaborator a request passes through.
// One Pipeline is built per schema generation's lifetime; SchemaReloaded
// purges the query-shape caches that a new generation invalidates.
type Pipeline struct {
	Store *schema.Store

	ParseCache     *parser.Cache
	ValidateCache  *parser.ValidateCache
	NormalizeCache *normalizer.Cache
	PlanCache      *planner.Cache

	ValidationRules []parser.Rule
	ParseLimits     parser.Limits

	Evaluator   policy.AuthorizationEvaluator
	Transport   executor.Transport
	Introspect  IntrospectionGate

	OnParams   []OnGraphQLParams
	OnResponse []OnHTTPResponse
}

// SchemaReloaded purges every cache keyed against the previous schema
// generation: parsed documents stay valid (parsing doesn't depend on the
// schema), but validation, normalization shape, and query plans are all
// derived against the live State and must not survive a swap.
func (p *Pipeline) SchemaReloaded() {
	p.ValidateCache.Purge()
	p.NormalizeCache.Purge()
	p.PlanCache.Purge()
}

// stageError is a fatal pipeline-stage failure: a Result is already fully
// shaped (envelope + HTTP status) and ready to serialize, short-circuiting
// every later layer.
type stageError struct{ result Result }

func (e *stageError) Error() string { return "pipeline: fatal stage error" }

func fatal(err error) *stageError {
	shaped := projector.ClassifyFatal(err)
	return &stageError{result: Result{
		Response:   Response{Data: nil, Errors: []projector.GraphQLError{shaped.GraphQLError}},
		HTTPStatus: shaped.HTTPStatus,
	}}
}

// Handle runs params through every layer and returns the final Result.
// claims is the already-decoded identity the pipeline's HTTP transport
// attached to the request. A disabled introspection short-circuits with
// status 200 and INTROSPECTION_DISABLED; parse, validation, normalization
// and planning failures short-circuit with the status ClassifyFatal maps
// them to. Fields the authorization filter denies are dropped from the
// operation and reported in the errors array, and the rest of the
// operation still executes.
func (p *Pipeline) Handle(ctx context.Context, claims policy.AuthClaims, params GraphQLParams, headers http.Header) Result {
	result := p.handle(ctx, claims, params, headers)
	for _, hook := range p.OnResponse {
		hook(ctx, &result)
	}
	return result
}

func (p *Pipeline) handle(ctx context.Context, claims policy.AuthClaims, params GraphQLParams, headers http.Header) Result {
	for _, hook := range p.OnParams {
		if err := hook(ctx, &params); err != nil {
			if se, ok := err.(*stageError); ok {
				return se.result
			}
			return fatal(err).result
		}
	}

	state := p.Store.Load()
	if state == nil {
		return fatal(fmt.Errorf("schema not yet loaded")).result
	}

	doc, err := p.ParseCache.ParseCached(params.Query, p.ParseLimits)
	if err != nil {
		return fatal(err).result
	}

	if errs := p.ValidateCache.ValidateCached(params.Query, doc, p.ValidationRules); len(errs) > 0 {
		return fatal(errs[0]).result
	}

	normalized, err := p.NormalizeCache.NormalizeCached(params.Query, doc, params.OperationName, params.Variables)
	if err != nil {
		return fatal(err).result
	}

	if p.Introspect != nil && introspects(normalized.Operation.SelectionSet) && !p.Introspect.Allow(ctx, claims, normalized.Variables) {
		return Result{
			Response: Response{
				Data: nil,
				Errors: []projector.GraphQLError{{
					Message:    "introspection is disabled",
					Extensions: map[string]any{"code": "INTROSPECTION_DISABLED"},
				}},
			},
			HTTPStatus: 200,
		}
	}

	rootType, err := rootTypeName(normalized.Operation.Operation)
	if err != nil {
		return fatal(err).result
	}

	filteredSelections, denied := policy.Filter(ctx, state.Supergraph.Doc, state.Authorization, p.Evaluator, claims, normalized.Operation.SelectionSet, rootType)
	deniedErrors := denialErrors(denied)
	normalized.Operation.SelectionSet = filteredSelections

	plan, err := p.PlanCache.GetOrBuild(normalized.CanonicalForm(), func() (*planner.Plan, error) {
		return planner.New(state).Plan(ctx, normalized)
	})
	if err != nil {
		return fatal(err).result
	}

	data, execErrs := executor.New(state, p.Transport).Execute(ctx, plan, normalized.Variables, headers)

	projected, projectErrs := projector.Project(projector.Build(normalized.Operation.SelectionSet, rootType), data, state.PossibleTypes, normalized.Variables, state.Supergraph.FieldType)

	allErrors := make([]projector.GraphQLError, 0, len(deniedErrors)+len(execErrs)+len(projectErrs))
	allErrors = append(allErrors, deniedErrors...)
	allErrors = append(allErrors, projector.ShapeExecutionErrors(execErrs)...)
	allErrors = append(allErrors, projectErrs...)

	return Result{
		Response:   Response{Data: projected, Errors: allErrors},
		HTTPStatus: 200,
	}
}

func denialErrors(denied []policy.DeniedField) []projector.GraphQLError {
	out := make([]projector.GraphQLError, 0, len(denied))
	for _, d := range denied {
		out = append(out, projector.GraphQLError{
			Message:    d.Message,
			Path:       d.Path,
			Extensions: map[string]any{"code": d.Code()},
		})
	}
	return out
}

func rootTypeName(operation string) (string, error) {
	switch operation {
	case "query", "":
		return "Query", nil
	case "mutation":
		return "Mutation", nil
	case "subscription":
		return "Subscription", nil
	default:
		return "", fmt.Errorf("pipeline: unknown operation type %q", operation)
	}
}

// introspects reports whether selections names __schema or __type at the
// root, the two entry points the introspection gate guards.
func introspects(selections []ast.Selection) bool {
	for _, sel := range selections {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		switch f.Name.String() {
		case "__schema", "__type":
			return true
		}
	}
	return false
}

// DecodeHTTPParams decodes a POST body's JSON GraphQL request envelope.
// GET-request query-string decoding is the HTTP transport layer's
// responsibility (it already holds the parsed url.Values); this only
// covers the shape both transports converge on.
func DecodeHTTPParams(body []byte) (GraphQLParams, error) {
	var raw struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return GraphQLParams{}, &parser.ParseError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return GraphQLParams{Query: raw.Query, OperationName: raw.OperationName, Variables: raw.Variables}, nil
}
