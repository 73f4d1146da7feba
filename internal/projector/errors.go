package projector

import (
	"net/http"

	"github.com/graphql-hive/federation-router/internal/executor"
	"github.com/graphql-hive/federation-router/internal/normalizer"
	"github.com/graphql-hive/federation-router/internal/parser"
	"github.com/graphql-hive/federation-router/internal/planner"
)

// GraphQLError is one entry of a GraphQL response's "errors" array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Coded is implemented by stage errors (policy decisions, body-size
// guards, introspection gating) that carry their own GraphQL extension
// code and HTTP status without projector needing to import their
// packages directly — keeps this classifier open to stages added later
// in the pipeline without a new type-switch case per stage.
type Coded interface {
	error
	Code() string
	HTTPStatus() int
}

// Shaped is a fully classified, client-ready error: the GraphQL error
// body plus the HTTP status the response envelope should carry.
type Shaped struct {
	GraphQLError
	HTTPStatus int
}

// ClassifyFatal maps a pipeline-stage error (one that prevents any data
// from being produced at all — parse/validate/normalize/plan failures,
// request-level rejections) to its taxonomy entry.
//
// Grounded on spec.md's error-handling design: the (Kind, HTTP,
// GraphQL code) table in §7, realized here as a type switch since this
// Go codebase has no generic "tagged enum" to pattern-match the way the
// distilled design's source language does.
func ClassifyFatal(err error) Shaped {
	switch e := err.(type) {
	case *parser.ParseError:
		return Shaped{
			GraphQLError: GraphQLError{Message: e.Message, Extensions: map[string]any{"code": "GRAPHQL_PARSE_FAILED"}},
			HTTPStatus:   http.StatusBadRequest,
		}
	case *parser.ValidationError:
		code := e.Code
		if code == "" {
			code = "GRAPHQL_VALIDATION_FAILED"
		}
		return Shaped{
			GraphQLError: GraphQLError{Message: e.Message, Extensions: map[string]any{"code": code}},
			HTTPStatus:   http.StatusBadRequest,
		}
	case *normalizer.SpecifiedOperationNotFound, *normalizer.OperationNotFound, *normalizer.FragmentDefinitionNotFound:
		return Shaped{
			GraphQLError: GraphQLError{Message: e.(error).Error(), Extensions: map[string]any{"code": "OPERATION_RESOLUTION_FAILURE"}},
			HTTPStatus:   http.StatusBadRequest,
		}
	case *planner.QueryPlanError:
		if e.Kind == "Timeout" {
			return Shaped{
				GraphQLError: GraphQLError{Message: e.Message, Extensions: map[string]any{"code": "QUERY_PLANNING_TIMEOUT"}},
				HTTPStatus:   http.StatusGatewayTimeout,
			}
		}
		return Shaped{
			GraphQLError: GraphQLError{Message: e.Message, Extensions: map[string]any{"code": "INTERNAL"}},
			HTTPStatus:   http.StatusInternalServerError,
		}
	case Coded:
		return Shaped{
			GraphQLError: GraphQLError{Message: e.Error(), Extensions: map[string]any{"code": e.Code()}},
			HTTPStatus:   e.HTTPStatus(),
		}
	default:
		return Shaped{
			GraphQLError: GraphQLError{Message: err.Error(), Extensions: map[string]any{"code": "INTERNAL"}},
			HTTPStatus:   http.StatusInternalServerError,
		}
	}
}

// ShapeExecutionErrors converts mid-execution GraphQLErrors collected by
// the plan executor (subgraph errors, subgraph timeouts, merge
// failures) into client-facing errors. The executor has already
// rebased each error's Path by prefixing it with the Flatten path the
// originating fetch ran under (property 7: a subgraph error at
// ["x","y"] under Flatten(path=["me","friends",@]) for element i
// becomes ["me","friends",i,"x","y"]); this stage only fills in a
// default extensions.code when the subgraph didn't supply one and a
// SubgraphTimeout wasn't already distinguished upstream.
//
// Grounded on spec.md §7's propagation rule: these never abort the
// response, they ride alongside data-so-far under null propagation.
func ShapeExecutionErrors(errs []executor.GraphQLError) []GraphQLError {
	out := make([]GraphQLError, 0, len(errs))
	for _, e := range errs {
		ext := e.Extensions
		if ext == nil {
			ext = map[string]any{}
		}
		if _, ok := ext["code"]; !ok {
			if _, timedOut := ext["timeout"]; timedOut {
				ext["code"] = "SUBGRAPH_TIMEOUT"
			} else {
				ext["code"] = "SUBGRAPH_ERROR"
			}
		}
		out = append(out, GraphQLError{Message: e.Message, Path: e.Path, Extensions: ext})
	}
	return out
}
