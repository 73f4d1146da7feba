// Package gateway is the HTTP transport: it decodes GraphQL-over-HTTP
// requests (POST JSON body, GET query string), extracts caller claims,
// and hands the result to internal/pipeline, then serializes whatever
// Result comes back. Subscriptions are forwarded, not executed, over a
// WebSocket upgrade (websocket.go); a streaming GET with
// Accept: text/event-stream gets SSE framing (sse.go).
//
// Grounded on gateway/gateway.go's ServeHTTP, which ran decode -> parse ->
// validateAccessibility -> plan -> execute -> encode inline against a
// single *gateway value holding its own planner/executor/superGraph.
// Generalized here: parsing, validation, planning, and execution all move
// into internal/pipeline, so this package's only job is the HTTP framing
// around one already-sequenced Handle call.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/graphql-hive/federation-router/internal/metrics"
	"github.com/graphql-hive/federation-router/internal/pipeline"
	"github.com/graphql-hive/federation-router/internal/policy"
)

// ClaimsFromRequest extracts the caller's identity from an inbound HTTP
// request. AuthClaims decoding (JWT verification, API-key lookup, etc.)
// is intentionally left to the embedder per SPEC_FULL.md §4.11: this
// package only defines the extension point and a permissive default.
type ClaimsFromRequest func(r *http.Request) policy.AuthClaims

// AnonymousClaims is the default ClaimsFromRequest: every caller is
// unauthenticated with no scopes, so only @authenticated / @requiresScopes
// -free fields resolve.
func AnonymousClaims(*http.Request) policy.AuthClaims { return policy.AuthClaims{} }

// Handler serves the /graphql, /health, and /ready routes against one
// Pipeline. Metrics is optional: NewRouter mounts the /metrics route only
// when it is set. The handlers themselves do not update any collector.
type Handler struct {
	Pipeline     *pipeline.Pipeline
	Claims       ClaimsFromRequest
	MaxBodyBytes int64
	Metrics      *metrics.Registry

	// SubgraphDialer forwards subscription operations to their owning
	// subgraph. A nil dialer rejects every "subscribe" message with a
	// configuration error rather than silently dropping the connection.
	SubgraphDialer SubgraphDialer
}

// NewHandler builds a Handler with AnonymousClaims and a 1MiB body cap,
// matching config.LimitsConfig.MaxBodyBytes's documented default.
func NewHandler(p *pipeline.Pipeline) *Handler {
	return &Handler{Pipeline: p, Claims: AnonymousClaims, MaxBodyBytes: 1 << 20}
}

func (h *Handler) claimsFunc() ClaimsFromRequest {
	if h.Claims != nil {
		return h.Claims
	}
	return AnonymousClaims
}

// ServeGraphQL implements the POST/GET /graphql route. It does not look
// at the operation type: a subscription sent here goes through the
// pipeline like any other operation and gets a single response.
// Streamed subscription events are served by the WebSocket route
// (Subscribe).
func (h *Handler) ServeGraphQL(w http.ResponseWriter, r *http.Request) {
	var params pipeline.GraphQLParams
	var err error

	switch r.Method {
	case http.MethodPost:
		params, err = decodePOST(w, r, h.MaxBodyBytes)
	case http.MethodGet:
		params, err = decodeGET(r.URL.Query())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if coded, ok := err.(interface{ HTTPStatus() int }); ok {
			status = coded.HTTPStatus()
		}
		writeJSONError(w, status, err.Error())
		return
	}

	claims := h.claimsFunc()(r)
	result := h.Pipeline.Handle(r.Context(), claims, params, r.Header)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.HTTPStatus)
	_ = json.NewEncoder(w).Encode(result.Response)
}

// ServeHealth implements GET /health: a liveness probe answered as soon
// as the process is accepting connections, independent of schema state.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ServeReady implements GET /ready: a readiness probe that only passes
// once a schema generation has loaded, matching schema.Store.Ready.
func (h *Handler) ServeReady(w http.ResponseWriter, _ *http.Request) {
	if h.Pipeline.Store.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("schema not loaded"))
}

func decodePOST(w http.ResponseWriter, r *http.Request, maxBodyBytes int64) (pipeline.GraphQLParams, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			return pipeline.GraphQLParams{}, errBodyTooLarge
		}
		return pipeline.GraphQLParams{}, err
	}
	return pipeline.DecodeHTTPParams(body)
}

func decodeGET(values url.Values) (pipeline.GraphQLParams, error) {
	params := pipeline.GraphQLParams{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	if raw := values.Get("variables"); raw != "" {
		var vars map[string]any
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return pipeline.GraphQLParams{}, err
		}
		params.Variables = vars
	}
	return params, nil
}

var errBodyTooLarge = bodyTooLargeError{}

type bodyTooLargeError struct{}

func (bodyTooLargeError) Error() string   { return "request body exceeds the configured size limit" }
func (bodyTooLargeError) Code() string    { return "BAD_USER_INPUT" }
func (bodyTooLargeError) HTTPStatus() int { return http.StatusRequestEntityTooLarge }

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{"message": message}},
	})
}
