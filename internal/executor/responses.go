package executor

import (
	"sync"

	json "github.com/goccy/go-json"
)

// ResponsesArena is a per-request append-only store of raw subgraph
// response bytes, each addressable by an opaque index. Execution values
// decoded from these bytes stay valid for the arena's lifetime, which the
// pipeline pins to the HTTP response being written.
//
// No teacher precedent exists for a byte arena (the teacher decodes each
// subgraph response independently into map[string]any and never borrows
// bytes); this uses goccy/go-json, already present in the teacher's own
// gateway/schema_fetcher.go for SDL introspection decoding, for its lower
// allocation count on repeated decodes.
type ResponsesArena struct {
	mu    sync.Mutex
	bytes [][]byte
}

// ResponseRef addresses one stored response body.
type ResponseRef int

// Put appends body to the arena and returns its reference.
func (a *ResponsesArena) Put(body []byte) ResponseRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytes = append(a.bytes, body)
	return ResponseRef(len(a.bytes) - 1)
}

// Decode unmarshals the referenced response body into dst.
func (a *ResponsesArena) Decode(ref ResponseRef, dst any) error {
	a.mu.Lock()
	body := a.bytes[ref]
	a.mu.Unlock()
	return json.Unmarshal(body, dst)
}

// NewResponsesArena returns an empty arena for one request.
func NewResponsesArena() *ResponsesArena { return &ResponsesArena{} }
