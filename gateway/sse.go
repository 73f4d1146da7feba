package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/graphql-hive/federation-router/internal/pipeline"
)

// sseHeartbeatInterval is chosen generously above the idle-connection
// timeouts typical of reverse proxies, since the operation itself
// resolves in milliseconds and the heartbeat only exists to keep
// intermediaries from closing the stream early.
const sseHeartbeatInterval = 15 * time.Second

// ServeGraphQLStream serves one GraphQL operation over
// Accept: text/event-stream, emitting the resolved result as a single
// "next" event followed by a "complete" event, with periodic comment-line
// heartbeats between them so intermediating proxies don't time out the
// connection while the operation is in flight.
//
// Grounded on SPEC_FULL.md's SSE decision: no third-party SSE library
// appears anywhere in the example pack, so framing is implemented
// directly over http.ResponseWriter + http.Flusher. The heartbeat/
// completion race is resolved with a sync.Once per connection: once
// "complete" has been written, a heartbeat tick firing concurrently is a
// no-op rather than writing past a closed event stream.
func (h *Handler) ServeGraphQLStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusNotImplemented)
		return
	}

	params, err := h.decodeStreamParams(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	var closeOnce sync.Once
	stopHeartbeat := func() { closeOnce.Do(func() { close(done) }) }
	defer stopHeartbeat()

	heartbeatExited := make(chan struct{})
	go func() {
		defer close(heartbeatExited)
		ticker := time.NewTicker(sseHeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			case <-done:
				return
			}
		}
	}()

	claims := h.claimsFunc()(r)
	result := h.Pipeline.Handle(r.Context(), claims, params, r.Header)

	body, err := json.Marshal(result.Response)
	stopHeartbeat()
	<-heartbeatExited
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: next\ndata: %s\n\n", body)
	fmt.Fprint(w, "event: complete\ndata: {}\n\n")
	flusher.Flush()
}

func (h *Handler) decodeStreamParams(w http.ResponseWriter, r *http.Request) (pipeline.GraphQLParams, error) {
	switch r.Method {
	case http.MethodGet:
		return decodeGET(r.URL.Query())
	case http.MethodPost:
		return decodePOST(w, r, h.MaxBodyBytes)
	default:
		return pipeline.GraphQLParams{}, fmt.Errorf("method %s not allowed on a streaming request", r.Method)
	}
}
