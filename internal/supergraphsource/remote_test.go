package supergraphsource_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graphql-hive/federation-router/internal/schema"
	"github.com/graphql-hive/federation-router/internal/supergraphsource"
)

func serviceSDLServer(t *testing.T, sdl func() string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"_service":{"sdl":%q}}}`, sdl())
	}))
}

func TestRemoteSourceEmitsComposedSourcesOnChange(t *testing.T) {
	var generation atomic.Int32
	generation.Store(1)
	srv := serviceSDLServer(t, func() string {
		return fmt.Sprintf("type Query { field%d: ID }", generation.Load())
	})
	defer srv.Close()

	src := supergraphsource.NewRemoteSource([]supergraphsource.Endpoint{{Name: "products", Host: srv.URL}})
	src.PollInterval = 20 * time.Millisecond
	src.FetchTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := waitForEvent(t, events)
	if first.Err != nil {
		t.Fatalf("unexpected error event: %v", first.Err)
	}
	var sources []schema.SubgraphSource
	if err := json.Unmarshal(first.Changed, &sources); err != nil {
		t.Fatalf("decoding sources: %v", err)
	}
	if len(sources) != 1 || sources[0].Name != "products" {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	generation.Store(2)

	second := waitForEvent(t, events)
	if second.Err != nil {
		t.Fatalf("unexpected error event: %v", second.Err)
	}
	if second.Unchanged {
		t.Fatal("expected a Changed event after SDL content changed")
	}
}

func TestRemoteSourceEmitsErrorWhenEndpointUnreachable(t *testing.T) {
	src := supergraphsource.NewRemoteSource([]supergraphsource.Endpoint{{Name: "down", Host: "http://127.0.0.1:0"}})
	src.PollInterval = 20 * time.Millisecond
	src.FetchTimeout = 200 * time.Millisecond
	src.FetchRetries = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitForEvent(t, events)
	if ev.Err == nil {
		t.Fatal("expected an error event for an unreachable endpoint")
	}
}

func waitForEvent(t *testing.T, events <-chan supergraphsource.SourceEvent) supergraphsource.SourceEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return supergraphsource.SourceEvent{}
	}
}
