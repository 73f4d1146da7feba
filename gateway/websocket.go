package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// graphqlTransportWS implements the subset of the graphql-transport-ws
// subprotocol this router needs: connection_init/connection_ack, subscribe,
// next, error, complete, and ping/pong. Subscription *forwarding* only —
// the router never merges or re-plans a subscription's stream, it opens
// one upstream WebSocket to the owning subgraph and relays frames, per
// Non-goals ("subscription multiplexing beyond forwarding").
const graphqlTransportWSProtocol = "graphql-transport-ws"

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{graphqlTransportWSProtocol},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// SubgraphDialer opens a WebSocket to one subgraph's subscription
// endpoint, forwarding the client's subscribe payload verbatim and
// yielding the payload of every "next" frame the subgraph sends until it
// sends "complete" or "error", closes the stream, or ctx is canceled.
type SubgraphDialer interface {
	Dial(ctx context.Context, host string, payload subscribePayload) (<-chan json.RawMessage, error)
}

// Subscribe upgrades r to a graphql-transport-ws connection and forwards
// every subscribe operation to the subgraph that owns its root field.
//
// Grounded on gateway/gateway.go's request handling for shape (decode,
// resolve plan target, dispatch) generalized from a single synchronous
// POST into a long-lived bidirectional connection; no teacher precedent
// for WebSocket handling itself, since the teacher is POST-only.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	writeMessage := func(msg wsMessage) error {
		mu.Lock()
		defer mu.Unlock()
		return conn.WriteJSON(msg)
	}

	active := map[string]context.CancelFunc{}
	var activeMu sync.Mutex

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "connection_init":
			_ = writeMessage(wsMessage{Type: "connection_ack"})

		case "ping":
			_ = writeMessage(wsMessage{Type: "pong"})

		case "subscribe":
			var payload subscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				_ = writeMessage(errorMessage(msg.ID, err.Error()))
				continue
			}
			subCtx, subCancel := context.WithCancel(ctx)
			activeMu.Lock()
			active[msg.ID] = subCancel
			activeMu.Unlock()
			go h.forwardSubscription(subCtx, msg.ID, payload, writeMessage)

		case "complete":
			activeMu.Lock()
			if cancelFn, ok := active[msg.ID]; ok {
				cancelFn()
				delete(active, msg.ID)
			}
			activeMu.Unlock()
		}
	}

	activeMu.Lock()
	for _, cancelFn := range active {
		cancelFn()
	}
	activeMu.Unlock()
}

func (h *Handler) forwardSubscription(ctx context.Context, id string, payload subscribePayload, write func(wsMessage) error) {
	state := h.Pipeline.Store.Load()
	if state == nil {
		_ = write(errorMessage(id, "schema not yet loaded"))
		return
	}

	rootField, err := subscriptionRootField(payload.Query)
	if err != nil {
		_ = write(errorMessage(id, err.Error()))
		return
	}

	subgraphs := state.Supergraph.GetSubgraphsForField("Subscription", rootField)
	if len(subgraphs) == 0 {
		_ = write(errorMessage(id, fmt.Sprintf("no subgraph resolves Subscription.%s", rootField)))
		return
	}
	owner := subgraphs[0]

	if h.SubgraphDialer == nil {
		_ = write(errorMessage(id, "subscription forwarding is not configured"))
		return
	}

	frames, err := h.SubgraphDialer.Dial(ctx, owner.Host, payload)
	if err != nil {
		_ = write(errorMessage(id, err.Error()))
		return
	}

	once := sync.Once{}
	complete := func() {
		once.Do(func() { _ = write(wsMessage{ID: id, Type: "complete"}) })
	}
	defer complete()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = write(wsMessage{ID: id, Type: "next", Payload: frame})
		}
	}
}

func errorMessage(id, message string) wsMessage {
	payload, _ := json.Marshal([]map[string]any{{"message": message}})
	return wsMessage{ID: id, Type: "error", Payload: payload}
}

// subscriptionRootField parses query and returns the single root field
// name of its subscription operation, the only piece of the operation the
// forwarding path needs to resolve which subgraph owns the stream.
func subscriptionRootField(query string) (string, error) {
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return "", fmt.Errorf("parsing subscription: %s", strings.Join(p.Errors(), "; "))
	}

	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok || opDef.Operation != ast.Subscription {
			continue
		}
		if len(opDef.SelectionSet) == 0 {
			return "", fmt.Errorf("subscription has no root field")
		}
		field, ok := opDef.SelectionSet[0].(*ast.Field)
		if !ok {
			return "", fmt.Errorf("subscription root selection is not a field")
		}
		return field.Name.String(), nil
	}
	return "", fmt.Errorf("document has no subscription operation")
}
