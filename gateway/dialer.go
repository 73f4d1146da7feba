package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// wsSubgraphDialer is the default SubgraphDialer: it opens one
// graphql-transport-ws connection per forwarded subscription directly to
// the owning subgraph's host (the same host subgraphexec uses for
// queries/mutations, with the scheme swapped to ws/wss).
type wsSubgraphDialer struct {
	Dialer *websocket.Dialer
}

// NewSubgraphDialer builds the default WebSocket-forwarding SubgraphDialer.
func NewSubgraphDialer() SubgraphDialer {
	return &wsSubgraphDialer{Dialer: &websocket.Dialer{Subprotocols: []string{graphqlTransportWSProtocol}}}
}

func (d *wsSubgraphDialer) Dial(ctx context.Context, host string, payload subscribePayload) (<-chan json.RawMessage, error) {
	wsURL, err := toWebSocketURL(host)
	if err != nil {
		return nil, err
	}

	conn, _, err := d.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing subgraph %q: %w", host, err)
	}

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		conn.Close()
		return nil, err
	}

	subscribePayloadBytes, err := json.Marshal(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(wsMessage{ID: "1", Type: "subscribe", Payload: subscribePayloadBytes}); err != nil {
		conn.Close()
		return nil, err
	}

	out := make(chan json.RawMessage, 1)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "next":
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			case "complete", "error":
				return
			}
		}
	}()

	return out, nil
}

func toWebSocketURL(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parsing subgraph host %q: %w", host, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
