// Package subgraphexec sends operations to subgraphs over HTTP: request
// de-duplication, per-subgraph retry/backoff and timeout, header
// propagation, and optional HMAC/SigV4 request signing.
package subgraphexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graphql-hive/federation-router/internal/executor"
	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

// SubgraphResult is one subgraph HTTP response, cheap to clone for
// dedupe late joiners.
type SubgraphResult struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// SubgraphTimeout is returned when a per-subgraph deadline expires before
// a response is received.
type SubgraphTimeout struct {
	Subgraph string
}

func (e *SubgraphTimeout) Error() string {
	return fmt.Sprintf("subgraph %q timed out", e.Subgraph)
}

// Timeout reports true unconditionally, letting callers that only hold
// an `error` detect a timeout via the net.Error-style Timeout() bool
// convention without importing this package.
func (e *SubgraphTimeout) Timeout() bool { return true }

// Settings configures dispatch to one subgraph. A zero-value Settings has
// no retries, no timeout, no dedupe, no signing — matching a subgraph with
// no traffic_shaping override.
type Settings struct {
	Timeout       time.Duration
	Retry         RetryPolicy
	RetryStatuses map[int]bool
	DedupeEnabled bool
	Headers       *RuleSet
	HMAC          *HMACSigner
	SigV4         *SigV4Signer
}

// Client dispatches operations to subgraphs over HTTP, implementing
// executor.Transport.
//
// Grounded on executor_v2.go's sendRequest (bare http.Client.Do over a
// marshaled {query, variables} body), extended with the per-subgraph
// dedupe/retry/timeout/header/signing concerns executor_v2.go has no
// equivalent for.
type Client struct {
	httpClient *http.Client
	dedupe     *Dedupe
	settings   map[string]Settings
	defaults   Settings
}

// New builds a Client. httpClient should be configured with a shared
// http.Transport tuned via MaxConnsPerHost/IdleConnTimeout per subgraph
// origin pooling.
func New(httpClient *http.Client, settings map[string]Settings, defaults Settings, dedupeHits func()) *Client {
	return &Client{
		httpClient: httpClient,
		dedupe:     NewDedupe(dedupeHits),
		settings:   settings,
		defaults:   defaults,
	}
}

func (c *Client) settingsFor(subgraph string) Settings {
	if s, ok := c.settings[subgraph]; ok {
		return s
	}
	return c.defaults
}

// Execute implements executor.Transport.
func (c *Client) Execute(ctx context.Context, req executor.SubgraphRequest) (*executor.SubgraphResponse, error) {
	settings := c.settingsFor(req.Subgraph)

	body, err := json.Marshal(map[string]any{
		"query":     req.Operation,
		"variables": req.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("subgraphexec: marshal request: %w", err)
	}

	result, err := c.dispatch(ctx, req.Subgraph, req.Host, req.Headers, body, settings)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data   map[string]any `json:"data"`
		Errors []any          `json:"errors"`
	}
	if err := json.Unmarshal(result.Body, &envelope); err != nil {
		return nil, fmt.Errorf("subgraphexec: decode response from %s: %w", req.Subgraph, err)
	}

	return &executor.SubgraphResponse{Data: envelope.Data, Errors: envelope.Errors}, nil
}

func (c *Client) dispatch(ctx context.Context, subgraphName, host string, clientHeaders http.Header, body []byte, settings Settings) (*SubgraphResult, error) {
	outgoing := settings.Headers.Apply(clientHeaders)

	do := func() (*SubgraphResult, error) {
		return c.doOnce(ctx, subgraphName, host, outgoing, body, settings)
	}

	if !settings.DedupeEnabled {
		return do()
	}

	key := fingerprint.OfSubgraphRequest(http.MethodPost, host, outgoing, DedupeFingerprintHeaders(settings.Headers), body)
	return c.dedupe.Do(key, do)
}

func (c *Client) doOnce(ctx context.Context, subgraphName, host string, outgoingHeaders http.Header, body []byte, settings Settings) (*SubgraphResult, error) {
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	send := func() (*http.Response, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
		if err != nil {
			return nil, nil, fmt.Errorf("subgraphexec: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for name, vals := range outgoingHeaders {
			req.Header[name] = vals
		}
		if settings.HMAC != nil {
			req.Header.Set(settings.HMAC.ExtensionName, settings.HMAC.Sign(body))
		}
		if settings.SigV4 != nil {
			if err := settings.SigV4.Sign(req, body, time.Now()); err != nil {
				return nil, nil, fmt.Errorf("subgraphexec: sign request: %w", err)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("subgraphexec: read response: %w", err)
		}
		return resp, respBody, nil
	}

	resp, respBody, err := doWithRetry(ctx, settings.Retry, settings.RetryStatuses, send)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &SubgraphTimeout{Subgraph: subgraphName}
		}
		return nil, err
	}

	return &SubgraphResult{StatusCode: resp.StatusCode, Headers: resp.Header, Body: respBody}, nil
}
