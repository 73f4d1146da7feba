package subgraphexec

import (
	"golang.org/x/sync/singleflight"

	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

// Dedupe coalesces in-flight subgraph calls sharing the same
// subgraph_dedupe_key (method + URI + selected headers + body) so late
// joiners receive a clone of the result a first caller is already
// fetching, rather than issuing a duplicate upstream request.
//
// No teacher precedent (executor_v2.go's sendRequest fires one call per
// step unconditionally); built with golang.org/x/sync/singleflight, the
// same library already grounding internal/cache's per-key memoization.
type Dedupe struct {
	group singleflight.Group
	hits  func()
}

// NewDedupe builds a Dedupe. onHit, if non-nil, is called once per
// request that joined an in-flight call instead of issuing its own.
func NewDedupe(onHit func()) *Dedupe {
	return &Dedupe{hits: onHit}
}

// Do runs fn at most once for concurrent callers sharing key, and returns
// a deep-enough clone to each caller so one caller's mutation of its
// returned *SubgraphResult never leaks into a concurrent sibling's.
func (d *Dedupe) Do(key fingerprint.Fingerprint, fn func() (*SubgraphResult, error)) (*SubgraphResult, error) {
	keyStr := key.String()
	leader := false
	v, err, shared := d.group.Do(keyStr, func() (any, error) {
		leader = true
		return fn()
	})
	if shared && !leader && d.hits != nil {
		d.hits()
	}
	if err != nil {
		return nil, err
	}
	result := v.(*SubgraphResult)
	if !shared {
		return result, nil
	}
	return cloneResult(result), nil
}

func cloneResult(r *SubgraphResult) *SubgraphResult {
	clone := &SubgraphResult{StatusCode: r.StatusCode}
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	if r.Headers != nil {
		clone.Headers = r.Headers.Clone()
	}
	return clone
}
