// Package fingerprint computes the stable 64-bit hashes used to key the
// parse/validate/plan caches and the subgraph dedupe table.
package fingerprint

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a stable 64-bit hash summarizing an input for caching or
// dedupe purposes.
type Fingerprint uint64

// OfQuery hashes raw operation text. parse_cache_key and validate_cache_key
// both derive from this (validation is a pure function of
// (schema generation, query text)).
func OfQuery(queryText string) Fingerprint {
	return Fingerprint(xxhash.Sum64String(queryText))
}

// OfCanonicalOperation hashes a normalized operation's canonical textual
// form, used as plan_cache_key.
func OfCanonicalOperation(canonicalForm string) Fingerprint {
	return Fingerprint(xxhash.Sum64String(canonicalForm))
}

// OfSubgraphRequest hashes (method, uri, selected headers, body) into the
// subgraph_dedupe_key. dedupeHeaders names which request headers
// participate, sorted for determinism across processes.
func OfSubgraphRequest(method, uri string, headers http.Header, dedupeHeaders []string, body []byte) Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(method)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(uri)
	_, _ = h.WriteString("\x00")

	names := append([]string(nil), dedupeHeaders...)
	sort.Strings(names)
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(headers.Get(name))
		_, _ = h.WriteString("\x00")
	}
	_, _ = h.Write(body)

	return Fingerprint(h.Sum64())
}

// Shard maps a fingerprint to one of n shards, for sharded concurrent caches.
func (f Fingerprint) Shard(n int) int {
	if n <= 1 {
		return 0
	}
	return int(uint64(f) % uint64(n))
}

// String renders f as lowercase hex without leading zeros (255 renders as
// "ff"), suitable for map/singleflight group keys.
func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 16)
}
