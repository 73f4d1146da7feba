package subgraphexec_test

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/graphql-hive/federation-router/internal/subgraphexec"
)

func TestCompileRulesDropsHopByHopHeaders(t *testing.T) {
	rs := subgraphexec.CompileRules([]subgraphexec.HeaderRule{
		{Kind: subgraphexec.RulePassthrough, From: "Connection"},
		{Kind: subgraphexec.RulePassthrough, From: "Authorization"},
	})

	incoming := http.Header{}
	incoming.Set("Connection", "keep-alive")
	incoming.Set("Authorization", "Bearer abc")

	out := rs.Apply(incoming)
	if out.Get("Connection") != "" {
		t.Fatalf("expected Connection to be dropped as hop-by-hop, got %q", out.Get("Connection"))
	}
	if out.Get("Authorization") != "Bearer abc" {
		t.Fatalf("expected Authorization to pass through, got %q", out.Get("Authorization"))
	}
}

func TestApplyPassthroughRename(t *testing.T) {
	rs := subgraphexec.CompileRules([]subgraphexec.HeaderRule{
		{Kind: subgraphexec.RulePassthrough, From: "X-Request-Id"},
		{Kind: subgraphexec.RuleRename, From: "X-Tenant", To: "X-Internal-Tenant"},
	})

	incoming := http.Header{}
	incoming.Set("X-Request-Id", "abc-123")
	incoming.Set("X-Tenant", "acme")

	out := rs.Apply(incoming)
	want := http.Header{
		"X-Request-Id":      {"abc-123"},
		"X-Internal-Tenant": {"acme"},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyDefaultOnlyWhenClientDidntSendIt(t *testing.T) {
	rs := subgraphexec.CompileRules([]subgraphexec.HeaderRule{
		{Kind: subgraphexec.RuleDefault, To: "X-Source", Value: "router"},
	})

	clientSupplied := http.Header{}
	clientSupplied.Set("X-Source", "client")
	out := rs.Apply(clientSupplied)
	if out.Get("X-Source") != "" {
		t.Fatalf("expected default to be skipped since client already set the header, got %q", out.Get("X-Source"))
	}

	out = rs.Apply(http.Header{})
	if out.Get("X-Source") != "router" {
		t.Fatalf("expected default value to be applied, got %q", out.Get("X-Source"))
	}
}

func TestApplyOnNilRuleSetReturnsEmptyHeaders(t *testing.T) {
	var rs *subgraphexec.RuleSet
	out := rs.Apply(http.Header{"X-Whatever": {"1"}})
	if len(out) != 0 {
		t.Fatalf("expected a nil RuleSet to forward nothing, got %v", out)
	}
}

func TestDedupeFingerprintHeadersDedupesOutgoingNames(t *testing.T) {
	rs := subgraphexec.CompileRules([]subgraphexec.HeaderRule{
		{Kind: subgraphexec.RulePassthrough, From: "X-Tenant"},
		{Kind: subgraphexec.RuleRename, From: "X-Tenant-Alt", To: "X-Tenant"},
	})

	got := subgraphexec.DedupeFingerprintHeaders(rs)
	if len(got) != 1 || got[0] != "X-Tenant" {
		t.Fatalf("expected a single deduped header name, got %v", got)
	}
}

func TestDedupeFingerprintHeadersOnNilRuleSet(t *testing.T) {
	if got := subgraphexec.DedupeFingerprintHeaders(nil); got != nil {
		t.Fatalf("expected nil for a nil RuleSet, got %v", got)
	}
}
