package policy_test

import (
	"context"
	"testing"

	"github.com/graphql-hive/federation-router/internal/policy"
	"github.com/graphql-hive/federation-router/internal/schema"
)

func TestScopeEvaluatorAuthNone(t *testing.T) {
	eval := policy.ScopeEvaluator{}
	decision := eval.Evaluate(context.Background(), policy.AuthClaims{}, schema.FieldAuth{Requirement: schema.AuthNone})
	if decision != policy.Allow {
		t.Fatalf("expected Allow, got %v", decision)
	}
}

func TestScopeEvaluatorAuthenticatedRequiresClaims(t *testing.T) {
	eval := policy.ScopeEvaluator{}
	field := schema.FieldAuth{Requirement: schema.AuthAuthenticated}

	if d := eval.Evaluate(context.Background(), policy.AuthClaims{Authenticated: false}, field); d != policy.RequireAuth {
		t.Fatalf("expected RequireAuth, got %v", d)
	}
	if d := eval.Evaluate(context.Background(), policy.AuthClaims{Authenticated: true}, field); d != policy.Allow {
		t.Fatalf("expected Allow, got %v", d)
	}
}

func TestScopeEvaluatorRequiresScopesDNF(t *testing.T) {
	eval := policy.ScopeEvaluator{}
	field := schema.FieldAuth{
		Requirement: schema.AuthRequiresScopes,
		Scopes:      schema.ScopeDNF{{"read:orders"}, {"admin:all"}},
	}

	unauth := policy.AuthClaims{Authenticated: false}
	if d := eval.Evaluate(context.Background(), unauth, field); d != policy.RequireAuth {
		t.Fatalf("expected RequireAuth for unauthenticated caller, got %v", d)
	}

	noMatch := policy.AuthClaims{Authenticated: true, Scopes: []string{"read:products"}}
	if d := eval.Evaluate(context.Background(), noMatch, field); d != policy.Deny {
		t.Fatalf("expected Deny, got %v", d)
	}

	matchFirst := policy.AuthClaims{Authenticated: true, Scopes: []string{"read:orders"}}
	if d := eval.Evaluate(context.Background(), matchFirst, field); d != policy.Allow {
		t.Fatalf("expected Allow via first conjunction, got %v", d)
	}

	matchSecond := policy.AuthClaims{Authenticated: true, Scopes: []string{"admin:all"}}
	if d := eval.Evaluate(context.Background(), matchSecond, field); d != policy.Allow {
		t.Fatalf("expected Allow via second conjunction, got %v", d)
	}
}

func TestDeniedFieldCode(t *testing.T) {
	if got := (policy.DeniedField{Decision: policy.RequireAuth}).Code(); got != "UNAUTHENTICATED" {
		t.Fatalf("expected UNAUTHENTICATED, got %q", got)
	}
	if got := (policy.DeniedField{Decision: policy.Deny}).Code(); got != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %q", got)
	}
}
