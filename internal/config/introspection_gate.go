package config

import (
	"context"

	"github.com/graphql-hive/federation-router/internal/policy"
)

// IntrospectionGate adapts IntrospectionConfig to pipeline.IntrospectionGate,
// exposing claims/variables to the configured expression as "subject",
// "authenticated", "scopes", and "variables".
type IntrospectionGate struct {
	Config IntrospectionConfig
}

// Allow implements pipeline.IntrospectionGate. A failed expression
// evaluation fails closed (introspection denied) rather than risking a
// misconfigured expression silently exposing the schema.
func (g IntrospectionGate) Allow(_ context.Context, claims policy.AuthClaims, variables map[string]any) bool {
	env := map[string]any{
		"authenticated": claims.Authenticated,
		"subject":       claims.Subject,
		"scopes":        claims.Scopes,
		"variables":     variables,
	}
	allowed, err := g.Config.Eval(env)
	if err != nil {
		return false
	}
	return allowed
}
