// Package policy defines the authorization decision contract the request
// pipeline calls into for each field that carries an @authenticated or
// @requiresScopes requirement. It never verifies identity tokens itself —
// that is left to a JWT-forwarding layer the pipeline treats as an
// external collaborator.
package policy

import (
	"context"

	"github.com/graphql-hive/federation-router/internal/schema"
)

// Decision is the outcome of evaluating one field's authorization
// requirement against the caller's claims.
type Decision int

const (
	// Allow permits the field to be planned and executed normally.
	Allow Decision = iota
	// Deny removes the field from the plan and reports FORBIDDEN.
	Deny
	// RequireAuth removes the field and reports UNAUTHENTICATED — the
	// distinction from Deny matters for the HTTP status (401 vs 403) and
	// the GraphQL extensions.code the error shaper emits.
	RequireAuth
)

// AuthClaims is the pre-decoded identity the pipeline's caller attaches
// to the request context; AuthClaims itself is never derived from a raw
// token inside this package.
type AuthClaims struct {
	Subject       string
	Scopes        []string
	Authenticated bool
}

// AuthorizationEvaluator decides whether one field's requirement is
// satisfied by claims. Implementations must be safe for concurrent use
// across requests sharing one schema generation.
type AuthorizationEvaluator interface {
	Evaluate(ctx context.Context, claims AuthClaims, field schema.FieldAuth) Decision
}

// ScopeEvaluator is the default AuthorizationEvaluator: it checks
// authentication for schema.AuthAuthenticated fields and evaluates a
// scopes disjunction-of-conjunctions for schema.AuthRequiresScopes
// fields.
//
// Grounded on schema.ScopeDNF's own shape (schema/subgraph.go's
// parseScopeDNF); no teacher precedent for a standalone evaluator type,
// since the teacher repo has no authorization pass at all.
type ScopeEvaluator struct{}

// Evaluate implements AuthorizationEvaluator.
func (ScopeEvaluator) Evaluate(_ context.Context, claims AuthClaims, field schema.FieldAuth) Decision {
	switch field.Requirement {
	case schema.AuthNone:
		return Allow
	case schema.AuthAuthenticated:
		if !claims.Authenticated {
			return RequireAuth
		}
		return Allow
	case schema.AuthRequiresScopes:
		if !claims.Authenticated {
			return RequireAuth
		}
		if satisfiesDNF(field.Scopes, claims.Scopes) {
			return Allow
		}
		return Deny
	default:
		return Allow
	}
}

// satisfiesDNF reports whether held satisfies dnf: at least one
// conjunction (inner slice) is fully covered by held.
func satisfiesDNF(dnf schema.ScopeDNF, held []string) bool {
	if len(dnf) == 0 {
		return true
	}
	heldSet := make(map[string]bool, len(held))
	for _, s := range held {
		heldSet[s] = true
	}
	for _, conjunction := range dnf {
		if satisfiesConjunction(conjunction, heldSet) {
			return true
		}
	}
	return false
}

func satisfiesConjunction(required []string, held map[string]bool) bool {
	for _, scope := range required {
		if !held[scope] {
			return false
		}
	}
	return true
}
