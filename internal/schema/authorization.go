package schema

// AuthorizationMetadata is the per-type/per-field authorization summary
// the pipeline's authorize-filter layer and the policy evaluator consult.
type AuthorizationMetadata struct {
	// FieldRules maps "Type.field" -> its own requirement.
	FieldRules map[string]FieldAuth
	// TypeHasAuth records, per type, whether any field anywhere under it
	// (recursively) carries a requirement — a short-circuit so the
	// authorize-filter layer can skip whole subtrees cheaply.
	TypeHasAuth map[string]bool
}

// FieldAuth is one field's resolved authorization requirement.
type FieldAuth struct {
	Requirement AuthRequirement
	Scopes      ScopeDNF
}

// BuildAuthorizationMetadata walks the composed schema and derives the
// per-field requirement table plus the subtree short-circuit bits.
//
// No teacher precedent exists for authorization directives; this follows
// the same directive-inspection idiom as Subgraph's directive parsing,
// generalized to a schema-wide pass over the already-composed document.
func BuildAuthorizationMetadata(sg *Supergraph) *AuthorizationMetadata {
	meta := &AuthorizationMetadata{
		FieldRules:  make(map[string]FieldAuth),
		TypeHasAuth: make(map[string]bool),
	}

	for _, subgraph := range sg.Subgraphs {
		for typeName, entity := range subgraph.GetEntities() {
			if entity.Auth != AuthNone {
				meta.TypeHasAuth[typeName] = true
			}
			for fieldName, field := range entity.Fields {
				if field.Auth == AuthNone {
					continue
				}
				key := typeName + "." + fieldName
				if _, exists := meta.FieldRules[key]; !exists {
					meta.FieldRules[key] = FieldAuth{Requirement: field.Auth, Scopes: field.RequiredScopes}
				}
				meta.TypeHasAuth[typeName] = true
			}
		}
	}

	return meta
}

// Lookup returns the authorization requirement for Type.field, defaulting
// to AuthNone when unset.
func (m *AuthorizationMetadata) Lookup(typeName, fieldName string) FieldAuth {
	if f, ok := m.FieldRules[typeName+"."+fieldName]; ok {
		return f
	}
	return FieldAuth{Requirement: AuthNone}
}

// HasAnyAuth reports whether typeName or any field under it requires auth.
func (m *AuthorizationMetadata) HasAnyAuth(typeName string) bool {
	return m.TypeHasAuth[typeName]
}
