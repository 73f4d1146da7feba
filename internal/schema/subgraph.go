// Package schema derives the router's schema state from a supergraph SDL:
// per-subgraph entity metadata, the composed consumer schema, the
// satisfiability graph the planner walks, and authorization metadata.
package schema

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// AuthRequirement is the per-type or per-field authorization mode derived
// from @authenticated and @requiresScopes directives.
type AuthRequirement int

const (
	AuthNone AuthRequirement = iota
	AuthAuthenticated
	AuthRequiresScopes
)

// ScopeDNF is a disjunction of conjunctions of scopes: satisfied when any
// inner slice is fully contained in the caller's granted scopes.
type ScopeDNF [][]string

// Override records a @override(from: "...") directive on a field.
type Override struct {
	From string
}

// EntityKey is one @key(fields: "...") entry on an entity.
type EntityKey struct {
	FieldSet   string
	Resolvable bool
}

// Field is one field of an entity type, including the federation and
// authorization directive metadata the planner and policy layer need.
type Field struct {
	Name          string
	Type          ast.Type
	Requires      []string
	Provides      []string
	Shareable     bool
	External      bool
	Inaccessible  bool
	Override      *Override
	Auth          AuthRequirement
	RequiredScopes ScopeDNF
}

// IsInaccessible reports whether the field carries @inaccessible.
//
// The teacher repo's gateway handler calls a Field.IsInaccessible method
// that was never defined anywhere in its federation/graph package; this is
// the real implementation that call site needed.
func (f *Field) IsInaccessible() bool { return f.Inaccessible }

// IsShareable reports whether the field carries @shareable.
func (f *Field) IsShareable() bool { return f.Shareable }

// GetOverride returns the field's @override metadata, or nil.
func (f *Field) GetOverride() *Override { return f.Override }

// Entity is an object type with at least one @key directive.
type Entity struct {
	Keys        []EntityKey
	IsExtensionDef bool
	Fields      map[string]*Field
	Auth        AuthRequirement
	RequiredScopes ScopeDNF
}

// IsExtension reports whether the entity was declared via `extend type`.
func (e *Entity) IsExtension() bool { return e.IsExtensionDef }

// IsResolvable reports whether any of the entity's keys can be resolved
// via _entities in this subgraph.
func (e *Entity) IsResolvable() bool {
	for _, k := range e.Keys {
		if k.Resolvable {
			return true
		}
	}
	return false
}

// Subgraph is one upstream GraphQL service's contribution to the
// supergraph: its SDL, its host, and its entity/field metadata.
type Subgraph struct {
	Name     string
	Host     string
	Doc      *ast.Document
	entities map[string]*Entity
}

// NewSubgraph parses a subgraph's SDL and extracts its entity metadata:
// @key, @requires, @provides, @shareable, @external, @override,
// @inaccessible, @authenticated, @requiresScopes.
func NewSubgraph(name string, sdl []byte, host string) (*Subgraph, error) {
	l := lexer.New(string(sdl))
	p := parser.New(l)
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("subgraph %q: parse error: %v", name, errs)
	}

	sg := &Subgraph{
		Name:     name,
		Host:     host,
		Doc:      doc,
		entities: make(map[string]*Entity),
	}

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if isEntity(d.Directives) {
				sg.entities[d.Name.String()] = buildEntity(d.Directives, d.Fields, false)
			}
		case *ast.ObjectTypeExtension:
			if isEntity(d.Directives) {
				sg.entities[d.Name.String()] = buildEntity(d.Directives, d.Fields, true)
			}
		}
	}

	return sg, nil
}

func buildEntity(directives []*ast.Directive, fields []*ast.FieldDefinition, isExt bool) *Entity {
	e := &Entity{
		Keys:           parseEntityKeys(directives),
		IsExtensionDef: isExt,
		Fields:         make(map[string]*Field),
	}
	e.Auth, e.RequiredScopes = parseAuth(directives)
	for _, fd := range fields {
		e.Fields[fd.Name.String()] = parseField(fd)
	}
	return e
}

// GetEntities returns the entity map keyed by type name.
func (sg *Subgraph) GetEntities() map[string]*Entity { return sg.entities }

// GetEntity looks up one entity by type name.
func (sg *Subgraph) GetEntity(name string) (*Entity, bool) {
	e, ok := sg.entities[name]
	return e, ok
}

func isEntity(directives []*ast.Directive) bool {
	return hasDirective(directives, "key")
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

func directiveByName(directives []*ast.Directive, name string) *ast.Directive {
	for _, d := range directives {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func parseEntityKeys(directives []*ast.Directive) []EntityKey {
	var keys []EntityKey
	for _, d := range directives {
		if d.Name != "key" {
			continue
		}
		key := EntityKey{Resolvable: true}
		for _, arg := range d.Arguments {
			switch arg.Name.String() {
			case "fields":
				key.FieldSet = strings.Trim(arg.Value.String(), "\"")
			case "resolvable":
				if arg.Value.String() == "false" {
					key.Resolvable = false
				}
			}
		}
		keys = append(keys, key)
	}
	return keys
}

func parseField(field *ast.FieldDefinition) *Field {
	f := &Field{
		Name:     field.Name.String(),
		Type:     field.Type,
		Requires: []string{},
		Provides: []string{},
	}

	for _, d := range field.Directives {
		switch d.Name {
		case "requires":
			if len(d.Arguments) > 0 {
				f.Requires = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "provides":
			if len(d.Arguments) > 0 {
				f.Provides = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "shareable":
			f.Shareable = true
		case "external":
			f.External = true
		case "inaccessible":
			f.Inaccessible = true
		case "override":
			if len(d.Arguments) > 0 {
				f.Override = &Override{From: strings.Trim(d.Arguments[0].Value.String(), "\"")}
			}
		}
	}

	f.Auth, f.RequiredScopes = parseAuth(field.Directives)
	return f
}

// parseAuth extracts @authenticated / @requiresScopes(scopes: [["a","b"],["c"]])
// into an AuthRequirement and its scope DNF.
func parseAuth(directives []*ast.Directive) (AuthRequirement, ScopeDNF) {
	if d := directiveByName(directives, "requiresScopes"); d != nil {
		return AuthRequiresScopes, parseScopeDNF(d)
	}
	if hasDirective(directives, "authenticated") {
		return AuthAuthenticated, nil
	}
	return AuthNone, nil
}

func parseScopeDNF(d *ast.Directive) ScopeDNF {
	var dnf ScopeDNF
	if len(d.Arguments) == 0 {
		return dnf
	}
	list, ok := d.Arguments[0].Value.(*ast.ListValue)
	if !ok {
		return dnf
	}
	for _, inner := range list.Values {
		innerList, ok := inner.(*ast.ListValue)
		if !ok {
			continue
		}
		var conjunction []string
		for _, v := range innerList.Values {
			conjunction = append(conjunction, strings.Trim(v.String(), "\""))
		}
		dnf = append(dnf, conjunction)
	}
	return dnf
}
