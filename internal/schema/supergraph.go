package schema

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// Supergraph is the composed schema over every subgraph, plus the
// field-ownership map the planner and executor consult to pick subgraphs.
type Supergraph struct {
	Subgraphs []*Subgraph
	Doc       *ast.Document
	// Ownership maps "Type.field" -> the subgraphs able to resolve it.
	Ownership map[string][]*Subgraph
}

// federationDirectives are stripped from the consumer-facing schema; they
// exist only to drive composition and planning.
var federationDirectives = map[string]bool{
	"key": true, "requires": true, "provides": true, "shareable": true,
	"external": true, "override": true, "tag": true, "join__type": true,
	"join__field": true, "join__graph": true, "join__implements": true,
	"join__unionMember": true, "join__enumValue": true,
}

// NewSupergraph composes the given subgraphs into one schema document and
// derives the field-ownership map.
func NewSupergraph(subgraphs []*Subgraph) (*Supergraph, error) {
	if len(subgraphs) == 0 {
		return nil, fmt.Errorf("schema: no subgraphs to compose")
	}

	sg := &Supergraph{
		Subgraphs: subgraphs,
		Doc:       &ast.Document{Definitions: make([]ast.Definition, 0)},
		Ownership: make(map[string][]*Subgraph),
	}

	for _, s := range subgraphs {
		sg.mergeInto(s.Doc)
	}

	sg.buildOwnership()
	return sg, nil
}

func (sg *Supergraph) mergeInto(doc *ast.Document) {
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			sg.mergeObjectType(d.Name.String(), d.Interfaces, d.Fields, d.Directives)
		case *ast.ObjectTypeExtension:
			sg.mergeObjectType(d.Name.String(), d.Interfaces, d.Fields, d.Directives)
		case *ast.InterfaceTypeDefinition:
			sg.mergeInterfaceType(d)
		case *ast.InputObjectTypeDefinition:
			sg.mergeInputType(d)
		case *ast.EnumTypeDefinition:
			sg.mergeEnumType(d)
		case *ast.ScalarTypeDefinition:
			sg.mergeScalarType(d)
		case *ast.UnionTypeDefinition:
			sg.mergeUnionType(d)
		}
	}
}

// FieldType returns the declared type of parentType.fieldName in the
// composed schema, or nil when the type or field can't be found (e.g.
// __typename, or a field the projector is asked about speculatively).
// The projector unwraps *ast.NonNullType/*ast.ListType layers itself to
// drive GraphQL null propagation.
func (sg *Supergraph) FieldType(parentType, fieldName string) ast.Type {
	def := sg.findObjectType(parentType)
	if def == nil {
		return nil
	}
	for _, f := range def.Fields {
		if f.Name.String() == fieldName {
			return f.Type
		}
	}
	return nil
}

func (sg *Supergraph) findObjectType(name string) *ast.ObjectTypeDefinition {
	for _, def := range sg.Doc.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == name {
			return o
		}
	}
	return nil
}

func (sg *Supergraph) mergeObjectType(name string, ifaces []ast.Type, fields []*ast.FieldDefinition, directives []*ast.Directive) {
	if existing := sg.findObjectType(name); existing != nil {
		existing.Fields = mergeFieldDefs(existing.Fields, fields)
		existing.Directives = append(existing.Directives, directives...)
		return
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, &ast.ObjectTypeDefinition{
		Name:       (&ast.Name{Value: name}),
		Interfaces: ifaces,
		Fields:     append([]*ast.FieldDefinition{}, fields...),
		Directives: append([]*ast.Directive{}, directives...),
	})
}

func mergeFieldDefs(existing, incoming []*ast.FieldDefinition) []*ast.FieldDefinition {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f.Name.String()] = true
	}
	for _, f := range incoming {
		if !seen[f.Name.String()] {
			existing = append(existing, f)
			seen[f.Name.String()] = true
		}
	}
	return existing
}

func (sg *Supergraph) mergeInterfaceType(d *ast.InterfaceTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.InterfaceTypeDefinition); ok && e.Name.String() == d.Name.String() {
			e.Fields = append(e.Fields, d.Fields...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, d)
}

func (sg *Supergraph) mergeInputType(d *ast.InputObjectTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.InputObjectTypeDefinition); ok && e.Name.String() == d.Name.String() {
			e.Fields = append(e.Fields, d.Fields...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, d)
}

func (sg *Supergraph) mergeEnumType(d *ast.EnumTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.EnumTypeDefinition); ok && e.Name.String() == d.Name.String() {
			e.Values = append(e.Values, d.Values...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, d)
}

func (sg *Supergraph) mergeScalarType(d *ast.ScalarTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.ScalarTypeDefinition); ok && e.Name.String() == d.Name.String() {
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, d)
}

func (sg *Supergraph) mergeUnionType(d *ast.UnionTypeDefinition) {
	for _, def := range sg.Doc.Definitions {
		if e, ok := def.(*ast.UnionTypeDefinition); ok && e.Name.String() == d.Name.String() {
			e.Types = append(e.Types, d.Types...)
			return
		}
	}
	sg.Doc.Definitions = append(sg.Doc.Definitions, d)
}

func (sg *Supergraph) buildOwnership() {
	for _, def := range sg.Doc.Definitions {
		obj, ok := def.(*ast.ObjectTypeDefinition)
		if !ok {
			continue
		}
		typeName := obj.Name.String()

		for _, field := range obj.Fields {
			fieldName := field.Name.String()
			key := typeName + "." + fieldName

			var overrideFrom string
			var overrideSubgraph *Subgraph
			for _, s := range sg.Subgraphs {
				entity, ok := s.GetEntity(typeName)
				if !ok {
					continue
				}
				f, ok := entity.Fields[fieldName]
				if !ok || f.Override == nil {
					continue
				}
				overrideFrom = f.Override.From
				overrideSubgraph = s
				break
			}

			for _, s := range sg.Subgraphs {
				if overrideFrom != "" && s.Name == overrideFrom {
					continue
				}
				if sg.canResolve(s, typeName, fieldName) {
					sg.Ownership[key] = append(sg.Ownership[key], s)
				}
			}

			if overrideSubgraph != nil {
				found := false
				for _, owner := range sg.Ownership[key] {
					if owner.Name == overrideSubgraph.Name {
						found = true
						break
					}
				}
				if !found {
					sg.Ownership[key] = append(sg.Ownership[key], overrideSubgraph)
				}
			}
		}
	}
}

func (sg *Supergraph) canResolve(s *Subgraph, typeName, fieldName string) bool {
	for _, def := range s.Doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if d.Name.String() != typeName {
				continue
			}
			return fieldResolvable(d.Fields, fieldName)
		case *ast.ObjectTypeExtension:
			if d.Name.String() != typeName {
				continue
			}
			return fieldResolvable(d.Fields, fieldName)
		}
	}
	return false
}

func fieldResolvable(fields []*ast.FieldDefinition, fieldName string) bool {
	for _, f := range fields {
		if f.Name.String() == fieldName {
			return !hasDirective(f.Directives, "external")
		}
	}
	return false
}

// GetSubgraphsForField returns every subgraph able to resolve Type.field.
func (sg *Supergraph) GetSubgraphsForField(typeName, fieldName string) []*Subgraph {
	return sg.Ownership[typeName+"."+fieldName]
}

// GetEntityOwnerSubgraph returns the subgraph that authoritatively owns an
// entity type: a non-extension, resolvable definition if one exists,
// otherwise the first resolvable extension.
func (sg *Supergraph) GetEntityOwnerSubgraph(typeName string) *Subgraph {
	for _, s := range sg.Subgraphs {
		if e, ok := s.GetEntity(typeName); ok && !e.IsExtension() && e.IsResolvable() {
			return s
		}
	}
	for _, s := range sg.Subgraphs {
		if e, ok := s.GetEntity(typeName); ok && e.IsResolvable() {
			return s
		}
	}
	return nil
}

// IsEntityType reports whether typeName has a resolvable @key in any
// subgraph.
func (sg *Supergraph) IsEntityType(typeName string) bool {
	return sg.GetEntityOwnerSubgraph(typeName) != nil
}

// GetFieldOwnerSubgraph returns the first subgraph able to resolve the field.
func (sg *Supergraph) GetFieldOwnerSubgraph(typeName, fieldName string) *Subgraph {
	owners := sg.Ownership[typeName+"."+fieldName]
	if len(owners) == 0 {
		return nil
	}
	return owners[0]
}

// ConsumerSchema returns the client-visible document: federation-internal
// directives and @inaccessible elements are stripped.
func (sg *Supergraph) ConsumerSchema() *ast.Document {
	out := &ast.Document{Definitions: make([]ast.Definition, 0, len(sg.Doc.Definitions))}
	for _, def := range sg.Doc.Definitions {
		if obj, ok := def.(*ast.ObjectTypeDefinition); ok {
			if hasDirective(obj.Directives, "inaccessible") {
				continue
			}
			visible := &ast.ObjectTypeDefinition{
				Name:       obj.Name,
				Interfaces: obj.Interfaces,
				Directives: stripFederationDirectives(obj.Directives),
			}
			for _, f := range obj.Fields {
				if hasDirective(f.Directives, "inaccessible") {
					continue
				}
				visible.Fields = append(visible.Fields, &ast.FieldDefinition{
					Name:       f.Name,
					Arguments:  f.Arguments,
					Type:       f.Type,
					Directives: stripFederationDirectives(f.Directives),
				})
			}
			out.Definitions = append(out.Definitions, visible)
			continue
		}
		out.Definitions = append(out.Definitions, def)
	}
	return out
}

func stripFederationDirectives(directives []*ast.Directive) []*ast.Directive {
	out := make([]*ast.Directive, 0, len(directives))
	for _, d := range directives {
		if federationDirectives[d.Name] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// PossibleTypesMap returns, for every interface/union name, the set of
// concrete object type names that implement/belong to it.
func (sg *Supergraph) PossibleTypesMap() map[string]map[string]bool {
	result := make(map[string]map[string]bool)

	for _, def := range sg.Doc.Definitions {
		union, ok := def.(*ast.UnionTypeDefinition)
		if !ok {
			continue
		}
		name := union.Name.String()
		if result[name] == nil {
			result[name] = make(map[string]bool)
		}
		for _, t := range union.Types {
			result[name][namedTypeString(t)] = true
		}
	}

	for _, def := range sg.Doc.Definitions {
		obj, ok := def.(*ast.ObjectTypeDefinition)
		if !ok {
			continue
		}
		for _, iface := range obj.Interfaces {
			name := namedTypeString(iface)
			if result[name] == nil {
				result[name] = make(map[string]bool)
			}
			result[name][obj.Name.String()] = true
		}
	}

	return result
}

func namedTypeString(t ast.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
