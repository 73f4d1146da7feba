// Package projector shapes a merged executor response into the exact
// object the client asked for: client selection order, type-condition
// dispatch on abstract types, @skip/@include filtering, and GraphQL null
// propagation.
package projector

import (
	"errors"

	"github.com/n9te9/graphql-parser/ast"
)

// Plan is the normalized operation's top-level selection set paired with
// the root type it selects against. Built once per request and re-used
// unchanged by Project; it carries no response data.
type Plan struct {
	Selections []ast.Selection
	RootType   string
}

// Build wraps a normalized operation's root selections for projection.
func Build(selections []ast.Selection, rootType string) *Plan {
	return &Plan{Selections: selections, RootType: rootType}
}

// FieldType resolves the declared type of parentType.fieldName in the
// router's composed schema. Project uses it to decide whether a field
// position is non-null and therefore subject to null propagation. A nil
// FieldType disables propagation entirely — every field is treated as
// nullable, which is what Project's schema-less callers (and most of its
// tests) want.
type FieldType func(parentType, fieldName string) ast.Type

// errNullNonNullField marks a non-null field that completed to null. The
// GraphQLError describing the violation is recorded at the point of
// failure; callers bubbling this error upward must not record another.
var errNullNonNullField = errors.New("projector: non-null field completed to null")

// Project traverses plan against data in the client's selection order,
// dispatching inline-fragment type conditions via possibleTypes,
// dropping fields skipped by @skip/@include on variables, and applying
// GraphQL null propagation when fieldType is non-nil: a non-null field
// that completes to null records exactly one error and bubbles null to
// its nearest nullable ancestor field, nulling every intermediate object
// along the way. A selection set carrying inline fragments whose object
// carries a __typename matching none of their type conditions yields a
// null at that position and an error — the abstract-dispatch failure
// case.
//
// Grounded on executor_v2.go's pruneResponse/pruneObject for the
// selection-set walk, generalized from "keep whatever the selection set
// names" into full type-condition dispatch and directive-based
// filtering, since the teacher's query planner only ever talks to
// subgraphs it already trusts to return matching shapes. The null
// propagation split (completeValue deciding non-null/list/object shape,
// a single catch point per selected field) follows the same
// completeValue/catch-per-field split other_examples/ GraphQL executors
// (zonr-artemis, graphql-go) use for the same rule.
func Project(plan *Plan, data map[string]any, possibleTypes map[string]map[string]bool, variables map[string]any, fieldType FieldType) (map[string]any, []GraphQLError) {
	p := &projector{possibleTypes: possibleTypes, variables: variables, fieldType: fieldType}
	out, _ := p.projectObject(plan.Selections, plan.RootType, data, nil)
	return out, p.errors
}

type projector struct {
	possibleTypes map[string]map[string]bool
	variables     map[string]any
	fieldType     FieldType
	errors        []GraphQLError
}

// projectObject projects one selection set against one object value,
// merging fields from every inline fragment whose type condition the
// object's concrete type satisfies. typeName is the statically-known
// type of obj at this position, used only when obj carries no
// __typename of its own.
//
// The returned error is non-nil exactly when a selected field at this
// level (or an inline fragment's child field) was itself non-null and
// completed to null: in that case the whole object is discarded (nil)
// and the violation keeps bubbling to whatever field holds this object.
func (p *projector) projectObject(selections []ast.Selection, typeName string, obj map[string]any, path []any) (map[string]any, error) {
	if obj == nil {
		return nil, nil
	}

	concreteType := typeName
	if tn, ok := obj["__typename"].(string); ok && tn != "" {
		concreteType = tn
	}

	if unresolved := p.unresolvedTypeCondition(selections, concreteType); unresolved != "" {
		p.errors = append(p.errors, GraphQLError{
			Message: "abstract type " + unresolved + " resolved to unknown type " + concreteType,
			Path:    path,
			Extensions: map[string]any{
				"code": "INTERNAL",
			},
		})
		return nil, nil
	}

	out := make(map[string]any)
	var propagated error
	for _, sel := range selections {
		if err := p.projectSelection(sel, concreteType, obj, out, path); err != nil {
			propagated = err
		}
	}
	if propagated != nil {
		return nil, propagated
	}
	return out, nil
}

// unresolvedTypeCondition reports the first inline-fragment type
// condition present in selections that concreteType fails to satisfy,
// when selections carries type conditions at all and none of them
// match — i.e. the object landed in an abstract-type position whose
// __typename this response shape doesn't recognize. Returns "" when
// selections has no inline fragments, or when at least one matches.
func (p *projector) unresolvedTypeCondition(selections []ast.Selection, concreteType string) string {
	var conditions []string
	for _, sel := range selections {
		inf, ok := sel.(*ast.InlineFragment)
		if !ok || inf.TypeCondition == nil {
			continue
		}
		condition := inf.TypeCondition.Name.String()
		conditions = append(conditions, condition)
		if p.typeConditionMatches(condition, concreteType) {
			return ""
		}
	}
	if len(conditions) == 0 {
		return ""
	}
	return conditions[0]
}

// projectSelection is the single catch point for null propagation: a
// *ast.Field is the only place that knows its own declared type, so it's
// the only place that decides whether completeValue's violation stops
// here (field absorbs it as an ordinary null) or keeps bubbling to the
// caller (field itself is non-null, so the whole containing object must
// go too).
func (p *projector) projectSelection(sel ast.Selection, concreteType string, obj map[string]any, out map[string]any, path []any) error {
	switch s := sel.(type) {
	case *ast.Field:
		if p.skipped(s.Directives) {
			return nil
		}

		fieldName := s.Name.String()
		key := fieldName
		if s.Alias != nil && s.Alias.String() != "" {
			key = s.Alias.String()
		}

		if fieldName == "__typename" {
			out[key] = concreteType
			return nil
		}

		value, exists := obj[fieldName]
		if !exists {
			return nil
		}

		fieldPath := append(append([]any{}, path...), key)
		fieldType := p.lookupFieldType(concreteType, fieldName)

		completed, err := p.completeValue(fieldType, s.SelectionSet, value, fieldPath)
		if err != nil {
			if _, nonNull := fieldType.(*ast.NonNullType); nonNull {
				return err
			}
			out[key] = nil
			return nil
		}
		out[key] = completed
		return nil

	case *ast.InlineFragment:
		if p.skipped(s.Directives) {
			return nil
		}
		if s.TypeCondition != nil && !p.typeConditionMatches(s.TypeCondition.Name.String(), concreteType) {
			return nil
		}
		for _, child := range s.SelectionSet {
			if err := p.projectSelection(child, concreteType, obj, out, path); err != nil {
				return err
			}
		}
		return nil

	case *ast.FragmentSpread:
		// Fragment spreads never survive normalization (inlined into
		// InlineFragment/Field nodes); reaching one here would be a
		// planner bug, so it's silently skipped rather than risking a
		// panic against a field that can't exist on obj.
		return nil
	}
	return nil
}

// completeValue walks one field's declared type (t may be nil when no
// schema information is available, in which case it dispatches purely on
// value's runtime shape like the pre-nullability projector did) against
// its resolved value. It never itself stops a propagating violation —
// that decision belongs to projectSelection, the one place that knows
// whether the field this value belongs to is non-null.
func (p *projector) completeValue(t ast.Type, selections []ast.Selection, value any, path []any) (any, error) {
	if nn, ok := t.(*ast.NonNullType); ok {
		completed, err := p.completeValue(nn.Type, selections, value, path)
		if err != nil {
			return nil, err
		}
		if completed == nil {
			p.errors = append(p.errors, GraphQLError{
				Message:    "Cannot return null for non-nullable field.",
				Path:       path,
				Extensions: map[string]any{"code": "INTERNAL"},
			})
			return nil, errNullNonNullField
		}
		return completed, nil
	}

	if value == nil {
		return nil, nil
	}

	if lt, ok := t.(*ast.ListType); ok {
		list, ok := value.([]any)
		if !ok {
			return value, nil
		}
		out := make([]any, len(list))
		for i, item := range list {
			itemPath := append(append([]any{}, path...), i)
			completed, err := p.completeValue(lt.Type, selections, item, itemPath)
			if err != nil {
				return nil, err
			}
			out[i] = completed
		}
		return out, nil
	}

	if len(selections) > 0 {
		if obj, ok := value.(map[string]any); ok {
			return p.projectObject(selections, "", obj, path)
		}
	}

	return value, nil
}

// lookupFieldType defers to the configured FieldType, or reports "no
// schema information" when Project was called without one.
func (p *projector) lookupFieldType(parentType, fieldName string) ast.Type {
	if p.fieldType == nil {
		return nil
	}
	return p.fieldType(parentType, fieldName)
}

// typeConditionMatches reports whether concreteType satisfies condition,
// either by direct equality (object type conditions) or membership in
// condition's possible-types set (interface/union type conditions).
func (p *projector) typeConditionMatches(condition, concreteType string) bool {
	if condition == concreteType {
		return true
	}
	if members, ok := p.possibleTypes[condition]; ok {
		return members[concreteType]
	}
	return false
}

// skipped evaluates @skip(if:)/@include(if:) against the request's final
// coerced variables. @skip wins over @include when both are present, per
// the GraphQL spec's directive order of precedence.
func (p *projector) skipped(directives []*ast.Directive) bool {
	skip, hasSkip := directiveBool(directives, "skip", p.variables)
	if hasSkip && skip {
		return true
	}
	include, hasInclude := directiveBool(directives, "include", p.variables)
	if hasInclude && !include {
		return true
	}
	return false
}

func directiveBool(directives []*ast.Directive, name string, variables map[string]any) (bool, bool) {
	for _, d := range directives {
		if d.Name != name {
			continue
		}
		for _, arg := range d.Arguments {
			if arg.Name.String() != "if" {
				continue
			}
			switch v := arg.Value.(type) {
			case *ast.BooleanValue:
				return v.Value, true
			case *ast.Variable:
				b, _ := variables[v.Name].(bool)
				return b, true
			}
		}
		return false, true
	}
	return false, false
}
