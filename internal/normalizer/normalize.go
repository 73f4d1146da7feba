// Package normalizer turns a parsed document plus the client's requested
// operation name into a single canonical operation: fragments inlined,
// unused operations dropped, selections deduplicated and stably sorted.
package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// NormalizedOperation is an operation definition with fragment spreads
// inlined, variables coerced, and selections deduplicated and sorted.
type NormalizedOperation struct {
	Operation *ast.OperationDefinition
	Variables map[string]any
}

// SpecifiedOperationNotFound is returned when operationName names no
// operation in the document.
type SpecifiedOperationNotFound struct{ Name string }

func (e *SpecifiedOperationNotFound) Error() string {
	return fmt.Sprintf("operation %q not found in document", e.Name)
}

// OperationNotFound is returned when operationName is empty and the
// document contains zero or more than one operation: an omitted name
// with multiple candidates is rejected rather than resolved by picking
// the first definition.
type OperationNotFound struct{}

func (e *OperationNotFound) Error() string {
	return "operationName is required when a document defines multiple operations"
}

// FragmentDefinitionNotFound is returned when a fragment spread names an
// undefined fragment.
type FragmentDefinitionNotFound struct{ Name string }

func (e *FragmentDefinitionNotFound) Error() string {
	return fmt.Sprintf("fragment %q is not defined", e.Name)
}

// Normalize runs the full pipeline: select the operation, inline
// fragments, coerce variables, then stably sort selections.
func Normalize(doc *ast.Document, operationName string, rawVariables map[string]any) (*NormalizedOperation, error) {
	inlined, err := InlineOperation(doc, operationName)
	if err != nil {
		return nil, err
	}
	coerced := coerceVariables(inlined.VariableDefinitions, rawVariables)
	return &NormalizedOperation{Operation: inlined, Variables: coerced}, nil
}

// InlineOperation runs the pure-over-(doc, operationName) portion of
// normalization: operation selection, fragment inlining, and the stable
// sort. It excludes variable coercion (a function of per-request raw
// variables, not cacheable against query text alone), so it is the part
// NormalizeCache memoizes.
func InlineOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	fragments := collectFragments(doc)

	inlined := &ast.OperationDefinition{
		Operation:           op.Operation,
		Name:                op.Name,
		VariableDefinitions: op.VariableDefinitions,
		Directives:          op.Directives,
		SelectionSet:        make([]ast.Selection, 0, len(op.SelectionSet)),
	}

	for _, sel := range op.SelectionSet {
		expanded, err := inlineSelection(sel, fragments, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		inlined.SelectionSet = append(inlined.SelectionSet, expanded...)
	}

	inlined.SelectionSet = dedupeAndSort(inlined.SelectionSet)
	return inlined, nil
}

// selectOperation implements the "drop unused operations" stage: keep
// only the operation named by operationName, or the sole operation if the
// document defines exactly one.
func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			ops = append(ops, op)
		}
	}

	if operationName != "" {
		for _, op := range ops {
			if op.Name != nil && op.Name.String() == operationName {
				return op, nil
			}
		}
		return nil, &SpecifiedOperationNotFound{Name: operationName}
	}

	if len(ops) != 1 {
		return nil, &OperationNotFound{}
	}
	return ops[0], nil
}

func collectFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	out := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if f, ok := def.(*ast.FragmentDefinition); ok {
			out[f.Name.String()] = f
		}
	}
	return out
}

// inlineSelection expands fragment spreads and inline fragments at every
// selection-set position, deduplicating by (response_key, type_condition,
// directives). visiting guards against fragment self-reference (caught
// properly by the validator's no-cycles rule; this is a defensive bound).
func inlineSelection(sel ast.Selection, fragments map[string]*ast.FragmentDefinition, visiting map[string]bool) ([]ast.Selection, error) {
	switch s := sel.(type) {
	case *ast.Field:
		expanded := make([]ast.Selection, 0, len(s.SelectionSet))
		for _, child := range s.SelectionSet {
			childExp, err := inlineSelection(child, fragments, visiting)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, childExp...)
		}
		return []ast.Selection{&ast.Field{
			Alias:        s.Alias,
			Name:         s.Name,
			Arguments:    s.Arguments,
			Directives:   s.Directives,
			SelectionSet: dedupeAndSort(expanded),
		}}, nil

	case *ast.InlineFragment:
		expanded := make([]ast.Selection, 0, len(s.SelectionSet))
		for _, child := range s.SelectionSet {
			childExp, err := inlineSelection(child, fragments, visiting)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, childExp...)
		}
		return []ast.Selection{&ast.InlineFragment{
			TypeCondition: s.TypeCondition,
			Directives:    s.Directives,
			SelectionSet:  dedupeAndSort(expanded),
		}}, nil

	case *ast.FragmentSpread:
		name := s.Name.String()
		if visiting[name] {
			return nil, &FragmentDefinitionNotFound{Name: name}
		}
		frag, ok := fragments[name]
		if !ok {
			return nil, &FragmentDefinitionNotFound{Name: name}
		}

		visiting[name] = true
		defer delete(visiting, name)

		expanded := make([]ast.Selection, 0, len(frag.SelectionSet))
		for _, child := range frag.SelectionSet {
			childExp, err := inlineSelection(child, fragments, visiting)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, childExp...)
		}

		return []ast.Selection{&ast.InlineFragment{
			TypeCondition: frag.TypeCondition,
			Directives:    s.Directives,
			SelectionSet:  dedupeAndSort(expanded),
		}}, nil
	}

	return []ast.Selection{sel}, nil
}

func responseKey(sel ast.Selection) string {
	if f, ok := sel.(*ast.Field); ok {
		if f.Alias != nil && f.Alias.String() != "" {
			return f.Alias.String()
		}
		return f.Name.String()
	}
	return ""
}

func typeCondition(sel ast.Selection) string {
	if inf, ok := sel.(*ast.InlineFragment); ok && inf.TypeCondition != nil {
		return inf.TypeCondition.String()
	}
	return ""
}

// dedupeAndSort deduplicates selection items by (response_key,
// type_condition, directives) and stably sorts them: fields before
// inline-fragments, ties broken by response-key then type-condition.
func dedupeAndSort(selections []ast.Selection) []ast.Selection {
	seen := make(map[string]bool, len(selections))
	out := make([]ast.Selection, 0, len(selections))
	for _, sel := range selections {
		var directives strings.Builder
		switch s := sel.(type) {
		case *ast.Field:
			writeDirectives(&directives, s.Directives)
		case *ast.InlineFragment:
			writeDirectives(&directives, s.Directives)
		}
		key := fmt.Sprintf("%T|%s|%s|%s", sel, responseKey(sel), typeCondition(sel), directives.String())
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sel)
	}

	sort.SliceStable(out, func(i, j int) bool {
		iIsField := isField(out[i])
		jIsField := isField(out[j])
		if iIsField != jIsField {
			return iIsField
		}
		if rk := compareStrings(responseKey(out[i]), responseKey(out[j])); rk != 0 {
			return rk < 0
		}
		return compareStrings(typeCondition(out[i]), typeCondition(out[j])) < 0
	})

	return out
}

func isField(sel ast.Selection) bool {
	_, ok := sel.(*ast.Field)
	return ok
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// coerceVariables applies declared defaults for any variable the caller
// did not supply. Full input-type coercion (enum/scalar parsing) is
// delegated to the subgraph executors, which already speak each
// subgraph's own scalar types; this stage only fills gaps from AST
// literal defaults.
func coerceVariables(defs []*ast.VariableDefinition, raw map[string]any) map[string]any {
	coerced := make(map[string]any, len(raw)+len(defs))
	for k, v := range raw {
		coerced[k] = v
	}
	for _, def := range defs {
		name := def.Variable.Name.String()
		if _, supplied := coerced[name]; supplied {
			continue
		}
		if def.DefaultValue != nil {
			coerced[name] = literalToGo(def.DefaultValue)
		}
	}
	return coerced
}

func literalToGo(v ast.Value) any {
	switch val := v.(type) {
	case *ast.ListValue:
		out := make([]any, 0, len(val.Values))
		for _, item := range val.Values {
			out = append(out, literalToGo(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			out[f.Name.String()] = literalToGo(f.Value)
		}
		return out
	default:
		return v.String()
	}
}
