package parser

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/cache"
	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

// ValidationError carries the message and code every validation rule
// reports, per the router's error taxonomy. Source locations are not
// recorded.
type ValidationError struct {
	Message string
	Code    string
}

func (e *ValidationError) Error() string { return e.Message }

// Rule is one independent validation rule over a parsed document.
type Rule func(doc *ast.Document) []*ValidationError

// DefaultRules is the validator's standard rule set: the checks the
// normalizer and planner cannot safely assume hold, run ahead of them so
// malformed operations fail fast with a structured error instead of a
// panic deep in planning.
var DefaultRules = []Rule{
	ruleLoneAnonymousOperation,
	ruleUniqueOperationNames,
	ruleKnownFragmentNames,
	ruleNoFragmentCycles,
	ruleNoUnusedFragments,
	ruleNoUnusedVariables,
	ruleUniqueFragmentNames,
	ruleUniqueArgumentNames,
	ruleUniqueDirectivesPerLocation,
}

// Validate runs every rule in rules against doc and collects all errors
// (validation does not stop at the first failure).
func Validate(doc *ast.Document, rules []Rule) []*ValidationError {
	var errs []*ValidationError
	for _, rule := range rules {
		errs = append(errs, rule(doc)...)
	}
	return errs
}

func operations(doc *ast.Document) []*ast.OperationDefinition {
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func fragmentDefs(doc *ast.Document) map[string]*ast.FragmentDefinition {
	out := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if f, ok := def.(*ast.FragmentDefinition); ok {
			out[f.Name.String()] = f
		}
	}
	return out
}

func ruleLoneAnonymousOperation(doc *ast.Document) []*ValidationError {
	ops := operations(doc)
	if len(ops) <= 1 {
		return nil
	}
	for _, op := range ops {
		if op.Name == nil || op.Name.String() == "" {
			return []*ValidationError{{
				Message: "anonymous operation must be the only operation in the document",
				Code:    "GRAPHQL_VALIDATION_FAILED",
			}}
		}
	}
	return nil
}

func ruleUniqueOperationNames(doc *ast.Document) []*ValidationError {
	seen := make(map[string]bool)
	var errs []*ValidationError
	for _, op := range operations(doc) {
		if op.Name == nil {
			continue
		}
		name := op.Name.String()
		if name == "" {
			continue
		}
		if seen[name] {
			errs = append(errs, &ValidationError{
				Message: fmt.Sprintf("there can be only one operation named %q", name),
				Code:    "GRAPHQL_VALIDATION_FAILED",
			})
		}
		seen[name] = true
	}
	return errs
}

func ruleUniqueFragmentNames(doc *ast.Document) []*ValidationError {
	seen := make(map[string]bool)
	var errs []*ValidationError
	for _, def := range doc.Definitions {
		f, ok := def.(*ast.FragmentDefinition)
		if !ok {
			continue
		}
		name := f.Name.String()
		if seen[name] {
			errs = append(errs, &ValidationError{
				Message: fmt.Sprintf("there can be only one fragment named %q", name),
				Code:    "GRAPHQL_VALIDATION_FAILED",
			})
		}
		seen[name] = true
	}
	return errs
}

func ruleKnownFragmentNames(doc *ast.Document) []*ValidationError {
	frags := fragmentDefs(doc)
	var errs []*ValidationError
	walkSelections(doc, func(sel ast.Selection) {
		spread, ok := sel.(*ast.FragmentSpread)
		if !ok {
			return
		}
		if _, ok := frags[spread.Name.String()]; !ok {
			errs = append(errs, &ValidationError{
				Message: fmt.Sprintf("unknown fragment %q", spread.Name.String()),
				Code:    "GRAPHQL_VALIDATION_FAILED",
			})
		}
	})
	return errs
}

func ruleNoFragmentCycles(doc *ast.Document) []*ValidationError {
	frags := fragmentDefs(doc)
	var errs []*ValidationError
	visiting := make(map[string]bool)

	var visit func(name string) bool
	visit = func(name string) bool {
		if visiting[name] {
			return true
		}
		frag, ok := frags[name]
		if !ok {
			return false
		}
		visiting[name] = true
		defer delete(visiting, name)

		cyclic := false
		forEachSelection(frag.SelectionSet, func(sel ast.Selection) {
			if spread, ok := sel.(*ast.FragmentSpread); ok {
				if visit(spread.Name.String()) {
					cyclic = true
				}
			}
		})
		return cyclic
	}

	seenErr := make(map[string]bool)
	for name := range frags {
		if visit(name) && !seenErr[name] {
			errs = append(errs, &ValidationError{
				Message: fmt.Sprintf("fragment %q forms a cycle via its spreads", name),
				Code:    "GRAPHQL_VALIDATION_FAILED",
			})
			seenErr[name] = true
		}
	}
	return errs
}

func ruleNoUnusedFragments(doc *ast.Document) []*ValidationError {
	used := make(map[string]bool)
	walkSelections(doc, func(sel ast.Selection) {
		if spread, ok := sel.(*ast.FragmentSpread); ok {
			used[spread.Name.String()] = true
		}
	})

	var errs []*ValidationError
	for _, def := range doc.Definitions {
		f, ok := def.(*ast.FragmentDefinition)
		if !ok {
			continue
		}
		if !used[f.Name.String()] {
			errs = append(errs, &ValidationError{
				Message: fmt.Sprintf("fragment %q is never used", f.Name.String()),
				Code:    "GRAPHQL_VALIDATION_FAILED",
			})
		}
	}
	return errs
}

func ruleNoUnusedVariables(doc *ast.Document) []*ValidationError {
	var errs []*ValidationError
	for _, op := range operations(doc) {
		declared := make(map[string]bool)
		for _, vd := range op.VariableDefinitions {
			declared[vd.Variable.Name.String()] = true
		}
		used := make(map[string]bool)
		forEachSelection(op.SelectionSet, func(sel ast.Selection) {
			collectVariableUses(sel, used)
		})
		for name := range declared {
			if !used[name] {
				errs = append(errs, &ValidationError{
					Message: fmt.Sprintf("variable %q is never used", name),
					Code:    "GRAPHQL_VALIDATION_FAILED",
				})
			}
		}
	}
	return errs
}

func ruleUniqueArgumentNames(doc *ast.Document) []*ValidationError {
	var errs []*ValidationError
	walkSelections(doc, func(sel ast.Selection) {
		field, ok := sel.(*ast.Field)
		if !ok {
			return
		}
		seen := make(map[string]bool)
		for _, arg := range field.Arguments {
			name := arg.Name.String()
			if seen[name] {
				errs = append(errs, &ValidationError{
					Message: fmt.Sprintf("duplicate argument %q on field %q", name, field.Name.String()),
					Code:    "GRAPHQL_VALIDATION_FAILED",
				})
			}
			seen[name] = true
		}
	})
	return errs
}

func ruleUniqueDirectivesPerLocation(doc *ast.Document) []*ValidationError {
	var errs []*ValidationError
	walkSelections(doc, func(sel ast.Selection) {
		var directives []*ast.Directive
		if field, ok := sel.(*ast.Field); ok {
			directives = field.Directives
		}
		seen := make(map[string]bool)
		for _, d := range directives {
			if seen[d.Name] {
				errs = append(errs, &ValidationError{
					Message: fmt.Sprintf("directive %q used twice at the same location", d.Name),
					Code:    "GRAPHQL_VALIDATION_FAILED",
				})
			}
			seen[d.Name] = true
		}
	})
	return errs
}

// collectVariableUses records every `$var` reference reachable from sel
// (arguments and directive arguments).
func collectVariableUses(sel ast.Selection, used map[string]bool) {
	switch s := sel.(type) {
	case *ast.Field:
		for _, arg := range s.Arguments {
			collectVariablesFromValue(arg.Value, used)
		}
		for _, d := range s.Directives {
			for _, arg := range d.Arguments {
				collectVariablesFromValue(arg.Value, used)
			}
		}
		forEachSelection(s.SelectionSet, func(child ast.Selection) {
			collectVariableUses(child, used)
		})
	case *ast.InlineFragment:
		for _, d := range s.Directives {
			for _, arg := range d.Arguments {
				collectVariablesFromValue(arg.Value, used)
			}
		}
		forEachSelection(s.SelectionSet, func(child ast.Selection) {
			collectVariableUses(child, used)
		})
	}
}

func collectVariablesFromValue(v ast.Value, used map[string]bool) {
	switch val := v.(type) {
	case *ast.Variable:
		used[val.Name.String()] = true
	case *ast.ListValue:
		for _, item := range val.Values {
			collectVariablesFromValue(item, used)
		}
	case *ast.ObjectValue:
		for _, f := range val.Fields {
			collectVariablesFromValue(f.Value, used)
		}
	}
}

// forEachSelection calls fn for every direct selection in set.
func forEachSelection(set []ast.Selection, fn func(ast.Selection)) {
	for _, sel := range set {
		fn(sel)
	}
}

// walkSelections calls fn for every selection reachable from any
// operation or fragment definition in doc, recursively.
func walkSelections(doc *ast.Document, fn func(ast.Selection)) {
	var walk func(sel ast.Selection)
	walk = func(sel ast.Selection) {
		fn(sel)
		switch s := sel.(type) {
		case *ast.Field:
			for _, child := range s.SelectionSet {
				walk(child)
			}
		case *ast.InlineFragment:
			for _, child := range s.SelectionSet {
				walk(child)
			}
		}
	}

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			for _, sel := range d.SelectionSet {
				walk(sel)
			}
		case *ast.FragmentDefinition:
			for _, sel := range d.SelectionSet {
				walk(sel)
			}
		}
	}
}

// ValidateCache memoizes Validate results by the same key as the parse
// cache: validation is a pure function of (schema generation, query text),
// so its cache is invalidated wholesale on schema reload.
type ValidateCache struct {
	results *cache.Sharded[[]*ValidationError]
}

// NewValidateCache builds a validation cache with capacityPerShard entries
// per shard.
func NewValidateCache(capacityPerShard int) *ValidateCache {
	return &ValidateCache{results: cache.New[[]*ValidationError](capacityPerShard)}
}

// ValidateCached validates doc, memoized under queryText's fingerprint.
func (c *ValidateCache) ValidateCached(queryText string, doc *ast.Document, rules []Rule) []*ValidationError {
	key := fingerprint.OfQuery(queryText)
	errs, _ := c.results.GetOrLoad(key, func() ([]*ValidationError, error) {
		return Validate(doc, rules), nil
	})
	return errs
}

// Purge evicts every cached validation result, called on schema reload.
func (c *ValidateCache) Purge() { c.results.Purge() }
