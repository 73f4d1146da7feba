package planner

import (
	"context"
	"fmt"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/normalizer"
	"github.com/graphql-hive/federation-router/internal/schema"
)

// Planner builds QueryPlans against one schema generation.
//
// Grounded on federation/planner/planner_v2.go's PlannerV2: root-field
// grouping, per-subgraph selection filtering, and entity-step boundary
// detection (there: findAndBuildEntitySteps), generalized from a flat
// StepV2/DependsOn list into the PlanNode tree this build's data model
// requires.
type Planner struct {
	state *schema.State
	nextID uint64
}

// New builds a Planner bound to one schema generation.
func New(state *schema.State) *Planner {
	return &Planner{state: state}
}

// Plan builds a QueryPlan for the normalized operation, or a
// QueryPlanError on timeout or when no subgraph can satisfy a selection.
func (p *Planner) Plan(ctx context.Context, op *normalizer.NormalizedOperation) (*Plan, error) {
	rootType, err := rootTypeName(op.Operation.Operation)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &QueryPlanError{Kind: "Timeout", Message: "query planning timed out"}
	}

	nodes, err := p.planSelections(ctx, op.Operation.SelectionSet, rootType, nil, op.Operation.Operation == "mutation")
	if err != nil {
		return nil, err
	}

	root := Optimize(sequenceOrSingle(nodes))
	return &Plan{Root: root}, nil
}

func rootTypeName(operation string) (string, error) {
	switch operation {
	case "", "query":
		return "Query", nil
	case "mutation":
		return "Mutation", nil
	case "subscription":
		return "Subscription", nil
	default:
		return "", &QueryPlanError{Kind: "Unsatisfiable", Message: fmt.Sprintf("unknown operation kind %q", operation)}
	}
}

// planSelections groups a selection set's fields by the subgraph that
// owns each one, producing one Fetch per contiguous same-subgraph group
// and a Flatten(Fetch(requires=...)) for every cross-subgraph entity jump.
// Mutation fields are always sequenced in source order, matching the
// distilled spec's "mutations are always sequenced, never parallelized."
func (p *Planner) planSelections(ctx context.Context, selections []ast.Selection, typeName string, path []string, forceSequence bool) ([]PlanNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, &QueryPlanError{Kind: "Timeout", Message: "query planning timed out"}
	}

	groups, order, err := p.groupBySubgraph(selections, typeName)
	if err != nil {
		return nil, err
	}

	var nodes []PlanNode
	for _, subgraphName := range order {
		group := groups[subgraphName]

		fetchSelections, dependents, err := p.buildLocalSelections(ctx, group.selections, typeName, subgraphName, path)
		if err != nil {
			return nil, err
		}

		fetch := p.newFetch(subgraphName, operationKindFor(typeName), fetchSelections)
		var node PlanNode = fetch
		if len(dependents) > 0 {
			seq := []PlanNode{node}
			seq = append(seq, dependents...)
			node = &SequenceNode{Nodes: seq}
		}

		node = wrapConditions(node, conditionVariables(group.selections))
		nodes = append(nodes, node)
	}

	if forceSequence || len(nodes) <= 1 {
		return nodes, nil
	}
	return []PlanNode{&ParallelNode{Nodes: nodes}}, nil
}

type subgraphGroup struct {
	selections []ast.Selection
}

// groupBySubgraph assigns each top-level field selection to the first
// subgraph that can resolve it (Supergraph.GetFieldOwnerSubgraph, in the
// supergraph's subgraph order), preserving first-seen order for
// deterministic Sequence/Parallel construction. The satisfiability graph
// is not consulted, and candidate owners are not ranked by number of
// subgraph jumps or by name.
func (p *Planner) groupBySubgraph(selections []ast.Selection, typeName string) (map[string]*subgraphGroup, []string, error) {
	groups := make(map[string]*subgraphGroup)
	var order []string

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue // inline fragments are expanded by the normalizer before planning
		}
		if field.Name.String() == "__typename" {
			continue
		}

		owner := p.state.Supergraph.GetFieldOwnerSubgraph(typeName, field.Name.String())
		if owner == nil {
			return nil, nil, &QueryPlanError{Kind: "Unsatisfiable", Message: fmt.Sprintf("no subgraph can resolve %s.%s", typeName, field.Name.String())}
		}

		g, ok := groups[owner.Name]
		if !ok {
			g = &subgraphGroup{}
			groups[owner.Name] = g
			order = append(order, owner.Name)
		}
		g.selections = append(g.selections, sel)
	}

	return groups, order, nil
}

// buildLocalSelections walks group's fields, keeping everything the owning
// subgraph can resolve directly in the returned selection set, and
// splitting off a Flatten(Fetch) dependent for every nested field whose
// type is an entity owned elsewhere.
func (p *Planner) buildLocalSelections(ctx context.Context, selections []ast.Selection, typeName, subgraphName string, path []string) ([]ast.Selection, []PlanNode, error) {
	var local []ast.Selection
	var dependents []PlanNode
	keyFieldsNeeded := make(map[string]bool)

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		responseKey := fieldResponseKey(field)
		fieldTypeName := p.fieldTypeName(typeName, field.Name.String())
		isList := p.fieldIsList(typeName, field.Name.String())

		childPath := append(append([]string{}, path...), responseKey)
		if isList {
			childPath = append(childPath, "@")
		}

		if fieldTypeName != "" && p.state.Supergraph.IsEntityType(fieldTypeName) {
			owner := p.state.Supergraph.GetEntityOwnerSubgraph(fieldTypeName)
			if owner != nil && owner.Name != subgraphName && len(field.SelectionSet) > 0 {
				keyFields := entityKeyFields(owner, fieldTypeName)
				for _, kf := range keyFields {
					keyFieldsNeeded[kf] = true
				}

				childSelections, childDependents, err := p.buildLocalSelections(ctx, field.SelectionSet, fieldTypeName, owner.Name, childPath)
				if err != nil {
					return nil, nil, err
				}

				entityFetch := p.newEntityFetch(owner.Name, fieldTypeName, keyFields, childSelections)
				node := PlanNode(entityFetch)
				if len(childDependents) > 0 {
					node = &SequenceNode{Nodes: append([]PlanNode{node}, childDependents...)}
				}
				dependents = append(dependents, &FlattenNode{Path: childPath, Child: node})

				local = append(local, &ast.Field{
					Alias: field.Alias, Name: field.Name, Arguments: field.Arguments,
					Directives: field.Directives, SelectionSet: keySelectionOnly(keyFields),
				})
				continue
			}
		}

		if len(field.SelectionSet) > 0 {
			childLocal, childDependents, err := p.buildLocalSelections(ctx, field.SelectionSet, fieldTypeName, subgraphName, childPath)
			if err != nil {
				return nil, nil, err
			}
			local = append(local, &ast.Field{
				Alias: field.Alias, Name: field.Name, Arguments: field.Arguments,
				Directives: field.Directives, SelectionSet: childLocal,
			})
			dependents = append(dependents, childDependents...)
			continue
		}

		local = append(local, field)
	}

	return local, dependents, nil
}

func keySelectionOnly(keyFields []string) []ast.Selection {
	sels := []ast.Selection{&ast.Field{Name: &ast.Name{Value: "__typename"}}}
	for _, kf := range keyFields {
		sels = append(sels, &ast.Field{Name: &ast.Name{Value: kf}})
	}
	return sels
}

func entityKeyFields(owner *schema.Subgraph, typeName string) []string {
	entity, ok := owner.GetEntity(typeName)
	if !ok || len(entity.Keys) == 0 {
		return []string{"id"}
	}
	return splitFieldSet(entity.Keys[0].FieldSet)
}

func splitFieldSet(fieldSet string) []string {
	var out []string
	var cur []rune
	for _, r := range fieldSet {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func (p *Planner) newFetch(subgraphName, operationKind string, selections []ast.Selection) *FetchNode {
	p.nextID++
	return &FetchNode{
		ID:            p.nextID,
		Subgraph:      subgraphName,
		OperationKind: operationKind,
		Selections:    selections,
	}
}

func (p *Planner) newEntityFetch(subgraphName, entityTypeName string, keyFields []string, selections []ast.Selection) *FetchNode {
	p.nextID++
	return &FetchNode{
		ID:             p.nextID,
		Subgraph:       subgraphName,
		OperationKind:  "_entities",
		EntityTypeName: entityTypeName,
		Requires:       keyFields,
		Selections:     selections,
	}
}

func operationKindFor(rootTypeName string) string {
	switch rootTypeName {
	case "Mutation":
		return "mutation"
	case "Subscription":
		return "subscription"
	default:
		return "query"
	}
}

func fieldResponseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.String() != "" {
		return f.Alias.String()
	}
	return f.Name.String()
}

func (p *Planner) fieldTypeName(parentType, fieldName string) string {
	def := findObjectType(p.state.Supergraph.Doc, parentType)
	if def == nil {
		return ""
	}
	for _, f := range def.Fields {
		if f.Name.String() == fieldName {
			return unwrapNamedType(f.Type)
		}
	}
	return ""
}

func (p *Planner) fieldIsList(parentType, fieldName string) bool {
	def := findObjectType(p.state.Supergraph.Doc, parentType)
	if def == nil {
		return false
	}
	for _, f := range def.Fields {
		if f.Name.String() == fieldName {
			return isListType(f.Type)
		}
	}
	return false
}

func findObjectType(doc *ast.Document, name string) *ast.ObjectTypeDefinition {
	for _, def := range doc.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == name {
			return o
		}
	}
	return nil
}

func unwrapNamedType(t ast.Type) string {
	switch v := t.(type) {
	case *ast.NonNullType:
		return unwrapNamedType(v.Type)
	case *ast.ListType:
		return unwrapNamedType(v.Type)
	case *ast.NamedType:
		return v.Name.String()
	default:
		if t == nil {
			return ""
		}
		return t.String()
	}
}

func isListType(t ast.Type) bool {
	switch v := t.(type) {
	case *ast.NonNullType:
		return isListType(v.Type)
	case *ast.ListType:
		return true
	default:
		return false
	}
}

func sequenceOrSingle(nodes []PlanNode) PlanNode {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &SequenceNode{Nodes: nodes}
}

// conditionVariables collects @skip/@include variable names guarding a
// selection group, so the whole fetch can be wrapped in a ConditionNode.
func conditionVariables(selections []ast.Selection) []conditionSpec {
	var specs []conditionSpec
	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		for _, d := range field.Directives {
			if d.Name != "skip" && d.Name != "include" {
				continue
			}
			for _, arg := range d.Arguments {
				if arg.Name.String() != "if" {
					continue
				}
				if v, ok := arg.Value.(*ast.Variable); ok {
					specs = append(specs, conditionSpec{variable: v.Name.String(), negate: d.Name == "skip"})
				}
			}
		}
	}
	return specs
}

type conditionSpec struct {
	variable string
	negate   bool
}

func wrapConditions(node PlanNode, specs []conditionSpec) PlanNode {
	for _, spec := range specs {
		if spec.negate {
			node = &ConditionNode{Variable: spec.variable, IfTrue: nil, IfFalse: node}
		} else {
			node = &ConditionNode{Variable: spec.variable, IfTrue: node, IfFalse: nil}
		}
	}
	return node
}
