package planner

// Optimize collapses passthrough wrapper nodes produced by the walk phase:
// a Sequence or Parallel with exactly one child is replaced by that child.
// Grounded on planner_v2_optimized.go's PlanOptimized pass, which performs
// the equivalent "merge passthrough children into their parents" step over
// the flat StepV2 list this build generalizes into a tree.
func Optimize(node PlanNode) PlanNode {
	switch n := node.(type) {
	case *SequenceNode:
		n.Nodes = optimizeChildren(n.Nodes)
		if len(n.Nodes) == 1 {
			return n.Nodes[0]
		}
		return n
	case *ParallelNode:
		n.Nodes = optimizeChildren(n.Nodes)
		if len(n.Nodes) == 1 {
			return n.Nodes[0]
		}
		return n
	case *FlattenNode:
		n.Child = Optimize(n.Child)
		return n
	case *ConditionNode:
		if n.IfTrue != nil {
			n.IfTrue = Optimize(n.IfTrue)
		}
		if n.IfFalse != nil {
			n.IfFalse = Optimize(n.IfFalse)
		}
		return n
	default:
		return node
	}
}

func optimizeChildren(nodes []PlanNode) []PlanNode {
	out := make([]PlanNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Optimize(n))
	}
	return out
}

// Equal reports whether two plans are structurally equal, for the plan
// idempotence property: planning the same normalized operation twice must
// yield structurally equal plans.
func Equal(a, b PlanNode) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case *FetchNode:
		bv := b.(*FetchNode)
		return av.Subgraph == bv.Subgraph && av.OperationKind == bv.OperationKind &&
			av.EntityTypeName == bv.EntityTypeName && equalStrings(av.Requires, bv.Requires)
	case *FlattenNode:
		bv := b.(*FlattenNode)
		return equalStrings(av.Path, bv.Path) && Equal(av.Child, bv.Child)
	case *SequenceNode:
		bv := b.(*SequenceNode)
		return equalNodeSlices(av.Nodes, bv.Nodes)
	case *ParallelNode:
		bv := b.(*ParallelNode)
		return equalNodeSlices(av.Nodes, bv.Nodes)
	case *ConditionNode:
		bv := b.(*ConditionNode)
		return av.Variable == bv.Variable && Equal(av.IfTrue, bv.IfTrue) && Equal(av.IfFalse, bv.IfFalse)
	default:
		return false
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalNodeSlices(a, b []PlanNode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
