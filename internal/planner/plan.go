// Package planner walks a normalized operation over a schema generation's
// satisfiability graph and emits a tree of Fetch/Flatten/Sequence/
// Parallel/Condition nodes.
package planner

import (
	"github.com/n9te9/graphql-parser/ast"
)

// NodeKind discriminates the five PlanNode variants. Every traversal must
// exhaust this match — add a variant only with a corresponding executor
// branch.
type NodeKind int

const (
	KindFetch NodeKind = iota
	KindFlatten
	KindSequence
	KindParallel
	KindCondition
)

// PlanNode is the sum type every plan tree is built from.
type PlanNode interface {
	Kind() NodeKind
}

// Rewrite is either a KeyRenamer or a ValueSetter applied to a value at a
// path; paths use literal field names and "... on T" type-condition
// segments.
type Rewrite struct {
	Path     []string
	RenameTo string // set for KeyRenamer rewrites
	SetValue any    // set for ValueSetter rewrites, nil-vs-unset distinguished by IsValueSetter
	IsValueSetter bool
}

// FetchNode issues one subgraph request. If Requires is non-empty, the
// fetch takes an array of entity representations rather than a top-level
// selection.
type FetchNode struct {
	ID              uint64
	Subgraph        string
	OperationKind   string // "query" | "mutation" | "subscription" | "_entities"
	Operation       string // minified GraphQL operation text
	Selections      []ast.Selection
	VariableUsages  []string
	Requires        []string // key field names needed to build representations
	EntityTypeName  string   // set when Requires is non-empty
	InputRewrites   []Rewrite
	OutputRewrites  []Rewrite
}

func (*FetchNode) Kind() NodeKind { return KindFetch }

// FlattenNode descends into Path (with "@" denoting list flattening)
// before executing Child against the data at that path.
type FlattenNode struct {
	Path  []string
	Child PlanNode
}

func (*FlattenNode) Kind() NodeKind { return KindFlatten }

// SequenceNode executes Nodes in order, feeding each the merged data so far.
type SequenceNode struct {
	Nodes []PlanNode
}

func (*SequenceNode) Kind() NodeKind { return KindSequence }

// ParallelNode executes Nodes concurrently and merges their results.
type ParallelNode struct {
	Nodes []PlanNode
}

func (*ParallelNode) Kind() NodeKind { return KindParallel }

// ConditionNode chooses IfTrue or IfFalse based on Variable's boolean
// value; an absent or non-boolean variable is treated as false.
type ConditionNode struct {
	Variable string
	IfTrue   PlanNode
	IfFalse  PlanNode
}

func (*ConditionNode) Kind() NodeKind { return KindCondition }

// Plan is the top-level output of planning: a tree rooted at Root.
type Plan struct {
	Root PlanNode
}

// QueryPlanError is the error taxonomy planning can produce.
type QueryPlanError struct {
	Kind    string // "Timeout" | "Unsatisfiable"
	Message string
}

func (e *QueryPlanError) Error() string { return e.Message }
