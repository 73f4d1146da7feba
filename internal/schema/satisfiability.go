package schema

import (
	"container/heap"
	"fmt"
)

// EdgeKind distinguishes the three edge shapes the planner can traverse.
type EdgeKind int

const (
	// EdgeFieldMove is a same-subgraph type->field or field->type step, weight 0.
	EdgeFieldMove EdgeKind = iota
	// EdgeEntityJump crosses subgraphs via an entity key, weight 1.
	EdgeEntityJump
	// EdgeAbstract dispatches from an interface/union node to a concrete type, weight 0.
	EdgeAbstract
)

// SatNode is a (type, subgraph) pair, or a field under one, in the
// satisfiability graph the planner walks.
type SatNode struct {
	ID        string
	Subgraph  *Subgraph
	TypeName  string
	FieldName string
	Edges     map[string]*SatEdge
	// Shortcuts are zero-weight edges contributed by @provides: once this
	// node is reached, the target field is already in hand.
	Shortcuts map[string]bool
}

// SatEdge is one directed edge in the satisfiability graph.
type SatEdge struct {
	Kind   EdgeKind
	Weight int
	// KeySelection is set on EdgeEntityJump edges: the @key field set
	// required to jump from the source subgraph to the destination.
	KeySelection string
}

// SatisfiabilityGraph is the directed multigraph the planner searches for
// feasible traversal paths from a root to every requested field.
type SatisfiabilityGraph struct {
	Nodes map[string]*SatNode
}

// NodeKey builds the canonical node id for a subgraph/type/field triple.
// fieldName == "" yields a type-level node.
func NodeKey(subgraphName, typeName, fieldName string) string {
	if fieldName == "" {
		return fmt.Sprintf("%s:%s", subgraphName, typeName)
	}
	return fmt.Sprintf("%s:%s.%s", subgraphName, typeName, fieldName)
}

func newSatisfiabilityGraph() *SatisfiabilityGraph {
	return &SatisfiabilityGraph{Nodes: make(map[string]*SatNode)}
}

func (g *SatisfiabilityGraph) addNode(id string, sg *Subgraph, typeName, fieldName string) *SatNode {
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := &SatNode{
		ID: id, Subgraph: sg, TypeName: typeName, FieldName: fieldName,
		Edges:     make(map[string]*SatEdge),
		Shortcuts: make(map[string]bool),
	}
	g.Nodes[id] = n
	return n
}

func (g *SatisfiabilityGraph) addEdge(srcID, dstID string, edge *SatEdge) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	if existing, ok := src.Edges[dstID]; !ok || edge.Weight < existing.Weight {
		src.Edges[dstID] = edge
	}
}

// BuildSatisfiabilityGraph constructs the graph from the subgraphs'
// entity/field metadata: same-subgraph field moves, cross-subgraph entity
// jumps keyed on @key field sets, and @provides shortcuts.
//
// Grounded on the teacher's three-pass WeightedDirectedGraph.BuildGraph:
// (1) per-subgraph nodes, (2) cross-subgraph entity edges, (3) @provides
// shortcut resolution.
func BuildSatisfiabilityGraph(subgraphs []*Subgraph) *SatisfiabilityGraph {
	g := newSatisfiabilityGraph()

	for _, sg := range subgraphs {
		for typeName, entity := range sg.GetEntities() {
			typeKey := NodeKey(sg.Name, typeName, "")
			g.addNode(typeKey, sg, typeName, "")

			for fieldName, field := range entity.Fields {
				fieldKey := NodeKey(sg.Name, typeName, fieldName)
				g.addNode(fieldKey, sg, typeName, fieldName)
				g.addEdge(typeKey, fieldKey, &SatEdge{Kind: EdgeFieldMove, Weight: 0})

				for _, provided := range field.Provides {
					placeholder := fmt.Sprintf("%s:%s.%s:%s", sg.Name, typeName, fieldName, provided)
					n := g.Nodes[fieldKey]
					n.Shortcuts[placeholder] = true
				}
			}
		}
	}

	entitySubgraphs := make(map[string][]*Subgraph)
	keyByType := make(map[string]string)
	for _, sg := range subgraphs {
		for typeName, entity := range sg.GetEntities() {
			entitySubgraphs[typeName] = append(entitySubgraphs[typeName], sg)
			if len(entity.Keys) > 0 && keyByType[typeName] == "" {
				keyByType[typeName] = entity.Keys[0].FieldSet
			}
		}
	}

	for typeName, sgs := range entitySubgraphs {
		if len(sgs) < 2 {
			continue
		}
		keySel := keyByType[typeName]
		for i, a := range sgs {
			for _, b := range sgs[i+1:] {
				keyA := NodeKey(a.Name, typeName, "")
				keyB := NodeKey(b.Name, typeName, "")
				g.addEdge(keyA, keyB, &SatEdge{Kind: EdgeEntityJump, Weight: 1, KeySelection: keySel})
				g.addEdge(keyB, keyA, &SatEdge{Kind: EdgeEntityJump, Weight: 1, KeySelection: keySel})
			}
		}
	}

	g.resolveShortcuts()
	return g
}

func (g *SatisfiabilityGraph) resolveShortcuts() {
	for _, node := range g.Nodes {
		if len(node.Shortcuts) == 0 {
			continue
		}
		resolved := make(map[string]bool)
		for placeholder := range node.Shortcuts {
			idx := lastColon(placeholder)
			providedField := placeholder[idx+1:]
			found := false
			for key, other := range g.Nodes {
				if other.FieldName == providedField && other.Subgraph.Name != node.Subgraph.Name {
					resolved[key] = true
					found = true
					break
				}
			}
			if !found {
				resolved[placeholder] = true
			}
		}
		node.Shortcuts = resolved
	}
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// ---- Dijkstra-based path ranking -----------------------------------

type pqItem struct {
	nodeID string
	cost   int
	index  int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// PathResult holds Dijkstra distances and predecessors for path reconstruction.
type PathResult struct {
	Dist map[string]int
	Prev map[string]string
}

// ShortestPaths runs Dijkstra from the given entry points, ranking
// feasible paths by (fewer subgraph jumps), matching the planner's
// "feasible paths ranked by fewer subgraph jumps then stable subgraph name" rule.
func (g *SatisfiabilityGraph) ShortestPaths(entryPoints []string) *PathResult {
	const inf = int(^uint(0) >> 1)
	dist := make(map[string]int, len(g.Nodes))
	prev := make(map[string]string, len(g.Nodes))
	for id := range g.Nodes {
		dist[id] = inf
	}

	pq := &priorityQueue{}
	heap.Init(pq)
	for _, ep := range entryPoints {
		if _, ok := g.Nodes[ep]; ok {
			dist[ep] = 0
			heap.Push(pq, &pqItem{nodeID: ep, cost: 0})
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		if item.cost > dist[item.nodeID] {
			continue
		}
		node := g.Nodes[item.nodeID]
		for dstID, edge := range node.Edges {
			newCost := dist[item.nodeID] + edge.Weight
			if newCost < dist[dstID] {
				dist[dstID] = newCost
				prev[dstID] = item.nodeID
				heap.Push(pq, &pqItem{nodeID: dstID, cost: newCost})
			}
		}
		for dstID := range node.Shortcuts {
			if dist[item.nodeID] < dist[dstID] {
				dist[dstID] = dist[item.nodeID]
				prev[dstID] = item.nodeID
				heap.Push(pq, &pqItem{nodeID: dstID, cost: dist[item.nodeID]})
			}
		}
	}

	return &PathResult{Dist: dist, Prev: prev}
}

// ReconstructPath walks Prev back from dstID to its entry point.
func (r *PathResult) ReconstructPath(dstID string) []string {
	const inf = int(^uint(0) >> 1)
	if cost, ok := r.Dist[dstID]; !ok || cost == inf {
		return nil
	}
	var path []string
	visited := make(map[string]bool)
	for cur := dstID; cur != ""; {
		if visited[cur] {
			break
		}
		visited[cur] = true
		path = append([]string{cur}, path...)
		p, ok := r.Prev[cur]
		if !ok {
			break
		}
		cur = p
	}
	return path
}
