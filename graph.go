package recalc

import (
	"slices"
)

// DependencyNode represents a cell in the dependency graph
type DependencyNode struct {
	// qualified address of *THIS* node
	Key string

	Precedents map[string]struct{} // cells this cell read
	Dependents map[string]struct{} // cells that read this cell
}

// DependencyGraph records which cell read which during a pass. it is a
// trace of what lazy resolution did and never drives evaluation order.
type DependencyGraph struct {
	nodes map[string]*DependencyNode
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*DependencyNode),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(key string) *DependencyNode {
	if node, exists := dg.nodes[key]; exists {
		return node
	}

	node := &DependencyNode{
		Key:        key,
		Precedents: make(map[string]struct{}),
		Dependents: make(map[string]struct{}),
	}
	dg.nodes[key] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(key string) (*DependencyNode, bool) {
	node, exists := dg.nodes[key]
	return node, exists
}

// AddDependency records that from read to
func (dg *DependencyGraph) AddDependency(from, to string) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)
	fromNode.Precedents[to] = struct{}{}
	toNode.Dependents[from] = struct{}{}
}

// GetDirectPrecedents returns the cells a cell read, sorted
func (dg *DependencyGraph) GetDirectPrecedents(key string) []string {
	node, exists := dg.nodes[key]
	if !exists {
		return nil
	}
	return sortedKeys(node.Precedents)
}

// GetDirectDependents returns the cells that read a cell, sorted
func (dg *DependencyGraph) GetDirectDependents(key string) []string {
	node, exists := dg.nodes[key]
	if !exists {
		return nil
	}
	return sortedKeys(node.Dependents)
}

// GetAllDependents returns all cells affected by this cell (transitive closure)
func (dg *DependencyGraph) GetAllDependents(key string) []string {
	visited := make(map[string]struct{})
	var result []string

	dg.collectDependents(key, visited, &result)
	slices.Sort(result)
	return result
}

// collectDependents recursively collects all dependents
func (dg *DependencyGraph) collectDependents(key string, visited map[string]struct{}, result *[]string) {
	if _, alreadyVisited := visited[key]; alreadyVisited {
		return
	}
	visited[key] = struct{}{}

	node, exists := dg.nodes[key]
	if !exists {
		return
	}

	for dependent := range node.Dependents {
		if _, alreadyVisited := visited[dependent]; !alreadyVisited {
			*result = append(*result, dependent)
			dg.collectDependents(dependent, visited, result)
		}
	}
}

// GetCalculationOrder returns the recorded cells with every cell after the
// cells it read. hasCycle reports a back edge.
func (dg *DependencyGraph) GetCalculationOrder() (order []string, hasCycle bool) {
	// three states: unvisited (not in map), visiting (false), visited (true)
	state := make(map[string]bool)

	var visit func(key string)
	visit = func(key string) {
		if completed, exists := state[key]; exists {
			if !completed {
				hasCycle = true
			}
			return
		}

		state[key] = false
		if node, exists := dg.nodes[key]; exists {
			for _, precedent := range sortedKeys(node.Precedents) {
				visit(precedent)
			}
		}
		state[key] = true
		order = append(order, key)
	}

	for _, key := range dg.Keys() {
		visit(key)
	}
	return order, hasCycle
}

// HasCycle checks if there are circular dependencies
func (dg *DependencyGraph) HasCycle() bool {
	_, hasCycle := dg.GetCalculationOrder()
	return hasCycle
}

// Keys returns every recorded cell, sorted
func (dg *DependencyGraph) Keys() []string {
	keys := make([]string, 0, len(dg.nodes))
	for key := range dg.nodes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// Clear removes all nodes and dependencies from the graph
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[string]*DependencyNode)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
