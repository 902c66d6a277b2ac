package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// NodeID is the unique identifier for a node inside a dependency graph.
type NodeID string

// Node is a vertex together with its dependency list. A node can depend on
// zero or more other nodes; the graph must be a DAG, which Validate checks.
type Node struct {
	ID           NodeID
	FriendlyName string
	DependsOn    []NodeID
}

// Graph answers dependency queries over a set of nodes. It is not safe for
// concurrent writes; once built and validated it is safe for concurrent reads.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns every node ID in sorted order.
func (g *Graph) IDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		// Return a copy to avoid callers modifying internal slice.
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, sorted.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				res = append(res, n.ID)
				break
			}
		}
	}
	sortIDs(res)
	return res
}

// Ancestors returns every node the given node transitively depends on.
func (g *Graph) Ancestors(id NodeID) []NodeID {
	return g.walk(id, g.Dependencies)
}

// Descendants returns every node that transitively depends on the given node.
func (g *Graph) Descendants(id NodeID) []NodeID {
	return g.walk(id, g.Dependents)
}

func (g *Graph) walk(start NodeID, next func(NodeID) []NodeID) []NodeID {
	seen := map[NodeID]bool{start: true}
	stack := next(start)
	var res []NodeID
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
		stack = append(stack, next(id)...)
	}
	sortIDs(res)
	return res
}

// UnknownDependencyError reports an edge to a node that is not in the graph.
type UnknownDependencyError struct {
	Node       NodeID
	Dependency NodeID
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("node %q depends on unknown node %q", e.Node, e.Dependency)
}

// CycleError reports a dependency cycle. Path starts and ends with the same node.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// Validate checks that every dependency exists and the graph is acyclic.
// Nodes are visited in sorted order so the reported error is deterministic.
func (g *Graph) Validate() error {
	for _, id := range g.IDs() {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return &UnknownDependencyError{Node: id, Dependency: dep}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[NodeID]int, len(g.nodes))
	var path []NodeID

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		state[id] = visiting
		path = append(path, id)

		deps := g.Dependencies(id)
		sortIDs(deps)
		for _, dep := range deps {
			switch state[dep] {
			case visiting:
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append(append([]NodeID(nil), path[start:]...), dep)
				return &CycleError{Path: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.IDs() {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Levels groups nodes into layers: level 0 has no dependencies and every node
// in level n depends only on nodes in levels below n. Nodes within a level are
// sorted. The graph must be valid.
func (g *Graph) Levels() ([][]NodeID, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	remaining := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(uniqueIDs(n.DependsOn))
	}

	var levels [][]NodeID
	var current []NodeID
	for id, count := range remaining {
		if count == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		sortIDs(current)
		levels = append(levels, current)

		var next []NodeID
		for _, id := range current {
			for _, dependent := range g.Dependents(id) {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
	return levels, nil
}

// ReverseLevels returns Levels in reverse: dependents before their dependencies.
func (g *Graph) ReverseLevels() ([][]NodeID, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels, nil
}

// TopologicalOrder returns all nodes with every dependency before its dependents.
// The order is deterministic.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]NodeID, 0, len(g.nodes))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

func uniqueIDs(ids []NodeID) map[NodeID]struct{} {
	set := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
