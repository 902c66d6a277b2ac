// Package dependency provides the directed acyclic graph used to order the
// dependent resources of a workflow.
//
// Each Node lists the nodes it depends on. A workflow processes its nodes
// parent-first (Levels / TopologicalOrder) when reconciling and child-first
// (ReverseLevels) when cleaning up, and uses Descendants to know which nodes
// to skip when one fails.
//
// # Validation
//
// Validate rejects edges to unknown nodes (UnknownDependencyError) and cycles
// (CycleError, which carries the offending path). Both are configuration
// errors: a workflow whose graph does not validate is never started.
//
// # Determinism
//
// All queries return IDs sorted by name within a level so that orderings are
// stable across runs and easy to assert on in tests.
//
// # Usage Example
//
//	graph := dependency.New()
//	graph.AddNode(dependency.Node{ID: "database"})
//	graph.AddNode(dependency.Node{ID: "schema", DependsOn: []dependency.NodeID{"database"}})
//	graph.AddNode(dependency.Node{ID: "app", DependsOn: []dependency.NodeID{"schema"}})
//
//	levels, err := graph.Levels()
//	// [[database] [schema] [app]]
package dependency
