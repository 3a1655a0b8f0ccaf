// Package schema implements the resource class graph.
//
// Resource classes form a multiple-inheritance DAG. Each class declares
// attributes and inherits every attribute of its ancestors; attribute names
// are unique across any chain of related classes, so lookup never needs a
// priority rule.
//
// STRUCTURE:
//
// The Graph owns an arena of ResourceClass records keyed by ClassID and the
// authoritative tables (edges, declared attributes, permissions). Derived
// data (transitive parents and children, attributes by name, the attribute
// index table, effective permissions) lives in an immutable per-class view:
//
//	[edge tables] --(generation bump)--> stale view --(next read)--> rebuilt view
//
// A committed mutation bumps the generation of the affected subgraph only.
// Readers load the current view without locking; a stale view is rebuilt
// under the class's view mutex on the next read.
//
// MUTATIONS:
//
// Every mutation runs the same sequence under the graph write lock:
//
//  1. validate with pure functions over the tables (validate.go)
//  2. stage the in-process change, pushing its inverse onto an undo stack
//  3. write through a Backend transaction and commit
//  4. bump generations, release the lock, publish events to the hub
//
// A backend failure at step 3 runs the undo stack and rolls the transaction
// back. Rollback failures are logged and never replace the original error.
//
// The node class (NodeID) is always present. It declares the BUILTIN
// attributes every resource carries; those map to fixed columns and are
// never persisted as attribute definitions.
package schema
