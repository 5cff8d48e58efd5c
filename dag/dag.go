// Package dag implements the dependency graph: nodes (concrete actors
// or value nodes, and aliases that transparently redirect to them),
// the edges between them, and the traversals the rest of the runtime
// needs — direct dependency/dependent lookup, alias-resolved
// dependency sets, and a debug dump of the tree rooted at a node.
package dag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/olpa/ailets-sub000/idgen"
)

// NodeState is the lifecycle state of a concrete node.
type NodeState int

const (
	NotStarted NodeState = iota
	Running
	Terminated
)

func (s NodeState) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// NodeKind distinguishes actor/value nodes from aliases that redirect
// to them.
type NodeKind int

const (
	Concrete NodeKind = iota
	Alias
)

// Node is one vertex of the graph.
type Node struct {
	Handle  idgen.Handle
	IdName  string
	Kind    NodeKind
	State   NodeState
	Explain string // optional provenance note, set via AddNodeExplain
}

type edge struct {
	from, to idgen.Handle
}

// Dag is the dependency graph shared by an Environment. Safe for
// concurrent use: nodes gain state transitions from actor goroutines
// while the scheduler and dump walk the structure concurrently.
type Dag struct {
	mu    sync.RWMutex
	idgen *idgen.IdGen
	nodes []*Node
	deps  []edge
}

// New returns an empty graph backed by the given id generator.
func New(gen *idgen.IdGen) *Dag {
	return &Dag{idgen: gen}
}

// AddNode allocates a new handle and registers a node under it.
func (d *Dag) AddNode(idname string, kind NodeKind) idgen.Handle {
	return d.AddNodeExplain(idname, kind, "")
}

// AddNodeExplain is AddNode plus a free-form provenance string,
// surfaced by Dump — useful for distinguishing otherwise
// identically-named nodes (e.g. several aliases for "stdout").
func (d *Dag) AddNodeExplain(idname string, kind NodeKind, explain string) idgen.Handle {
	h := d.idgen.Next()
	d.mu.Lock()
	d.nodes = append(d.nodes, &Node{Handle: h, IdName: idname, Kind: kind, State: NotStarted, Explain: explain})
	d.mu.Unlock()
	return h
}

// GetNode returns the node for pid, or ok=false if unknown.
func (d *Dag) GetNode(pid idgen.Handle) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, n := range d.nodes {
		if n.Handle == pid {
			return *n, true
		}
	}
	return Node{}, false
}

// SetState updates pid's lifecycle state. No-op if pid is unknown.
func (d *Dag) SetState(pid idgen.Handle, state NodeState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.nodes {
		if n.Handle == pid {
			n.State = state
			return
		}
	}
}

// AddDependency records that `for_` depends on `on`.
func (d *Dag) AddDependency(for_ idgen.Handle, on idgen.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deps = append(d.deps, edge{from: for_, to: on})
}

// GetDirectDependencies returns pid's immediate dependencies, in the
// order they were added. Aliases are not resolved.
func (d *Dag) GetDirectDependencies(pid idgen.Handle) []idgen.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []idgen.Handle
	for _, e := range d.deps {
		if e.from == pid {
			out = append(out, e.to)
		}
	}
	return out
}

// GetDirectDependents returns the nodes that directly depend on pid.
func (d *Dag) GetDirectDependents(pid idgen.Handle) []idgen.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []idgen.Handle
	for _, e := range d.deps {
		if e.to == pid {
			out = append(out, e.from)
		}
	}
	return out
}

// ResolveDependencies returns pid's dependencies with aliases expanded
// transparently to the concrete nodes they point to. A node reachable
// through more than one path is only visited once; cycles terminate
// the walk rather than looping forever.
//
// The original kept a borrowed and an owned variant of this iterator
// (DependencyIterator vs OwnedDependencyIterator) to work around the
// borrow checker; Go has no such split so there is just one.
func (d *Dag) ResolveDependencies(pid idgen.Handle) []idgen.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolveDependenciesLocked(pid)
}

func (d *Dag) getDirectDependenciesLocked(pid idgen.Handle) []idgen.Handle {
	var out []idgen.Handle
	for _, e := range d.deps {
		if e.from == pid {
			out = append(out, e.to)
		}
	}
	return out
}

func (d *Dag) getNodeLocked(pid idgen.Handle) *Node {
	for _, n := range d.nodes {
		if n.Handle == pid {
			return n
		}
	}
	return nil
}

// Dump renders the dependency tree rooted at pid as an ASCII art
// diagram, annotated with each node's lifecycle state. Cycles are
// marked inline rather than causing infinite recursion.
func (d *Dag) Dump(pid idgen.Handle) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var sb strings.Builder
	visited := make(map[idgen.Handle]bool)
	d.dumpRecursive(&sb, pid, "", true, visited)
	return sb.String()
}

func stateSymbol(s NodeState) string {
	switch s {
	case NotStarted:
		return "⋯ not built"
	case Running:
		return "⚙ running"
	case Terminated:
		return "✓ built"
	default:
		return "? unknown"
	}
}

func (d *Dag) dumpRecursive(sb *strings.Builder, pid idgen.Handle, prefix string, isLast bool, visited map[idgen.Handle]bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}

	node := d.getNodeLocked(pid)
	if node == nil {
		fmt.Fprintf(sb, "%s%s[handle %s not found]\n", prefix, connector, pid)
		return
	}

	label := node.IdName
	if node.Explain != "" {
		label = fmt.Sprintf("%s (%s)", label, node.Explain)
	}
	fmt.Fprintf(sb, "%s%s%s [%s]\n", prefix, connector, label, stateSymbol(node.State))

	if visited[pid] {
		ext := "│   "
		if isLast {
			ext = "    "
		}
		fmt.Fprintf(sb, "%s%s[circular reference]\n", prefix, ext)
		return
	}
	visited[pid] = true

	deps := d.resolveDependenciesLocked(pid)
	if len(deps) == 0 {
		delete(visited, pid)
		return
	}

	childPrefix := prefix + "│   "
	if isLast {
		childPrefix = prefix + "    "
	}
	for i, dep := range deps {
		d.dumpRecursive(sb, dep, childPrefix, i == len(deps)-1, visited)
	}
	delete(visited, pid)
}

// resolveDependenciesLocked walks pid's direct dependencies in
// declaration order, expanding each Alias depth-first in place so the
// returned order matches spec.md §4.5/§6's "DAG declaration order"
// contract. visited is shared across the whole walk (not per-branch)
// so a node reachable through more than one path, or a cycle, is only
// ever emitted once.
func (d *Dag) resolveDependenciesLocked(pid idgen.Handle) []idgen.Handle {
	visited := make(map[idgen.Handle]bool)
	var out []idgen.Handle

	var walk func(idgen.Handle)
	walk = func(p idgen.Handle) {
		for _, dep := range d.getDirectDependenciesLocked(p) {
			if visited[dep] {
				continue
			}
			visited[dep] = true

			node := d.getNodeLocked(dep)
			if node == nil {
				continue
			}
			switch node.Kind {
			case Concrete:
				out = append(out, dep)
			case Alias:
				walk(dep)
			}
		}
	}
	walk(pid)
	return out
}
