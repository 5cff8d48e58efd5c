package dag

import "github.com/olpa/ailets-sub000/idgen"

// Scheduler computes the build order for a target node: a dependency
// must appear before anything that depends on it. It is a thin,
// eager wrapper — Plan walks the whole graph once and returns a slice,
// rather than lazily streaming handles, since graphs in this runtime
// are small enough that building the full order up front is simpler
// than a resumable iterator.
type Scheduler struct {
	dag    *Dag
	target idgen.Handle
}

// NewScheduler returns a scheduler for target over dag.
func NewScheduler(d *Dag, target idgen.Handle) *Scheduler {
	return &Scheduler{dag: d, target: target}
}

// Plan returns the concrete nodes needed to build the target, in
// topological order (dependencies before dependents). Aliases are
// traversed but never appear in the result.
func (s *Scheduler) Plan() []idgen.Handle {
	visited := make(map[idgen.Handle]bool)
	var result []idgen.Handle

	var visit func(n idgen.Handle)
	visit = func(n idgen.Handle) {
		if visited[n] {
			return
		}
		visited[n] = true

		node, ok := s.dag.GetNode(n)
		if !ok {
			return
		}

		// post-order: every dependency is appended before n itself
		for _, dep := range s.dag.ResolveDependencies(n) {
			visit(dep)
		}
		if node.Kind == Concrete {
			result = append(result, n)
		}
	}
	visit(s.target)
	return result
}
