// Package todograph manages the todo DAG of a task: status transitions,
// dependency enforcement, blocker lifecycle, progress rollups, and change
// fan-out to subscribers.
package todograph

import (
	"sort"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// graph is an in-memory view of one task's todo DAG, rebuilt per operation
// from the store. Edges point from a dependency to its dependents.
type graph struct {
	nodes      map[string]*domain.TodoItem
	order      []string            // ids sorted for deterministic walks
	dependents map[string][]string // dep id -> ids that depend on it
}

func buildGraph(todos []*domain.TodoItem) *graph {
	g := &graph{
		nodes:      make(map[string]*domain.TodoItem, len(todos)),
		dependents: make(map[string][]string),
	}
	for _, t := range todos {
		g.nodes[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	sort.Strings(g.order)
	for _, t := range todos {
		for _, dep := range t.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				g.dependents[dep] = append(g.dependents[dep], t.ID)
			}
		}
	}
	for _, ids := range g.dependents {
		sort.Strings(ids)
	}
	return g
}

// dependenciesComplete walks the transitive dependency closure of id and
// reports whether every todo in it is completed. Unknown ids are ignored so a
// dangling reference never deadlocks a task.
func (g *graph) dependenciesComplete(id string) bool {
	seen := map[string]bool{id: true}
	stack := append([]string(nil), g.deps(id)...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		node, ok := g.nodes[current]
		if !ok {
			continue
		}
		if node.Status != domain.TodoCompleted {
			return false
		}
		stack = append(stack, g.deps(current)...)
	}
	return true
}

// incompleteDependencies returns the direct dependencies of id that are not
// completed yet, for error details and blocker descriptions.
func (g *graph) incompleteDependencies(id string) []string {
	var incomplete []string
	for _, dep := range g.deps(id) {
		if node, ok := g.nodes[dep]; ok && node.Status != domain.TodoCompleted {
			incomplete = append(incomplete, dep)
		}
	}
	sort.Strings(incomplete)
	return incomplete
}

// transitiveDependents returns every todo downstream of id, sorted.
func (g *graph) transitiveDependents(id string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.dependents[id]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		stack = append(stack, g.dependents[current]...)
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// eligible returns pending todos whose dependency closure is complete.
func (g *graph) eligible() []string {
	var ready []string
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Status == domain.TodoPending && g.dependenciesComplete(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// criticalPath returns the ids on the longest path through the DAG, weighted
// by estimated hours. Memoized longest-path; cycles cannot occur because the
// generator guarantees a DAG and updates never add edges.
func (g *graph) criticalPath() []string {
	type best struct {
		hours float64
		next  string
	}
	memo := make(map[string]best, len(g.nodes))

	var longest func(id string) best
	longest = func(id string) best {
		if b, ok := memo[id]; ok {
			return b
		}
		node := g.nodes[id]
		b := best{hours: node.EstimatedHours}
		for _, dep := range g.dependents[id] {
			if tail := longest(dep); node.EstimatedHours+tail.hours > b.hours {
				b = best{hours: node.EstimatedHours + tail.hours, next: dep}
			}
		}
		memo[id] = b
		return b
	}

	start, startHours := "", -1.0
	for _, id := range g.order {
		if b := longest(id); b.hours > startHours {
			start, startHours = id, b.hours
		}
	}
	if start == "" {
		return nil
	}

	var path []string
	for id := start; id != ""; id = memo[id].next {
		path = append(path, id)
	}
	return path
}

// onCriticalPath reports whether id lies on the longest path.
func (g *graph) onCriticalPath(id string) bool {
	for _, pathID := range g.criticalPath() {
		if pathID == id {
			return true
		}
	}
	return false
}

func (g *graph) deps(id string) []string {
	if node, ok := g.nodes[id]; ok {
		return node.Dependencies
	}
	return nil
}
