package views

import (
	"container/heap"
	"fmt"
	"strings"
)

// Registry holds view definitions in registration order.
// It is built once at startup and only read afterwards.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register validates and adds a definition. Names must be unique.
func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return fmt.Errorf("view name is required")
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("view %s: %w", def.Name, err)
	}
	if _, exists := r.index[def.Name]; exists {
		return &DuplicateNameError{Name: def.Name}
	}
	r.index[def.Name] = len(r.defs)
	r.defs = append(r.defs, def.clone())
	return nil
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	return len(r.defs)
}

// Lookup returns the definition registered under name
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i].clone(), true
}

// Definitions returns copies of all definitions in registration order
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	for i, def := range r.defs {
		out[i] = def.clone()
	}
	return out
}

// Resolve checks that every non-external reference names a registered view
func (r *Registry) Resolve() error {
	for _, def := range r.defs {
		for _, ref := range def.Dependencies {
			if ref.External {
				continue
			}
			if _, ok := r.index[ref.Name]; !ok {
				return &UnresolvedReferenceError{View: def.Name, Reference: ref.Name}
			}
		}
	}
	return nil
}

// Sort returns definitions in creation order: every view comes after the
// registered views it depends on. Independent views keep registration
// order. When apps is non-empty only definitions of those apps are
// returned, still ordered against the full graph.
func (r *Registry) Sort(apps []string) ([]Definition, error) {
	order, err := r.order()
	if err != nil {
		return nil, err
	}
	keep := appFilter(apps)
	var out []Definition
	for _, i := range order {
		if keep(r.defs[i]) {
			out = append(out, r.defs[i].clone())
		}
	}
	return out, nil
}

// Levels groups the sorted definitions so that no view depends on a view
// in the same or a later level. Views within a level can be created
// concurrently.
func (r *Registry) Levels(apps []string) ([][]Definition, error) {
	order, err := r.order()
	if err != nil {
		return nil, err
	}

	level := make([]int, len(r.defs))
	maxLevel := -1
	for _, i := range order {
		for _, ref := range r.defs[i].Dependencies {
			if ref.External {
				continue
			}
			if l := level[r.index[ref.Name]] + 1; l > level[i] {
				level[i] = l
			}
		}
		if level[i] > maxLevel {
			maxLevel = level[i]
		}
	}

	keep := appFilter(apps)
	levels := make([][]Definition, maxLevel+1)
	for _, i := range order {
		if keep(r.defs[i]) {
			levels[level[i]] = append(levels[level[i]], r.defs[i].clone())
		}
	}

	// Drop levels emptied by the app filter
	out := levels[:0]
	for _, l := range levels {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out, nil
}

// order runs Kahn's algorithm over registration indexes
func (r *Registry) order() ([]int, error) {
	if err := r.Resolve(); err != nil {
		return nil, err
	}

	inDegree := make([]int, len(r.defs))
	dependents := make([][]int, len(r.defs))
	for i, def := range r.defs {
		for _, ref := range def.Dependencies {
			if ref.External {
				continue
			}
			j := r.index[ref.Name]
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ready := &indexHeap{}
	for i, deg := range inDegree {
		if deg == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, len(r.defs))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, child := range dependents[i] {
			inDegree[child]--
			if inDegree[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}

	if len(order) < len(r.defs) {
		return nil, &CycleError{Cycle: r.findCycle(inDegree)}
	}
	return order, nil
}

// findCycle walks dependencies among the nodes Kahn's algorithm could not
// place. Each of them still has an unplaced dependency, so the walk must
// revisit a node.
func (r *Registry) findCycle(inDegree []int) []string {
	start := -1
	for i, deg := range inDegree {
		if deg > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var path []int
	cur := start
	for {
		if p, seen := pos[cur]; seen {
			cycle := make([]string, 0, len(path)-p+1)
			for _, i := range path[p:] {
				cycle = append(cycle, r.defs[i].Name)
			}
			return append(cycle, r.defs[cur].Name)
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := -1
		for _, ref := range r.defs[cur].Dependencies {
			if ref.External {
				continue
			}
			if j := r.index[ref.Name]; inDegree[j] > 0 {
				next = j
				break
			}
		}
		if next < 0 {
			return nil
		}
		cur = next
	}
}

func appFilter(apps []string) func(Definition) bool {
	if len(apps) == 0 {
		return func(Definition) bool { return true }
	}
	set := make(map[string]bool, len(apps))
	for _, app := range apps {
		set[strings.ToLower(strings.TrimSpace(app))] = true
	}
	return func(d Definition) bool {
		return set[strings.ToLower(d.App)]
	}
}

// indexHeap is a min-heap of registration indexes
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) {
	*h = append(*h, x.(int))
}

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
