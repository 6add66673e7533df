// Package graph describes a frame as a DAG of passes over named resources.
//
// Passes declare what they read and write. Compile turns the declarations
// into explicit dependency edges (read-after-write, write-after-read and
// write-after-write, in declaration order) and a stable execution order.
// Ordering is never implied by call sequence alone: executors wait on the
// completion tokens of a pass's dependencies before running it.
package graph

import (
	"errors"
	"fmt"
	"slices"
)

// Kind is the queue work a pass records.
type Kind int

const (
	Transfer Kind = iota
	Render
	Compute
)

func (k Kind) String() string {
	switch k {
	case Transfer:
		return "transfer"
	case Render:
		return "render"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Resource is a named attachment or buffer.
type Resource struct {
	Name string
	// Persistent resources keep their contents across frames and may be
	// read before any pass of the frame writes them.
	Persistent bool
	// External resources are owned outside the graph (the swapchain image).
	External bool
	// Sized resources follow the framebuffer extent and are rebuilt on
	// resize.
	Sized bool
}

// Pass is one unit of recorded work.
type Pass struct {
	Name      string
	Kind      Kind
	Subpasses []string
	Reads     []string
	Writes    []string
	// After adds ordering edges that no resource expresses.
	After []string
}

// Graph collects resources and passes in declaration order.
type Graph struct {
	resources []Resource
	passes    []Pass
}

func New() *Graph {
	return &Graph{}
}

// AddResource declares a resource. Declaring a name twice panics.
func (g *Graph) AddResource(r Resource) *Graph {
	if slices.ContainsFunc(g.resources, func(o Resource) bool { return o.Name == r.Name }) {
		panic(fmt.Sprintf("resource %q declared twice", r.Name))
	}
	g.resources = append(g.resources, r)
	return g
}

// AddPass declares a pass. Declaring a name twice panics.
func (g *Graph) AddPass(p Pass) *Graph {
	if slices.ContainsFunc(g.passes, func(o Pass) bool { return o.Name == p.Name }) {
		panic(fmt.Sprintf("pass %q declared twice", p.Name))
	}
	g.passes = append(g.passes, p)
	return g
}

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownPass     = errors.New("unknown pass")
	ErrUnwritten       = errors.New("transient resource read before any write")
	ErrCycle           = errors.New("dependency cycle")
)

// Compile validates the graph and derives its execution plan.
func (g *Graph) Compile() (*Plan, error) {
	res := make(map[string]Resource, len(g.resources))
	for _, r := range g.resources {
		res[r.Name] = r
	}
	index := make(map[string]int, len(g.passes))
	for i, p := range g.passes {
		index[p.Name] = i
	}

	n := len(g.passes)
	edges := make([]map[int]struct{}, n)
	for i := range edges {
		edges[i] = make(map[int]struct{})
	}
	addEdge := func(from, to int) {
		if from != to {
			edges[to][from] = struct{}{}
		}
	}

	lastWriter := make(map[string]int)
	readers := make(map[string][]int)

	for i, p := range g.passes {
		for _, name := range p.Reads {
			r, ok := res[name]
			if !ok {
				return nil, fmt.Errorf("pass %q reads %q: %w", p.Name, name, ErrUnknownResource)
			}
			w, written := lastWriter[name]
			switch {
			case written:
				addEdge(w, i)
			case !r.Persistent && !r.External:
				return nil, fmt.Errorf("pass %q reads %q: %w", p.Name, name, ErrUnwritten)
			}
			readers[name] = append(readers[name], i)
		}
		for _, name := range p.Writes {
			if _, ok := res[name]; !ok {
				return nil, fmt.Errorf("pass %q writes %q: %w", p.Name, name, ErrUnknownResource)
			}
			if w, ok := lastWriter[name]; ok {
				addEdge(w, i)
			}
			for _, r := range readers[name] {
				addEdge(r, i)
			}
			readers[name] = nil
			lastWriter[name] = i
		}
		for _, dep := range p.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("pass %q after %q: %w", p.Name, dep, ErrUnknownPass)
			}
			addEdge(j, i)
		}
	}

	order, err := topoSort(g.passes, edges)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		passes:    make(map[string]*Pass, n),
		deps:      make(map[string][]string, n),
		resources: slices.Clone(g.resources),
	}
	for i := range g.passes {
		p := g.passes[i]
		plan.passes[p.Name] = &p
		var deps []string
		for j := range edges[i] {
			deps = append(deps, g.passes[j].Name)
		}
		slices.SortFunc(deps, func(a, b string) int { return index[a] - index[b] })
		plan.deps[p.Name] = deps
	}
	for _, i := range order {
		plan.order = append(plan.order, g.passes[i].Name)
	}
	return plan, nil
}

// topoSort is Kahn's algorithm, always taking the ready pass declared
// earliest so the order is stable.
func topoSort(passes []Pass, edges []map[int]struct{}) ([]int, error) {
	n := len(passes)
	indeg := make([]int, n)
	users := make([][]int, n)
	for to, froms := range edges {
		indeg[to] = len(froms)
		for from := range froms {
			users[from] = append(users[from], to)
		}
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, u := range users[i] {
			indeg[u]--
			if indeg[u] == 0 {
				ready = append(ready, u)
			}
		}
	}

	if len(order) != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, passes[i].Name)
			}
		}
		return nil, fmt.Errorf("%w between %v", ErrCycle, stuck)
	}
	return order, nil
}
