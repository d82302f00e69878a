package compiler

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/epsync/internal/ir"
)

// CycleError reports parent references that loop back on themselves.
type CycleError struct {
	Path []string `json:"path"` // e.g. ["enum/a", "enum/b", "enum/a"]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("[%s] parent cycle: %s", ErrParentCycle, strings.Join(e.Path, " -> "))
}

// Order returns specs sorted so every parent precedes its children. Specs
// without an ordering constraint keep their declaration order.
//
// The algorithm:
//  1. Build the child -> parent graph from Parent references
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Reject any SCC with size > 1 or a self-loop as a cycle
//  4. Emit specs depth-first, parents before children
//
// A parent that is not declared is a ValidationError with ErrDanglingParent.
func Order(specs []ir.EntitySpec) ([]ir.EntitySpec, error) {
	if len(specs) == 0 {
		return []ir.EntitySpec{}, nil
	}

	index := make(map[ir.Ref]int, len(specs))
	for i, s := range specs {
		if _, ok := index[s.Key()]; !ok {
			index[s.Key()] = i
		}
	}

	for i, s := range specs {
		if s.Parent == nil {
			continue
		}
		if _, ok := index[*s.Parent]; !ok {
			return nil, ValidationError{
				Field:   field(i, "parent"),
				Message: fmt.Sprintf("parent %s is not declared", s.Parent),
				Code:    ErrDanglingParent,
			}
		}
	}

	graph, nodes := buildParentGraph(specs)
	for _, scc := range tarjanSCC(graph, nodes) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			return nil, &CycleError{Path: reconstructCyclePath(scc, graph)}
		}
	}

	out := make([]ir.EntitySpec, 0, len(specs))
	done := make([]bool, len(specs))
	var visit func(i int)
	visit = func(i int) {
		if done[i] {
			return
		}
		done[i] = true
		if p := specs[i].Parent; p != nil {
			visit(index[*p])
		}
		out = append(out, specs[i])
	}
	for i := range specs {
		visit(i)
	}
	return out, nil
}

// parentGraph maps an entity key to the keys it depends on.
type parentGraph map[string][]string

// buildParentGraph returns the graph and its nodes in declaration order.
func buildParentGraph(specs []ir.EntitySpec) (parentGraph, []string) {
	graph := make(parentGraph, len(specs))
	for _, s := range specs {
		key := s.Key().String()
		if graph[key] == nil {
			graph[key] = []string{}
		}
		if s.Parent != nil {
			graph[key] = append(graph[key], s.Parent.String())
		}
	}
	nodes := lo.Uniq(lo.Map(specs, func(s ir.EntitySpec, _ int) string {
		return s.Key().String()
	}))
	return graph, nodes
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph parentGraph) bool {
	return lo.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in the given order so results are deterministic.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph parentGraph, nodes []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath follows edges inside an SCC from its first node
// until it returns to the start.
func reconstructCyclePath(scc []string, graph parentGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := lo.SliceToMap(scc, func(n string) (string, bool) { return n, true })

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
