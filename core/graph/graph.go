package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tristendillon/locus/core/logger"
)

// Node is one bundle and its direct edges in both directions.
type Node struct {
	Name         string
	Dependencies []string // bundles this one references
	Dependents   []string // bundles that reference this one
}

// Graph is a bundle dependency graph with reverse edges.
type Graph struct {
	nodes map[string]*Node
	mutex sync.RWMutex
}

func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// FromDependencies builds a graph from a bundle -> direct dependencies map.
func FromDependencies(deps map[string][]string) *Graph {
	g := New()
	for _, name := range sortedKeys(deps) {
		g.SetNode(name, deps[name])
	}
	logger.Debug("BundleGraph: Built graph with %d nodes", len(g.nodes))
	return g
}

// SetNode replaces the dependencies of a node, creating it if needed.
func (g *Graph) SetNode(name string, dependencies []string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	node := g.ensure(name)
	for _, old := range node.Dependencies {
		if dep, ok := g.nodes[old]; ok {
			dep.Dependents = removeFromSlice(dep.Dependents, name)
		}
	}

	node.Dependencies = append([]string(nil), dependencies...)
	for _, dep := range dependencies {
		depNode := g.ensure(dep)
		if !contains(depNode.Dependents, name) {
			depNode.Dependents = append(depNode.Dependents, name)
		}
	}
}

// RemoveNode removes a node and every edge touching it.
func (g *Graph) RemoveNode(name string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	node, ok := g.nodes[name]
	if !ok {
		return
	}
	for _, dep := range node.Dependencies {
		if depNode, ok := g.nodes[dep]; ok {
			depNode.Dependents = removeFromSlice(depNode.Dependents, name)
		}
	}
	for _, dependent := range node.Dependents {
		if depNode, ok := g.nodes[dependent]; ok {
			depNode.Dependencies = removeFromSlice(depNode.Dependencies, name)
		}
	}
	delete(g.nodes, name)
}

func (g *Graph) Has(name string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[name]
	return ok
}

// Names returns every node name, sorted.
func (g *Graph) Names() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedKeys(g.nodes)
}

func (g *Graph) Dependencies(name string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if node, ok := g.nodes[name]; ok {
		return append([]string(nil), node.Dependencies...)
	}
	return nil
}

func (g *Graph) Dependents(name string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if node, ok := g.nodes[name]; ok {
		deps := append([]string(nil), node.Dependents...)
		sort.Strings(deps)
		return deps
	}
	return nil
}

// TransitiveDependents returns every bundle that reaches name, sorted.
func (g *Graph) TransitiveDependents(name string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	visited := map[string]bool{name: true}
	var affected []string
	g.dfsVisitDependents(name, visited, &affected)
	sort.Strings(affected)
	return affected
}

// DetectCycles returns one path per cycle found by a depth first search.
func (g *Graph) DetectCycles() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	for _, name := range sortedKeys(g.nodes) {
		if !visited[name] {
			if cycle := g.dfsFindCycle(name, visited, onStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}
	if len(cycles) > 0 {
		logger.Debug("BundleGraph: Detected %d cycles", len(cycles))
	}
	return cycles
}

// TopologicalOrder lists bundles so every bundle follows its dependencies.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	var queue []string
	for _, name := range sortedKeys(g.nodes) {
		inDegree[name] = len(g.nodes[name].Dependencies)
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := append([]string(nil), g.nodes[current].Dependents...)
		sort.Strings(dependents)
		for _, dependent := range dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("bundle graph contains cycles")
	}
	return result, nil
}

// ensure must be called with the write lock held.
func (g *Graph) ensure(name string) *Node {
	node, ok := g.nodes[name]
	if !ok {
		node = &Node{Name: name}
		g.nodes[name] = node
	}
	return node
}

func (g *Graph) dfsVisitDependents(name string, visited map[string]bool, affected *[]string) {
	node, ok := g.nodes[name]
	if !ok {
		return
	}
	for _, dependent := range node.Dependents {
		if visited[dependent] {
			continue
		}
		visited[dependent] = true
		*affected = append(*affected, dependent)
		g.dfsVisitDependents(dependent, visited, affected)
	}
}

func (g *Graph) dfsFindCycle(name string, visited, onStack map[string]bool, path []string) []string {
	visited[name] = true
	onStack[name] = true
	path = append(path, name)
	defer func() { onStack[name] = false }()

	for _, dep := range g.nodes[name].Dependencies {
		if !visited[dep] {
			if cycle := g.dfsFindCycle(dep, visited, onStack, path); cycle != nil {
				return cycle
			}
		} else if onStack[dep] {
			for i, p := range path {
				if p == dep {
					return append([]string(nil), path[i:]...)
				}
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func removeFromSlice(slice []string, item string) []string {
	var result []string
	for _, s := range slice {
		if s != item {
			result = append(result, s)
		}
	}
	return result
}
