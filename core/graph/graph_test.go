package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGraph() *Graph {
	return FromDependencies(map[string][]string{
		"ui.bundle":       {"shared_a.bundle"},
		"chars.bundle":    {"shared_a.bundle", "fx.bundle"},
		"fx.bundle":       {"shared_b.bundle"},
		"shared_a.bundle": {"shared_b.bundle"},
	})
}

func TestDependents(t *testing.T) {
	g := setupGraph()

	assert.Equal(t, []string{"chars.bundle", "ui.bundle"}, g.Dependents("shared_a.bundle"))
	assert.Equal(t, []string{"chars.bundle", "fx.bundle", "shared_a.bundle", "ui.bundle"}, g.TransitiveDependents("shared_b.bundle"))
	assert.True(t, g.Has("shared_b.bundle"), "dependency-only nodes are created")
	assert.Nil(t, g.Dependencies("missing"))
}

func TestTopologicalOrder(t *testing.T) {
	order, err := setupGraph().TopologicalOrder()
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["shared_b.bundle"], pos["shared_a.bundle"])
	assert.Less(t, pos["shared_a.bundle"], pos["ui.bundle"])
	assert.Less(t, pos["fx.bundle"], pos["chars.bundle"])
}

func TestCycles(t *testing.T) {
	g := FromDependencies(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {},
	})

	cycles := g.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c"}, cycles[0])

	_, err := g.TopologicalOrder()
	assert.Error(t, err)
	assert.Empty(t, setupGraph().DetectCycles())
}

func TestSetNodeReplacesEdges(t *testing.T) {
	g := setupGraph()
	g.SetNode("ui.bundle", []string{"fx.bundle"})

	assert.Equal(t, []string{"chars.bundle"}, g.Dependents("shared_a.bundle"))
	assert.Equal(t, []string{"chars.bundle", "ui.bundle"}, g.Dependents("fx.bundle"))

	g.RemoveNode("fx.bundle")
	assert.Empty(t, g.Dependencies("ui.bundle"))
	assert.False(t, g.Has("fx.bundle"))
}
