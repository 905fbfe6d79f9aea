package deptree

import (
	"fmt"
	"sort"

	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

type nodeID int

type bundleID int

// node is an arena vertex. Roots own themselves; indirect nodes point at the
// root whose traversal created them.
type node struct {
	path     string
	owner    nodeID
	bundle   bundleID
	root     bool
	shared   bool
	removed  bool
	children []nodeID
}

// bundleAcc is the per-bundle accumulator every root of one bundle writes
// its cross-bundle references into.
type bundleAcc struct {
	name       string
	referenced map[string]struct{}
}

// buildContext is the state of one Process call. It is never shared.
type buildContext struct {
	resolver Resolver
	nodes    []node
	bundles  []bundleAcc
	roots    map[string]nodeID
	indirect map[string]nodeID
	shared   []nodeID
}

func newContext(resolver Resolver) *buildContext {
	return &buildContext{
		resolver: resolver,
		roots:    make(map[string]nodeID),
		indirect: make(map[string]nodeID),
	}
}

func (c *buildContext) addBundle(name string) bundleID {
	c.bundles = append(c.bundles, bundleAcc{name: name, referenced: make(map[string]struct{})})
	return bundleID(len(c.bundles) - 1)
}

func (c *buildContext) addRoot(path string, bundle bundleID, shared bool) nodeID {
	id := nodeID(len(c.nodes))
	c.nodes = append(c.nodes, node{path: path, owner: id, bundle: bundle, root: true, shared: shared})
	c.roots[path] = id
	return id
}

func (c *buildContext) addIndirect(path string, parent, owner nodeID) nodeID {
	id := nodeID(len(c.nodes))
	c.nodes = append(c.nodes, node{path: path, owner: owner, bundle: c.nodes[owner].bundle})
	c.nodes[parent].children = append(c.nodes[parent].children, id)
	c.indirect[path] = id
	return id
}

func (c *buildContext) reference(from bundleID, to string) {
	if c.bundles[from].name == to {
		return
	}
	c.bundles[from].referenced[to] = struct{}{}
}

func (c *buildContext) seed(defs []models.BundleDefinition) error {
	declaredBy := make(map[string][]string)
	bundleNames := make(map[string]bool)

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if bundleNames[def.BundleName] {
			return fmt.Errorf("%w: %s", ErrDuplicateBundle, def.BundleName)
		}
		bundleNames[def.BundleName] = true

		bundle := c.addBundle(def.BundleName)
		for _, p := range def.AssetPaths {
			declaredBy[p] = append(declaredBy[p], def.BundleName)
			if _, exists := c.roots[p]; exists {
				continue
			}
			c.addRoot(p, bundle, false)
		}
	}

	duplicates := make(map[string][]string)
	for p, bundles := range declaredBy {
		if len(bundles) > 1 {
			duplicates[p] = bundles
		}
	}
	if len(duplicates) > 0 {
		return &DuplicateAssetError{Assets: duplicates}
	}
	return nil
}

// expand walks the dependencies of current on behalf of root.
func (c *buildContext) expand(root, current nodeID) error {
	deps, err := c.resolver.Dependencies(c.nodes[current].path)
	if err != nil {
		return err
	}

	rootBundle := c.nodes[root].bundle
	for _, dep := range deps {
		if depRoot, ok := c.roots[dep]; ok {
			c.reference(rootBundle, c.bundles[c.nodes[depRoot].bundle].name)
			continue
		}

		if existing, ok := c.indirect[dep]; ok {
			if c.nodes[existing].bundle == rootBundle {
				continue
			}
			if err := c.promote(existing, root); err != nil {
				return err
			}
			continue
		}

		child := c.addIndirect(dep, current, root)
		if err := c.expand(root, child); err != nil {
			return err
		}
	}
	return nil
}

// promote turns an indirect node reached from a second bundle into the root
// of a new shared bundle and expands it.
func (c *buildContext) promote(existing, root nodeID) error {
	path := c.nodes[existing].path
	previousOwner := c.nodes[existing].bundle
	c.removeFromTree(existing)

	guid, err := c.resolver.GUID(path)
	if err != nil {
		return fmt.Errorf("failed to resolve guid of %s: %w", path, err)
	}
	name := models.SharedBundleName(guid)

	shared := c.addRoot(path, c.addBundle(name), true)
	c.shared = append(c.shared, shared)
	c.reference(previousOwner, name)
	c.reference(c.nodes[root].bundle, name)
	logger.Debug("DependencyTree: %s is shared by %s and %s, extracted to %s",
		path, c.bundles[previousOwner].name, c.bundles[c.nodes[root].bundle].name, name)

	return c.expand(shared, shared)
}

// removeFromTree drops a node and its subtree from indirect tracking.
func (c *buildContext) removeFromTree(id nodeID) {
	n := &c.nodes[id]
	if n.removed {
		return
	}
	n.removed = true
	if c.indirect[n.path] == id {
		delete(c.indirect, n.path)
	}
	for _, child := range n.children {
		c.removeFromTree(child)
	}
}

func (c *buildContext) result() *Result {
	deps := make(map[string][]string, len(c.bundles))
	for _, b := range c.bundles {
		names := make([]string, 0, len(b.referenced))
		for name := range b.referenced {
			names = append(names, name)
		}
		sort.Strings(names)
		deps[b.name] = names
	}

	shared := make([]models.BundleDefinition, 0, len(c.shared))
	for _, id := range c.shared {
		n := c.nodes[id]
		shared = append(shared, models.BundleDefinition{
			BundleName:       c.bundles[n.bundle].name,
			AssetPaths:       []string{n.path},
			AddressableNames: []string{n.path},
		})
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].BundleName < shared[j].BundleName })

	return &Result{
		BundleDependencies: deps,
		SharedBundles:      shared,
		AllAssets:          c.collectAssets(),
	}
}

// collectAssets sweeps every live root breadth first.
func (c *buildContext) collectAssets() []string {
	seen := make(map[string]bool)
	var assets []string
	var queue []nodeID
	for id := range c.nodes {
		if c.nodes[id].root {
			queue = append(queue, nodeID(id))
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := c.nodes[id]
		if !seen[n.path] {
			seen[n.path] = true
			assets = append(assets, n.path)
		}
		queue = append(queue, n.children...)
	}
	return assets
}
