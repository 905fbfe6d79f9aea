package validate

import (
	"fmt"
	"strings"

	"github.com/tristendillon/locus/core/deptree"
	"github.com/tristendillon/locus/core/graph"
	"github.com/tristendillon/locus/core/models"
)

// SharedUsage maps each shared bundle of result to the declared bundles
// whose dependency closure contains it.
func SharedUsage(result *deptree.Result) map[string][]string {
	g := graph.FromDependencies(result.BundleDependencies)
	usage := make(map[string][]string, len(result.SharedBundles))
	for _, shared := range result.SharedBundles {
		var users []string
		for _, name := range g.TransitiveDependents(shared.BundleName) {
			if !models.IsSharedBundleName(name) {
				users = append(users, name)
			}
		}
		usage[shared.BundleName] = users
	}
	return usage
}

// SharedBundleReport lists every expected shared bundle and its users.
func SharedBundleReport(result *deptree.Result) string {
	usage := SharedUsage(result)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Expected shared bundles: %d\n", len(usage))
	for _, shared := range result.SharedBundles {
		fmt.Fprintf(&sb, "%s (%s)\n", shared.BundleName, strings.Join(shared.AssetPaths, ", "))
		for _, user := range usage[shared.BundleName] {
			sb.WriteString("\t" + user + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
