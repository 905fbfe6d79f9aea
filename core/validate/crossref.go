// Package validate checks a multi-package build for assets claimed by more
// than one package and for duplicate package names.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tristendillon/locus/core/deptree"
)

var ErrCrossReference = errors.New("assets are cross referenced between packages")

const separator = "------------------------------------------------------------------------------------------"

const reportTimeFormat = "2006-01-02 15:04:05"

// PackageResult is the dependency tree of one top-level package.
type PackageResult struct {
	// Package identifies the package in reports, usually its settings path.
	Package string
	Result  *deptree.Result
}

// CrossReferenceError carries every cross referenced asset and the
// packages that reach it.
type CrossReferenceError struct {
	Assets map[string][]string
}

func (e *CrossReferenceError) Error() string {
	return fmt.Sprintf("found %d cross referenced assets: %s", len(e.Assets), strings.Join(sortedKeys(e.Assets), ", "))
}

func (e *CrossReferenceError) Unwrap() error {
	return ErrCrossReference
}

// FindCrossReferences maps every asset reached by more than one package to
// those packages, in package order.
func FindCrossReferences(results []PackageResult) map[string][]string {
	used := make(map[string][]string)
	for _, pr := range results {
		for _, asset := range pr.Result.AllAssets {
			used[asset] = append(used[asset], pr.Package)
		}
	}

	found := make(map[string][]string)
	for asset, packages := range used {
		if len(packages) > 1 {
			found[asset] = packages
		}
	}
	return found
}

// AssertNoCrossReference fails with a *CrossReferenceError listing every case.
func AssertNoCrossReference(results []PackageResult) error {
	found := FindCrossReferences(results)
	if len(found) == 0 {
		return nil
	}
	return &CrossReferenceError{Assets: found}
}

// CrossReferenceReport renders the human readable cross reference report.
func CrossReferenceReport(results []PackageResult, now time.Time) string {
	found := FindCrossReferences(results)

	var sb strings.Builder
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "Found cross referenced %d cases\n", len(found))
	fmt.Fprintf(&sb, "Report date: %s\n", now.Format(reportTimeFormat))
	sb.WriteString(separator + "\n")
	for _, asset := range sortedKeys(found) {
		sb.WriteString(asset + "\n")
		sb.WriteString("Referenced from\n")
		for _, pkg := range found[asset] {
			sb.WriteString("\t" + pkg + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
