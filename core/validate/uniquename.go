package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tristendillon/locus/core/config"
)

var ErrDuplicatePackageName = errors.New("duplicate package names")

// DuplicateNameError lists every duplicated package name with the settings
// files that use it.
type DuplicateNameError struct {
	Names map[string][]string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("found duplicated names(%s)", strings.Join(sortedKeys(e.Names), ","))
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicatePackageName
}

func FindDuplicatePackageNames(packages []*config.PackageSettings) map[string][]string {
	byName := make(map[string][]string)
	for _, pkg := range packages {
		byName[pkg.Name] = append(byName[pkg.Name], pkg.SourcePath)
	}
	for name, sources := range byName {
		if len(sources) < 2 {
			delete(byName, name)
		}
	}
	return byName
}

func AssertUniquePackageNames(packages []*config.PackageSettings) error {
	found := FindDuplicatePackageNames(packages)
	if len(found) == 0 {
		return nil
	}
	return &DuplicateNameError{Names: found}
}

func UniqueNameReport(packages []*config.PackageSettings, now time.Time) string {
	found := FindDuplicatePackageNames(packages)

	var sb strings.Builder
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "Duplicated package name %d cases\n", len(found))
	fmt.Fprintf(&sb, "Report date: %s\n", now.Format(reportTimeFormat))
	sb.WriteString(separator + "\n")
	for _, name := range sortedKeys(found) {
		sb.WriteString(name + "\n")
		sources := append([]string(nil), found[name]...)
		sort.Strings(sources)
		for _, src := range sources {
			sb.WriteString("\t" + src + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
