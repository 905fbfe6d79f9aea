package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Change describes how one bundle differs between two manifests.
type Change struct {
	BundleName string
	Kind       ChangeKind
	OldHash    string
	NewHash    string
	SizeDelta  int64
}

type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Compare lists added, removed and modified bundles, sorted by name.
func Compare(from, to *Manifest) []Change {
	before := make(map[string]BundleInfo, len(from.BundleInfos))
	for _, info := range from.BundleInfos {
		before[info.BundleName] = info
	}

	var changes []Change
	for _, info := range to.BundleInfos {
		prev, ok := before[info.BundleName]
		delete(before, info.BundleName)
		switch {
		case !ok:
			changes = append(changes, Change{BundleName: info.BundleName, Kind: Added, NewHash: info.Hash, SizeDelta: info.Size})
		case prev.Hash != info.Hash || prev.Size != info.Size || !sameStrings(prev.Dependencies, info.Dependencies):
			changes = append(changes, Change{
				BundleName: info.BundleName,
				Kind:       Modified,
				OldHash:    prev.Hash,
				NewHash:    info.Hash,
				SizeDelta:  info.Size - prev.Size,
			})
		}
	}
	for name, info := range before {
		changes = append(changes, Change{BundleName: name, Kind: Removed, OldHash: info.Hash, SizeDelta: -info.Size})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].BundleName < changes[j].BundleName })
	return changes
}

// UnifiedDiff renders a line diff of the two manifests' JSON.
func UnifiedDiff(from, to *Manifest, fromName, toName string) (string, error) {
	a, err := from.Marshal()
	if err != nil {
		return "", err
	}
	b, err := to.Marshal()
	if err != nil {
		return "", err
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff manifests: %w", err)
	}
	return text, nil
}

func sameStrings(a, b []string) bool {
	return strings.Join(a, "\x00") == strings.Join(b, "\x00")
}
