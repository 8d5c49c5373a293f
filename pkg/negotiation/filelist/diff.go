package filelist

import (
	"fmt"
	"sort"
	"strings"
)

// Diff is the classification of the paths in a pair of file lists. It is an
// immutable value: transforms return new diffs rather than modifying
// existing ones. Each set is sorted.
type Diff struct {
	// added are the paths present only in the target.
	added []string
	// removed are the paths present only in the base.
	removed []string
	// altered are the files present in both lists with differing content.
	altered []string
	// unaltered are the paths present in both lists with identical content,
	// along with all directories present in both lists.
	unaltered []string
}

// Compare computes the diff from base to target. If either list is nil, the
// result is an empty diff.
func Compare(base, target *FileList) Diff {
	// Handle the degenerate case.
	if base == nil || target == nil {
		return Diff{}
	}

	// Classify paths in the base.
	var result Diff
	for path, baseMetaData := range base.entries {
		targetMetaData, ok := target.entries[path]
		if !ok {
			result.removed = append(result.removed, path)
		} else if IsDirectory(path) || sameContent(baseMetaData, targetMetaData) {
			result.unaltered = append(result.unaltered, path)
		} else {
			result.altered = append(result.altered, path)
		}
	}

	// Classify paths only in the target.
	for path := range target.entries {
		if _, ok := base.entries[path]; !ok {
			result.added = append(result.added, path)
		}
	}

	// Sort the results.
	sort.Strings(result.added)
	sort.Strings(result.removed)
	sort.Strings(result.altered)
	sort.Strings(result.unaltered)

	// Done.
	return result
}

// sameContent determines whether or not two files are considered identical.
// Files without checksums on both sides are treated as identical.
func sameContent(first, second *MetaData) bool {
	if first == nil || second == nil {
		return first == nil && second == nil
	}
	return first.Checksum == second.Checksum
}

// copyPaths returns a copy of a path set.
func copyPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	return append([]string(nil), paths...)
}

// Added returns the paths present only in the target.
func (d Diff) Added() []string {
	return copyPaths(d.added)
}

// Removed returns the paths present only in the base.
func (d Diff) Removed() []string {
	return copyPaths(d.removed)
}

// Altered returns the files whose content differs.
func (d Diff) Altered() []string {
	return copyPaths(d.altered)
}

// Unaltered returns the paths whose content is identical.
func (d Diff) Unaltered() []string {
	return copyPaths(d.unaltered)
}

// Missing returns the paths that must be fetched to bring the base in line
// with the target: the union of added and altered paths.
func (d Diff) Missing() []string {
	result := make([]string, 0, len(d.added)+len(d.altered))
	result = append(result, d.added...)
	result = append(result, d.altered...)
	sort.Strings(result)
	return result
}

// Empty returns whether or not the diff requires any changes.
func (d Diff) Empty() bool {
	return len(d.added) == 0 && len(d.removed) == 0 && len(d.altered) == 0
}

// String provides a summary of the diff.
func (d Diff) String() string {
	return fmt.Sprintf("%d added, %d removed, %d altered, %d unaltered",
		len(d.added), len(d.removed), len(d.altered), len(d.unaltered),
	)
}

// ancestors returns the directory ancestors of a path, each with a trailing
// separator.
func ancestors(path string) []string {
	var result []string
	trimmed := strings.TrimSuffix(path, "/")
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '/' {
			result = append(result, trimmed[:i+1])
		}
	}
	return result
}
