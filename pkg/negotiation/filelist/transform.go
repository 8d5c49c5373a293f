package filelist

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/resource"
)

// Transform is a step in a diff processing pipeline.
type Transform func(Diff) (Diff, error)

// Apply runs a diff through a pipeline of transforms, in order. The input diff
// is never modified.
func Apply(diff Diff, transforms ...Transform) (Diff, error) {
	for _, transform := range transforms {
		var err error
		if diff, err = transform(diff); err != nil {
			return Diff{}, err
		}
	}
	return diff, nil
}

// MaterializeFolders creates every added directory that doesn't already exist
// in the store and drops all directories from the added set, leaving only the
// files that still need to be fetched. A removed file occupying the path of an
// added directory is deleted first and dropped from the removed set.
func MaterializeFolders(store resource.Store) Transform {
	return func(diff Diff) (Diff, error) {
		// Index removed files by store path.
		removedFiles := make(map[string]bool)
		for _, path := range diff.removed {
			if !IsDirectory(path) {
				removedFiles[StorePath(path)] = true
			}
		}

		// Create folders.
		var files []string
		replaced := make(map[string]bool)
		for _, path := range diff.added {
			if !IsDirectory(path) {
				files = append(files, path)
				continue
			}
			storePath := StorePath(path)
			if removedFiles[storePath] {
				if err := store.Delete(storePath); err != nil {
					return Diff{}, errors.Wrapf(err, "unable to replace file %q with folder", storePath)
				}
				replaced[storePath] = true
			} else if store.Exists(storePath) {
				continue
			}
			if err := store.CreateFolder(storePath); err != nil {
				return Diff{}, errors.Wrapf(err, "unable to create folder %q", path)
			}
		}
		diff.added = files

		// Drop replaced files from the removed set.
		if len(replaced) > 0 {
			var removed []string
			for _, path := range diff.removed {
				if IsDirectory(path) || !replaced[StorePath(path)] {
					removed = append(removed, path)
				}
			}
			diff.removed = removed
		}
		return diff, nil
	}
}

// FilterDeletions strips every removed path that is an ancestor directory of
// a path that will still exist afterwards, whether unaltered, added, or
// altered.
func FilterDeletions() Transform {
	return func(diff Diff) (Diff, error) {
		// Compute the set of protected directories.
		protected := make(map[string]bool)
		for _, set := range [][]string{diff.unaltered, diff.added, diff.altered} {
			for _, path := range set {
				for _, ancestor := range ancestors(path) {
					protected[ancestor] = true
				}
			}
		}

		// Filter the removed set.
		var removed []string
		for _, path := range diff.removed {
			if !protected[path] {
				removed = append(removed, path)
			}
		}
		diff.removed = removed
		return diff, nil
	}
}

// ApplyDeletions deletes every removed path from the store and clears the
// removed set. Deeper paths are deleted first.
func ApplyDeletions(store resource.Store) Transform {
	return func(diff Diff) (Diff, error) {
		removed := copyPaths(diff.removed)
		sort.Sort(sort.Reverse(sort.StringSlice(removed)))
		for _, path := range removed {
			if err := store.Delete(StorePath(path)); err != nil {
				return Diff{}, errors.Wrapf(err, "unable to delete %q", path)
			}
		}
		diff.removed = nil
		return diff, nil
	}
}

// DiscardDeletions clears the removed set without touching the store. It is
// used for partial projects, where paths absent from the remote list may
// simply not be shared.
func DiscardDeletions() Transform {
	return func(diff Diff) (Diff, error) {
		diff.removed = nil
		return diff, nil
	}
}
