// Package filelist provides file list snapshots of shared projects and the
// diff algorithm used to reconcile them.
package filelist

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"golang.org/x/text/unicode/norm"

	"github.com/colabsync/colabsync/pkg/resource"
)

// MetaData is the per-file metadata carried by a file list.
type MetaData struct {
	// Checksum is the file content checksum.
	Checksum uint32
}

// Entry is a single file list entry.
type Entry struct {
	// Path is the normalized path. Directory paths carry a trailing separator.
	Path string
	// MetaData is the entry metadata. It is nil for directories and for
	// entries created without checksums.
	MetaData *MetaData
}

// IsDirectory returns whether or not the path denotes a directory.
func IsDirectory(path string) bool {
	return strings.HasSuffix(path, "/")
}

// Normalize converts a path to its file list form: NFC-normalized, cleaned,
// without a leading separator, and with a trailing separator if and only if
// it denotes a directory.
func Normalize(path string, directory bool) (string, error) {
	cleaned, err := resource.Clean(norm.NFC.String(path))
	if err != nil {
		return "", err
	}
	if directory {
		cleaned += "/"
	}
	return cleaned, nil
}

// StorePath converts a file list path to the corresponding store path.
func StorePath(path string) string {
	return strings.TrimSuffix(path, "/")
}

// FileList is an immutable snapshot of the paths in a project, with optional
// per-file checksums.
type FileList struct {
	// entries maps normalized paths to their metadata.
	entries map[string]*MetaData
}

// FromEntries creates a file list from a set of entries. Paths are normalized,
// with trailing separators in the input denoting directories. Duplicate paths
// are rejected.
func FromEntries(entries []Entry) (*FileList, error) {
	result := &FileList{entries: make(map[string]*MetaData, len(entries))}
	for _, entry := range entries {
		path, err := Normalize(entry.Path, IsDirectory(entry.Path))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid path %q", entry.Path)
		}
		if _, ok := result.entries[path]; ok {
			return nil, errors.Errorf("duplicate path %q", path)
		}
		var metadata *MetaData
		if entry.MetaData != nil && !IsDirectory(path) {
			copied := *entry.MetaData
			metadata = &copied
		}
		result.entries[path] = metadata
	}
	return result, nil
}

// FromPaths creates a file list without checksums. Paths with a trailing
// separator denote directories.
func FromPaths(paths ...string) (*FileList, error) {
	entries := make([]Entry, len(paths))
	for i, path := range paths {
		entries[i] = Entry{Path: path}
	}
	return FromEntries(entries)
}

// Build creates a file list with checksums for every resource in the store
// that the selection shares. It also returns whether or not the selection
// excluded any resources, in which case the project is partial. A nil
// selection shares everything.
func Build(store resource.Store, selection *Selection) (*FileList, bool, error) {
	// List the store contents.
	resources, err := store.List()
	if err != nil {
		return nil, false, errors.Wrap(err, "unable to list resources")
	}

	// Process resources. Listings place parents before their contents, so we
	// can track excluded directories as we go.
	result := &FileList{entries: make(map[string]*MetaData, len(resources))}
	var partial bool
	var excluded []string
	for _, r := range resources {
		// Skip contents of excluded directories.
		if underAny(r.Path, excluded) {
			continue
		}

		// Apply the selection.
		if selection.Excludes(r.Path, r.Directory) {
			partial = true
			if r.Directory {
				excluded = append(excluded, r.Path+"/")
			}
			continue
		}

		// Compute the entry path.
		path, err := Normalize(r.Path, r.Directory)
		if err != nil {
			return nil, false, errors.Wrapf(err, "invalid resource path %q", r.Path)
		}

		// Directories carry no metadata.
		if r.Directory {
			result.entries[path] = nil
			continue
		}

		// Compute the file checksum.
		checksum, err := store.Checksum(r.Path)
		if err != nil {
			return nil, false, errors.Wrapf(err, "unable to compute checksum for %q", r.Path)
		}
		result.entries[path] = &MetaData{Checksum: checksum}
	}

	// Success.
	return result, partial, nil
}

// underAny returns whether or not path lies beneath any of the prefixes, each
// of which carries a trailing separator.
func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of entries in the list.
func (l *FileList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Contains returns whether or not the list contains the specified normalized
// path.
func (l *FileList) Contains(path string) bool {
	if l == nil {
		return false
	}
	_, ok := l.entries[path]
	return ok
}

// MetaData returns the metadata for the specified normalized path, if any.
func (l *FileList) MetaData(path string) *MetaData {
	if l == nil {
		return nil
	}
	if metadata := l.entries[path]; metadata != nil {
		copied := *metadata
		return &copied
	}
	return nil
}

// Paths returns the sorted paths in the list.
func (l *FileList) Paths() []string {
	if l == nil {
		return nil
	}
	result := make([]string, 0, len(l.entries))
	for path := range l.entries {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

// Entries returns the sorted entries in the list.
func (l *FileList) Entries() []Entry {
	paths := l.Paths()
	result := make([]Entry, len(paths))
	for i, path := range paths {
		result[i] = Entry{Path: path, MetaData: l.MetaData(path)}
	}
	return result
}
