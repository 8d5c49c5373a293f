// Package resource defines the content store through which negotiations read
// and write shared project resources. Stores are keyed by relative,
// slash-separated paths.
package resource

import (
	"hash"
	"hash/crc32"
	"io"
	pathpkg "path"
	"strings"

	"github.com/pkg/errors"
)

// Resource describes a single entry in a store listing.
type Resource struct {
	// Path is the relative, slash-separated path of the resource, without a
	// leading or trailing separator.
	Path string
	// Directory indicates whether or not the resource is a directory.
	Directory bool
}

// Store is the interface to a project's content. Implementations must be safe
// for concurrent usage.
type Store interface {
	// List returns every resource in the store. Parent directories are listed
	// before their contents.
	List() ([]Resource, error)
	// Open opens the file at the specified path for reading.
	Open(path string) (io.ReadCloser, error)
	// Checksum returns the content checksum of the file at the specified path.
	// Implementations may cache checksums.
	Checksum(path string) (uint32, error)
	// Exists returns whether or not a resource exists at the specified path.
	Exists(path string) bool
	// CreateFolder creates the directory at the specified path, including any
	// missing parents.
	CreateFolder(path string) error
	// WriteFile creates or replaces the file at the specified path with the
	// contents of the reader, creating parent directories as necessary.
	WriteFile(path string, content io.Reader) error
	// Delete removes the resource at the specified path. Directories are
	// removed along with their contents. Deleting a non-existent resource is
	// not an error.
	Delete(path string) error
}

// Clean validates and normalizes a store path. Leading and trailing
// separators are stripped. Empty paths and paths escaping the store root are
// rejected.
func Clean(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	cleaned := pathpkg.Clean(trimmed)
	if cleaned == "." {
		return "", errors.Errorf("path resolves to store root: %q", path)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Errorf("parent traversal is not allowed: %q", path)
	}
	return cleaned, nil
}

// Checksum computes the content checksum used by stores and file lists.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// NewHash creates a streaming hash that computes checksums compatible with
// Checksum.
func NewHash() hash.Hash32 {
	return crc32.NewIEEE()
}

// ChecksumReader computes the content checksum of everything readable from
// the reader.
func ChecksumReader(reader io.Reader) (uint32, error) {
	hasher := NewHash()
	if _, err := io.Copy(hasher, reader); err != nil {
		return 0, err
	}
	return hasher.Sum32(), nil
}
