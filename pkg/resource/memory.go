package resource

import (
	"bytes"
	"io"
	"os"
	pathpkg "path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// memoryEntry is a single resource held by a Memory store.
type memoryEntry struct {
	// directory indicates whether or not the entry is a directory.
	directory bool
	// content is the file content. It is nil for directories.
	content []byte
}

// Memory is an in-memory Store implementation. Its zero value is not usable;
// use NewMemory.
type Memory struct {
	// lock guards entries.
	lock sync.RWMutex
	// entries maps cleaned paths to their entries.
	entries map[string]*memoryEntry
}

// NewMemory creates a new in-memory store populated with the specified files.
// Keys ending in a separator denote directories and their values are ignored.
func NewMemory(files map[string]string) (*Memory, error) {
	m := &Memory{entries: make(map[string]*memoryEntry)}
	for path, content := range files {
		if strings.HasSuffix(path, "/") {
			if err := m.CreateFolder(path); err != nil {
				return nil, err
			}
		} else if err := m.WriteFile(path, strings.NewReader(content)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// List implements Store.List.
func (m *Memory) List() ([]Resource, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	// Generate the listing. Sorting by path guarantees that parents precede
	// their contents.
	result := make([]Resource, 0, len(m.entries))
	for path, entry := range m.entries {
		result = append(result, Resource{Path: path, Directory: entry.directory})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result, nil
}

// file looks up a file entry.
func (m *Memory) file(path string) ([]byte, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	entry, ok := m.entries[path]
	if !ok {
		return nil, errors.Wrapf(os.ErrNotExist, "no resource at %q", path)
	} else if entry.directory {
		return nil, errors.Errorf("resource at %q is a directory", path)
	}
	return entry.content, nil
}

// Open implements Store.Open.
func (m *Memory) Open(path string) (io.ReadCloser, error) {
	content, err := m.file(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Checksum implements Store.Checksum.
func (m *Memory) Checksum(path string) (uint32, error) {
	content, err := m.file(path)
	if err != nil {
		return 0, err
	}
	return Checksum(content), nil
}

// Exists implements Store.Exists.
func (m *Memory) Exists(path string) bool {
	path, err := Clean(path)
	if err != nil {
		return false
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.entries[path]
	return ok
}

// createParents creates any missing parent directories for path. The lock
// must be held for writing.
func (m *Memory) createParents(path string) error {
	for parent := pathpkg.Dir(path); parent != "."; parent = pathpkg.Dir(parent) {
		if entry, ok := m.entries[parent]; ok {
			if !entry.directory {
				return errors.Errorf("parent %q is a file", parent)
			}
			continue
		}
		m.entries[parent] = &memoryEntry{directory: true}
	}
	return nil
}

// CreateFolder implements Store.CreateFolder.
func (m *Memory) CreateFolder(path string) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if entry, ok := m.entries[path]; ok {
		if !entry.directory {
			return errors.Errorf("resource at %q is a file", path)
		}
		return nil
	}
	if err := m.createParents(path); err != nil {
		return err
	}
	m.entries[path] = &memoryEntry{directory: true}
	return nil
}

// WriteFile implements Store.WriteFile.
func (m *Memory) WriteFile(path string, content io.Reader) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}

	// Read the content before taking the lock.
	data, err := io.ReadAll(content)
	if err != nil {
		return errors.Wrap(err, "unable to read content")
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if entry, ok := m.entries[path]; ok && entry.directory {
		return errors.Errorf("resource at %q is a directory", path)
	}
	if err := m.createParents(path); err != nil {
		return err
	}
	m.entries[path] = &memoryEntry{content: data}
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(path string) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.entries, path)
	prefix := path + "/"
	for candidate := range m.entries {
		if strings.HasPrefix(candidate, prefix) {
			delete(m.entries, candidate)
		}
	}
	return nil
}
