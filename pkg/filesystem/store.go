package filesystem

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/must"
	"github.com/colabsync/colabsync/pkg/resource"
)

const (
	// DefaultChecksumCacheSize is the number of checksums retained by a
	// directory store if no cache size is specified.
	DefaultChecksumCacheSize = 4096
	// storeFilePermissions are the permissions used for files written by a
	// directory store.
	storeFilePermissions = 0644
	// storeDirectoryPermissions are the permissions used for directories
	// created by a directory store.
	storeDirectoryPermissions = 0755
)

// cachedChecksum is a checksum cache entry. It is only valid while the file's
// size and modification time remain unchanged.
type cachedChecksum struct {
	// size is the file size at the time of checksumming.
	size int64
	// modificationTime is the file modification time at the time of
	// checksumming.
	modificationTime time.Time
	// checksum is the content checksum.
	checksum uint32
}

// DirectoryStore is a resource.Store backed by a directory on disk. Temporary
// files created by colabsync are excluded from listings.
type DirectoryStore struct {
	// root is the absolute path of the store root.
	root string
	// logger is the store logger.
	logger *logging.Logger
	// checksums caches content checksums by store path.
	checksums *lru.Cache[string, cachedChecksum]
}

// NewDirectoryStore creates a store rooted at the specified directory, which
// must already exist. If cacheSize is non-positive, DefaultChecksumCacheSize is
// used.
func NewDirectoryStore(root string, cacheSize int, logger *logging.Logger) (*DirectoryStore, error) {
	// Resolve and verify the root.
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve store root")
	}
	if info, err := os.Stat(root); err != nil {
		return nil, errors.Wrap(err, "unable to query store root")
	} else if !info.IsDir() {
		return nil, errors.Errorf("store root %q is not a directory", root)
	}

	// Create the checksum cache.
	if cacheSize <= 0 {
		cacheSize = DefaultChecksumCacheSize
	}
	checksums, err := lru.New[string, cachedChecksum](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create checksum cache")
	}

	// Success.
	return &DirectoryStore{
		root:      root,
		logger:    logger,
		checksums: checksums,
	}, nil
}

// Root returns the absolute path of the store root.
func (s *DirectoryStore) Root() string {
	return s.root
}

// full converts a store path into an absolute filesystem path under the root.
func (s *DirectoryStore) full(path string) (string, string, error) {
	cleaned, err := resource.Clean(path)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// List implements resource.Store.List.
func (s *DirectoryStore) List() ([]resource.Resource, error) {
	var result []resource.Resource
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip the root itself.
		if path == s.root {
			return nil
		}

		// Skip temporary files and directories.
		if IsTemporaryName(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Compute the store path.
		relative, err := filepath.Rel(s.root, path)
		if err != nil {
			return errors.Wrap(err, "unable to compute relative path")
		}
		relative = filepath.ToSlash(relative)

		// Record directories and regular files. Other content types (such as
		// symbolic links) aren't shareable.
		if entry.IsDir() {
			result = append(result, resource.Resource{Path: relative, Directory: true})
		} else if entry.Type().IsRegular() {
			result = append(result, resource.Resource{Path: relative})
		} else {
			s.logger.Debugf("Skipping unshareable content at %s", relative)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to walk store root")
	}
	return result, nil
}

// Open implements resource.Store.Open.
func (s *DirectoryStore) Open(path string) (io.ReadCloser, error) {
	_, full, err := s.full(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	if info, err := file.Stat(); err != nil {
		must.Close(file, s.logger)
		return nil, errors.Wrap(err, "unable to query file")
	} else if !info.Mode().IsRegular() {
		must.Close(file, s.logger)
		return nil, errors.Errorf("resource at %q is not a regular file", path)
	}
	return file, nil
}

// Checksum implements resource.Store.Checksum.
func (s *DirectoryStore) Checksum(path string) (uint32, error) {
	cleaned, full, err := s.full(path)
	if err != nil {
		return 0, err
	}

	// Probe the file and check for a valid cache entry.
	info, err := os.Stat(full)
	if err != nil {
		return 0, err
	} else if !info.Mode().IsRegular() {
		return 0, errors.Errorf("resource at %q is not a regular file", path)
	}
	if cached, ok := s.checksums.Get(cleaned); ok &&
		cached.size == info.Size() && cached.modificationTime.Equal(info.ModTime()) {
		return cached.checksum, nil
	}

	// Compute the checksum.
	file, err := os.Open(full)
	if err != nil {
		return 0, err
	}
	defer must.Close(file, s.logger)
	checksum, err := resource.ChecksumReader(file)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read file content")
	}

	// Cache the result.
	s.checksums.Add(cleaned, cachedChecksum{
		size:             info.Size(),
		modificationTime: info.ModTime(),
		checksum:         checksum,
	})

	// Success.
	return checksum, nil
}

// Exists implements resource.Store.Exists.
func (s *DirectoryStore) Exists(path string) bool {
	_, full, err := s.full(path)
	if err != nil {
		return false
	}
	_, err = os.Lstat(full)
	return err == nil
}

// CreateFolder implements resource.Store.CreateFolder.
func (s *DirectoryStore) CreateFolder(path string) error {
	_, full, err := s.full(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, storeDirectoryPermissions)
}

// WriteFile implements resource.Store.WriteFile.
func (s *DirectoryStore) WriteFile(path string, content io.Reader) error {
	cleaned, full, err := s.full(path)
	if err != nil {
		return err
	}

	// Ensure that the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(full), storeDirectoryPermissions); err != nil {
		return errors.Wrap(err, "unable to create parent directory")
	}

	// Write the file atomically and invalidate any cached checksum.
	s.checksums.Remove(cleaned)
	return writeAtomic(full, storeFilePermissions, s.logger, func(w io.Writer) error {
		_, err := io.Copy(w, content)
		return err
	})
}

// Delete implements resource.Store.Delete.
func (s *DirectoryStore) Delete(path string) error {
	cleaned, full, err := s.full(path)
	if err != nil {
		return err
	}

	// Remove the content.
	if err := os.RemoveAll(full); err != nil {
		return errors.Wrap(err, "unable to remove resource")
	}

	// Invalidate cached checksums at or beneath the path.
	prefix := cleaned + "/"
	for _, key := range s.checksums.Keys() {
		if key == cleaned || strings.HasPrefix(key, prefix) {
			s.checksums.Remove(key)
		}
	}
	return nil
}
