package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/filesystem"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/resource"
)

// Decision is the way in which a participant maps a shared project locally.
type Decision uint8

const (
	// DecisionReuse indicates that an existing local project is reused.
	DecisionReuse Decision = iota
	// DecisionCreate indicates that a new, empty local project is created.
	DecisionCreate
	// DecisionCheckout indicates that the project should be checked out from
	// version control.
	DecisionCheckout
)

// String provides a human-readable representation of a decision.
func (d Decision) String() string {
	switch d {
	case DecisionReuse:
		return "reuse"
	case DecisionCreate:
		return "create"
	case DecisionCheckout:
		return "checkout"
	default:
		return "unknown"
	}
}

// Mapping is the local destination chosen for a shared project.
type Mapping struct {
	// Decision is the mapping decision.
	Decision Decision
	// Store is the local project store.
	Store resource.Store
	// Release undoes the creation of the local project. It is only invoked if
	// the negotiation fails and may be nil.
	Release func() error
}

// Mapper chooses local destinations for shared projects.
type Mapper interface {
	// Map chooses the local destination for a shared project.
	Map(project Descriptor) (Mapping, error)
}

// Projects is the session's mapping of project identifiers to local stores.
type Projects interface {
	// Add registers a project mapping.
	Add(projectID string, store resource.Store) error
	// Remove unregisters a project mapping.
	Remove(projectID string)
}

// DirectoryMapper maps shared projects to directories beneath a root, reusing
// directories that already exist and creating those that don't.
type DirectoryMapper struct {
	// Root is the directory beneath which projects are mapped.
	Root string
	// ChecksumCacheSize is the checksum cache size for created stores.
	ChecksumCacheSize int
	// Logger is the store logger.
	Logger *logging.Logger
}

// Map implements Mapper.Map.
func (m *DirectoryMapper) Map(project Descriptor) (Mapping, error) {
	// Validate the project name, which becomes a directory name.
	if project.Name == "" || project.Name == "." || project.Name == ".." ||
		strings.ContainsAny(project.Name, `/\`) || filesystem.IsTemporaryName(project.Name) {
		return Mapping{}, errors.Errorf("invalid project name: %q", project.Name)
	}
	path := filepath.Join(m.Root, project.Name)

	// Reuse an existing directory or create a new one.
	decision := DecisionReuse
	var release func() error
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return Mapping{}, errors.Wrap(err, "unable to create project directory")
		}
		decision = DecisionCreate
		release = func() error {
			return os.RemoveAll(path)
		}
	} else if err != nil {
		return Mapping{}, errors.Wrap(err, "unable to query project directory")
	}

	// Create the store.
	store, err := filesystem.NewDirectoryStore(path, m.ChecksumCacheSize, m.Logger)
	if err != nil {
		if release != nil {
			release()
		}
		return Mapping{}, err
	}

	// Success.
	return Mapping{Decision: decision, Store: store, Release: release}, nil
}
