// Package archive implements the compressed bundles used to move missing files
// between peers, along with their chunked transfer.
//
// Each project negotiation moves a single flat ZIP archive covering every
// shared project. Entries are named projectID:path, where path is the
// project-relative path with forward slashes and a trailing slash marks a
// directory. Entries with unknown project identifiers or malformed names are
// skipped on extraction.
package archive

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/must"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
	"github.com/colabsync/colabsync/pkg/resource"
)

// Delimiter separates the project identifier from the relative path in
// archive entry names.
const Delimiter = ":"

// EntryName computes the archive entry name for a path within a project.
func EntryName(projectID, path string) string {
	return projectID + Delimiter + path
}

// ParseEntryName splits an archive entry name into its project identifier and
// relative path.
func ParseEntryName(name string) (string, string, bool) {
	projectID, path, ok := strings.Cut(name, Delimiter)
	if !ok || projectID == "" || path == "" {
		return "", "", false
	}
	return projectID, path, true
}

// Source describes the content of one project to include in an archive.
type Source struct {
	// ProjectID is the project identifier.
	ProjectID string
	// Store is the project store.
	Store resource.Store
	// Paths are the file list paths to include.
	Paths []string
}

// newDeflateWriter creates the DEFLATE compressor used for archive entries.
func newDeflateWriter(compressed io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(compressed, flate.DefaultCompression)
}

// Write writes an archive containing the specified sources. The check
// callback, if non-nil, is invoked before each entry and aborts the operation
// if it returns an error. It returns the number of entries written.
func Write(destination io.Writer, sources []Source, check func() error) (int, error) {
	// Create the archive writer.
	writer := zip.NewWriter(destination)
	writer.RegisterCompressor(zip.Deflate, newDeflateWriter)

	// Add entries.
	var entries int
	for _, source := range sources {
		for _, path := range source.Paths {
			// Check for cancellation.
			if check != nil {
				if err := check(); err != nil {
					return entries, err
				}
			}

			// Handle directories.
			name := EntryName(source.ProjectID, path)
			if filelist.IsDirectory(path) {
				if _, err := writer.Create(name); err != nil {
					return entries, errors.Wrapf(err, "unable to create directory entry for %q", path)
				}
				entries++
				continue
			}

			// Copy file content.
			entry, err := writer.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
			if err != nil {
				return entries, errors.Wrapf(err, "unable to create entry for %q", path)
			}
			content, err := source.Store.Open(filelist.StorePath(path))
			if err != nil {
				return entries, errors.Wrapf(err, "unable to open %q", path)
			}
			_, err = io.Copy(entry, content)
			content.Close()
			if err != nil {
				return entries, errors.Wrapf(err, "unable to compress %q", path)
			}
			entries++
		}
	}

	// Finalize the archive.
	if err := writer.Close(); err != nil {
		return entries, errors.Wrap(err, "unable to finalize archive")
	}

	// Success.
	return entries, nil
}

// ExtractionResult summarizes an extraction.
type ExtractionResult struct {
	// Extracted is the number of extracted entries.
	Extracted int
	// Skipped is the number of entries skipped because they didn't map to a
	// known project.
	Skipped int
}

// Extract extracts an archive into per-project destinations keyed by project
// identifier. Entries that don't map to a destination are skipped with a
// warning. The check callback, if non-nil, is invoked before each entry and
// aborts the operation if it returns an error.
func Extract(archive io.ReaderAt, size int64, destinations map[string]resource.Store, logger *logging.Logger, check func() error) (ExtractionResult, error) {
	// Open the archive.
	var result ExtractionResult
	reader, err := zip.NewReader(archive, size)
	if err != nil {
		return result, errors.Wrap(err, "unable to open archive")
	}
	reader.RegisterDecompressor(zip.Deflate, flate.NewReader)

	// Process entries.
	for _, file := range reader.File {
		// Check for cancellation.
		if check != nil {
			if err := check(); err != nil {
				return result, err
			}
		}

		// Resolve the destination.
		projectID, path, ok := ParseEntryName(file.Name)
		if !ok {
			logger.Warnf("Skipping archive entry with malformed name: %q", file.Name)
			result.Skipped++
			continue
		}
		store, ok := destinations[projectID]
		if !ok || store == nil {
			logger.Warnf("Skipping archive entry for unknown project %s: %q", projectID, path)
			result.Skipped++
			continue
		}

		// Handle directories.
		if filelist.IsDirectory(path) {
			if err := store.CreateFolder(filelist.StorePath(path)); err != nil {
				return result, errors.Wrapf(err, "unable to create folder %q", path)
			}
			result.Extracted++
			continue
		}

		// Extract file content.
		content, err := file.Open()
		if err != nil {
			return result, errors.Wrapf(err, "unable to open entry %q", file.Name)
		}
		err = store.WriteFile(path, content)
		must.Close(content, logger)
		if err != nil {
			return result, errors.Wrapf(err, "unable to extract %q", path)
		}
		result.Extracted++
	}

	// Success.
	return result, nil
}
