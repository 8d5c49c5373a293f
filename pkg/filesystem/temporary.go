package filesystem

import (
	"strings"
)

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// and directories created by colabsync. Using this prefix guarantees that
	// any such files will be excluded from resource listings. It may be
	// suffixed with additional elements if desired.
	TemporaryNamePrefix = ".colabsync-temporary-"
)

// IsTemporaryName returns whether or not a base name denotes a temporary file
// or directory created by colabsync.
func IsTemporaryName(name string) bool {
	return strings.HasPrefix(name, TemporaryNamePrefix)
}
