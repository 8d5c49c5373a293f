package cmd

import (
	"log"
	"os"

	"github.com/colabsync/colabsync/pkg/logging"
)

// NewLogger configures the standard logger for command line usage and
// returns a root logger at the specified level.
func NewLogger(level logging.Level) *logging.Logger {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	return logging.NewLogger(level)
}
