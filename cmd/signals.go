package cmd

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals that request cancellation of in-flight
// negotiations.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}
