package cmd

import (
	"fmt"

	"github.com/fatih/color"
)

// StatusLinePrinter prints a dynamically updating status line. Color escape
// sequences are supported. It prints to standard error so that standard output
// remains parseable.
type StatusLinePrinter struct{}

// Print replaces the status line with the message. Messages are truncated or
// padded to a platform-dependent width so that previous content is fully
// overwritten.
func (p *StatusLinePrinter) Print(message string) {
	fmt.Fprintf(color.Error, statusLineFormat, message)
}

// Clear wipes the status line and returns the cursor to the start of the line.
func (p *StatusLinePrinter) Clear() {
	fmt.Fprintf(color.Error, statusLineClearFormat, "")
}
