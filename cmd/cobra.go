package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify adapts an entry point that returns an error into a standard Cobra
// entry point. Returning errors (rather than exiting directly) lets entry
// points rely on deferred cleanup.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
