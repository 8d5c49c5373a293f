package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colabsync/colabsync/cmd"
	"github.com/colabsync/colabsync/pkg/colabsync"
)

func versionMain(_ *cobra.Command, _ []string) error {
	// Print version information.
	fmt.Println(colabsync.Version)

	// Success.
	return nil
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run:   cmd.Mainify(versionMain),
}
