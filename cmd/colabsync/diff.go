package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/colabsync/colabsync/cmd"
	"github.com/colabsync/colabsync/pkg/configuration"
	"github.com/colabsync/colabsync/pkg/filesystem"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
)

// buildFileList builds the file list for a directory.
func buildFileList(path string, selection *filelist.Selection, configuration *configuration.Configuration, logger *logging.Logger) (*filelist.FileList, error) {
	store, err := filesystem.NewDirectoryStore(path, configuration.Sharing.ChecksumCacheSize, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	list, _, err := filelist.Build(store, selection)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build file list for %s", path)
	}
	return list, nil
}

// diffLine is a single line of diff output.
type diffLine struct {
	// path is the file list path.
	path string
	// marker is the change marker.
	marker string
	// color is the line color, if any.
	color *color.Color
}

func diffMain(_ *cobra.Command, arguments []string) error {
	// Load configuration.
	configuration, logger, err := loadConfiguration()
	if err != nil {
		return err
	}
	selection, err := filelist.NewSelection(configuration.Sharing.Ignore)
	if err != nil {
		return errors.Wrap(err, "invalid ignore patterns")
	}

	// Build file lists.
	base, err := buildFileList(arguments[0], selection, configuration, logger.Sublogger("base"))
	if err != nil {
		return err
	}
	target, err := buildFileList(arguments[1], selection, configuration, logger.Sublogger("target"))
	if err != nil {
		return err
	}

	// Compute the diff and merge its sets into a single ordered listing.
	diff := filelist.Compare(base, target)
	var lines []diffLine
	add := func(paths []string, marker string, c *color.Color) {
		for _, path := range paths {
			lines = append(lines, diffLine{path, marker, c})
		}
	}
	add(diff.Added(), "+", color.New(color.FgGreen))
	add(diff.Removed(), "-", color.New(color.FgRed))
	add(diff.Altered(), "~", color.New(color.FgYellow))
	if diffConfiguration.unaltered {
		add(diff.Unaltered(), " ", nil)
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].path < lines[j].path
	})

	// Print the listing.
	for _, line := range lines {
		if line.color != nil {
			line.color.Fprintf(color.Output, "%s %s\n", line.marker, line.path)
		} else {
			cmd.Println(line.marker, line.path)
		}
	}
	fmt.Printf("%d added, %d removed, %d altered, %d unaltered\n",
		len(diff.Added()), len(diff.Removed()), len(diff.Altered()), len(diff.Unaltered()),
	)

	// Success.
	return nil
}

var diffCommand = &cobra.Command{
	Use:   "diff <base> <target>",
	Short: "Show the changes needed to turn one directory into another",
	Args:  cobra.ExactArgs(2),
	Run:   cmd.Mainify(diffMain),
}

var diffConfiguration struct {
	// unaltered indicates whether or not unaltered paths should be listed.
	unaltered bool
}

func init() {
	// Grab a handle for the command line flags.
	flags := diffCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Wire up flags.
	flags.BoolVarP(&diffConfiguration.unaltered, "unaltered", "u", false, "List unaltered paths")
}
