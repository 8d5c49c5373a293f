package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/colabsync/colabsync/cmd"
	"github.com/colabsync/colabsync/pkg/colabsync"
	"github.com/colabsync/colabsync/pkg/configuration"
	"github.com/colabsync/colabsync/pkg/logging"
)

func rootMain(command *cobra.Command, _ []string) error {
	// If no commands were given, then print help information and bail.
	command.Help()

	// Success.
	return nil
}

// rootCommand is the root command.
var rootCommand = &cobra.Command{
	Use:          "colabsync",
	Version:      colabsync.Version,
	Short:        "Negotiate collaboration sessions and synchronize shared projects",
	RunE:         rootMain,
	SilenceUsage: true,
}

// rootConfiguration stores configuration for the root command.
var rootConfiguration struct {
	// help indicates whether or not to show help information and exit.
	help bool
	// configuration is the path to the configuration file.
	configuration string
	// logLevel overrides the configured log level.
	logLevel string
}

// loadConfiguration loads the configuration file and creates a root logger,
// applying any command line overrides.
func loadConfiguration() (*configuration.Configuration, *logging.Logger, error) {
	// Determine the configuration path.
	path := rootConfiguration.configuration
	if path == "" {
		var err error
		if path, err = configuration.DefaultPath(); err != nil {
			return nil, nil, errors.Wrap(err, "unable to compute configuration path")
		}
	}

	// Load the configuration.
	result, err := configuration.Load(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to load configuration")
	}

	// Determine the log level.
	level := result.LogLevel()
	if rootConfiguration.logLevel != "" {
		var ok bool
		if level, ok = logging.NameToLevel(rootConfiguration.logLevel); !ok {
			return nil, nil, errors.Errorf("invalid log level: %s", rootConfiguration.logLevel)
		}
	}

	// Success.
	return result, cmd.NewLogger(level), nil
}

func init() {
	// Disable Cobra's command sorting behavior.
	cobra.EnableCommandSorting = false

	// Set the template used by the version flag.
	rootCommand.SetVersionTemplate("colabsync version {{ .Version }}\n")

	// Grab a handle for the persistent command line flags.
	flags := rootCommand.PersistentFlags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&rootConfiguration.configuration, "config", "c", "", "Specify the configuration file path")
	flags.StringVarP(&rootConfiguration.logLevel, "log-level", "l", "", "Override the configured log level")

	// Hide Cobra's completion command.
	rootCommand.CompletionOptions.HiddenDefaultCmd = true

	// Register commands.
	rootCommand.AddCommand(
		syncCommand,
		diffCommand,
		versionCommand,
	)
}

func main() {
	// Execute the root command.
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
