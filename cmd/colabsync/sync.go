package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/colabsync/colabsync/cmd"
	"github.com/colabsync/colabsync/pkg/filesystem"
	"github.com/colabsync/colabsync/pkg/identifier"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
	"github.com/colabsync/colabsync/pkg/negotiation/project"
	"github.com/colabsync/colabsync/pkg/negotiation/session"
	"github.com/colabsync/colabsync/pkg/progress"
	"github.com/colabsync/colabsync/pkg/prompting"
	"github.com/colabsync/colabsync/pkg/transport"
)

const (
	// statusUpdateInterval is the interval at which the status line is
	// refreshed.
	statusUpdateInterval = 100 * time.Millisecond
	// shutdownTimeout bounds the wait for negotiations to terminate on exit.
	shutdownTimeout = 5 * time.Second
)

// printOutcome prints a negotiation outcome.
func printOutcome(description string, outcome negotiation.Outcome) {
	if outcome.Status != negotiation.StatusOK {
		cmd.Warning(fmt.Sprintf("%s: %s", description, outcome))
		return
	}
	color.New(color.FgGreen).Fprintf(color.Output, "%s: %s\n", description, outcome)
}

func syncMain(_ *cobra.Command, arguments []string) error {
	// Load configuration.
	configuration, logger, err := loadConfiguration()
	if err != nil {
		return err
	}
	selection, err := filelist.NewSelection(configuration.Sharing.Ignore)
	if err != nil {
		return errors.Wrap(err, "invalid ignore patterns")
	}

	// Resolve directories.
	hostRoot, err := filepath.Abs(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve host directory")
	}
	peerRoot, err := filepath.Abs(arguments[1])
	if err != nil {
		return errors.Wrap(err, "unable to resolve participant directory")
	} else if hostRoot == peerRoot {
		return errors.New("host and participant directories must differ")
	}
	hostStore, err := filesystem.NewDirectoryStore(hostRoot, configuration.Sharing.ChecksumCacheSize, logger.Sublogger("store"))
	if err != nil {
		return errors.Wrap(err, "unable to open host directory")
	}

	// Choose how invitations and version conflicts are decided. Without a
	// prompter, invitations are accepted and version conflicts are fatal.
	var prompter prompting.Prompter
	if syncConfiguration.interactive {
		prompter = prompting.CommandLine{}
	}

	// Create both peers on a loopback network.
	network := transport.NewNetwork(logger.Sublogger("network"))
	monitor := &progress.Monitor{Logger: logger.Sublogger("progress")}
	host := session.NewManager(network.Endpoint("host", nil), session.ManagerOptions{
		Options: session.Options{
			Configuration: configuration,
			Logger:        logger.Sublogger("host"),
			Sink:          monitor,
			Prompter:      prompter,
		},
		TemporaryDirectory: syncConfiguration.temporaryDirectory,
	})
	peer := session.NewManager(network.Endpoint("participant", nil), session.ManagerOptions{
		Options: session.Options{
			Configuration: configuration,
			Logger:        logger.Sublogger("participant"),
			Prompter:      prompter,
			FavoriteColor: syncConfiguration.color,
		},
		Mapper: &project.DirectoryMapper{
			Root:              filepath.Dir(peerRoot),
			ChecksumCacheSize: configuration.Sharing.ChecksumCacheSize,
			Logger:            logger.Sublogger("participant.store"),
		},
		TemporaryDirectory: syncConfiguration.temporaryDirectory,
		OnResult:           printOutcome,
	})

	// Serve both peers until we're done.
	ctx, cancel := context.WithCancel(context.Background())
	var serving sync.WaitGroup
	for _, manager := range []*session.Manager{host, peer} {
		serving.Add(1)
		go func(manager *session.Manager) {
			defer serving.Done()
			manager.Serve(ctx)
		}(manager)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for _, manager := range []*session.Manager{host, peer} {
			if err := manager.Shutdown(shutdownCtx); err != nil {
				cmd.Warning(err.Error())
			}
		}
		cancel()
		serving.Wait()
	}()

	// Cancel negotiations on termination signals.
	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	defer signal.Stop(signalTermination)
	go func() {
		select {
		case <-signalTermination:
			monitor.SetCanceled(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Display progress until we're done.
	statusDone := make(chan struct{})
	statusStopped := make(chan struct{})
	go func() {
		defer close(statusStopped)
		printer := &cmd.StatusLinePrinter{}
		ticker := time.NewTicker(statusUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-statusDone:
				printer.Clear()
				return
			case <-ticker.C:
				if snapshot := monitor.Snapshot(); snapshot.Label != "" && !snapshot.Finished {
					printer.Print(snapshot.String())
				}
			}
		}
	}()
	stopStatus := func() {
		close(statusDone)
		<-statusStopped
	}

	// Establish the session.
	if _, err := host.Host(0); err != nil {
		stopStatus()
		return err
	}
	outcome, err := host.Invite("participant")
	if err != nil {
		stopStatus()
		return err
	} else if outcome.Status != negotiation.StatusOK {
		stopStatus()
		return errors.Errorf("unable to establish session: %s", outcome)
	}

	// Share the project.
	projectID, err := identifier.New(identifier.PrefixProject)
	if err != nil {
		stopStatus()
		return errors.Wrap(err, "unable to generate project identifier")
	}
	shares := []project.Share{{
		ProjectID: projectID,
		Name:      filepath.Base(peerRoot),
		Store:     hostStore,
		Selection: selection,
	}}
	results, err := host.ShareProjects(ctx, []string{"participant"}, shares)
	stopStatus()
	result := results["participant"]
	printOutcome("Sharing "+hostRoot, result.Outcome)
	if err != nil {
		return err
	}
	fmt.Printf("Transferred %s\n", humanize.Bytes(uint64(result.Transferred)))

	// Success.
	return nil
}

var syncCommand = &cobra.Command{
	Use:   "sync <host-directory> <participant-directory>",
	Short: "Share a directory with a participant through a full session negotiation",
	Args:  cobra.ExactArgs(2),
	Run:   cmd.Mainify(syncMain),
}

var syncConfiguration struct {
	// interactive indicates whether or not decisions should be prompted for.
	interactive bool
	// color is the participant's favorite color.
	color int
	// temporaryDirectory is the directory for temporary archives.
	temporaryDirectory string
}

func init() {
	// Grab a handle for the command line flags.
	flags := syncCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Wire up flags.
	flags.BoolVarP(&syncConfiguration.interactive, "interactive", "i", false, "Prompt for invitation and version decisions")
	flags.IntVar(&syncConfiguration.color, "color", session.NoColor, "Specify the participant's favorite color")
	flags.StringVar(&syncConfiguration.temporaryDirectory, "temporary-directory", "", "Specify the directory for temporary archives")
}
