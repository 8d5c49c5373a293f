package project

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/filesystem"
	"github.com/colabsync/colabsync/pkg/identifier"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/must"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/negotiation/archive"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
	"github.com/colabsync/colabsync/pkg/resource"
	"github.com/colabsync/colabsync/pkg/transport"
)

// Share describes a local project offered to a participant.
type Share struct {
	// ProjectID is the session-wide project identifier.
	ProjectID string
	// Name is the human-readable project name.
	Name string
	// Store is the project content.
	Store resource.Store
	// Selection determines which resources are shared. It may be nil.
	Selection *filelist.Selection
}

// Outgoing is the host side of a project negotiation. It offers file lists
// for a batch of projects and sends the files the participant is missing.
type Outgoing struct {
	// State is the cancellation state.
	*negotiation.State
	// options are the negotiation options.
	options Options
	// shares are the offered projects.
	shares []Share
	// stopper pauses participants while archiving. It may be nil.
	stopper Stopper
	// logger is the negotiation logger.
	logger *logging.Logger
	// collector receives the participant's responses.
	collector *transport.Collector
	// transferred is the number of archive bytes sent.
	transferred int64
}

// NewOutgoing creates a new outgoing project negotiation for the specified
// projects. The stopper may be nil.
func NewOutgoing(shares []Share, stopper Stopper, options Options) (*Outgoing, error) {
	// Validate parameters.
	if len(shares) == 0 {
		return nil, errors.New("no projects to share")
	} else if options.Transport == nil {
		return nil, errors.New("no transport specified")
	}

	// Generate an identifier.
	id, err := identifier.New(identifier.PrefixProjectNegotiation)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate negotiation identifier")
	}

	// Create the negotiation.
	names := make([]string, len(shares))
	for i, share := range shares {
		names[i] = share.Name
	}
	result := &Outgoing{
		options: options,
		shares:  shares,
		stopper: stopper,
		logger:  options.Logger.Sublogger("project.outgoing").Sublogger(id),
	}
	description := fmt.Sprintf("sharing %s with %s", strings.Join(names, ", "), options.Peer)
	result.State, err = negotiation.NewState(id, negotiation.Hooks{
		NotifyPeer: negotiation.PeerNotifier(options.Transport, options.Peer, id, result.logger),
		Cleanup:    result.cleanup,
	}, options.stateOptions(description, result.logger))
	if err != nil {
		return nil, err
	}

	// Subscribe to responses now so that nothing is missed.
	result.collector = options.Transport.Subscribe(transport.MatchFrom(options.Peer, func(message *transport.Message) bool {
		return message.NegotiationID == id &&
			(message.Kind == KindMissingFiles || message.Kind == KindCompleted)
	}))

	// Success.
	return result, nil
}

// Transferred returns the number of archive bytes sent.
func (n *Outgoing) Transferred() int64 {
	return n.transferred
}

// Run performs the negotiation and returns its outcome.
func (n *Outgoing) Run() negotiation.Outcome {
	return n.Terminate(n.run())
}

// run performs the negotiation steps.
func (n *Outgoing) run() error {
	configuration := n.options.configuration()

	// Build file lists.
	n.Sink().BeginTask("Building file lists", int64(len(n.shares)))
	offer := Offer{Projects: make([]Descriptor, len(n.shares))}
	for i, share := range n.shares {
		if err := n.Check(); err != nil {
			return err
		}
		list, partial, err := filelist.Build(share.Store, share.Selection)
		if err != nil {
			return errors.Wrapf(err, "unable to build file list for %s", share.Name)
		}
		offer.Projects[i] = Descriptor{
			ProjectID: share.ProjectID,
			Name:      share.Name,
			FileList:  list,
			Partial:   partial,
		}
		n.Sink().Worked(1)
		n.logger.Debugf("Built file list for %s with %d entries (partial: %t)", share.Name, list.Len(), partial)
	}

	// Send the offer.
	if err := n.send(KindOffer, offer); err != nil {
		return errors.Wrap(err, "unable to send file lists")
	}

	// Wait for the missing files.
	message, err := n.Await(n.collector, configuration.Negotiation.ArchiveTimeout, true, "missing file list")
	if err != nil {
		return err
	}
	missing, ok := message.Payload.(MissingFiles)
	if message.Kind != KindMissingFiles || !ok {
		return errors.Errorf("unexpected %s message while awaiting missing files", message.Kind)
	}
	n.logger.Debugf("Participant is missing %d files", missing.Count())

	// Transfer the missing files, if any.
	if missing.Count() > 0 {
		if err := n.transfer(missing); err != nil {
			return err
		}
	}

	// Wait for completion.
	message, err = n.Await(n.collector, configuration.Negotiation.ArchiveTimeout, true, "project negotiation completion")
	if err != nil {
		return err
	} else if message.Kind != KindCompleted {
		return errors.Errorf("unexpected %s message while awaiting completion", message.Kind)
	}

	// Success.
	return nil
}

// send transmits a message to the participant.
func (n *Outgoing) send(kind transport.Kind, payload any) error {
	return n.options.Transport.Send(&transport.Message{
		Kind:          kind,
		To:            n.options.Peer,
		NegotiationID: n.ID(),
		Payload:       payload,
	})
}

// sources converts a missing file response into archive sources, rejecting
// requests for unknown projects and for paths that aren't shared.
func (n *Outgoing) sources(missing MissingFiles) ([]archive.Source, error) {
	shares := make(map[string]Share, len(n.shares))
	for _, share := range n.shares {
		shares[share.ProjectID] = share
	}
	var result []archive.Source
	for _, project := range missing.Projects {
		share, ok := shares[project.ProjectID]
		if !ok {
			return nil, errors.Errorf("missing files requested for unknown project %s", project.ProjectID)
		}
		for _, path := range project.Paths {
			if _, err := resource.Clean(path); err != nil {
				return nil, errors.Wrapf(err, "invalid missing file path %q", path)
			} else if share.Selection.Excludes(filelist.StorePath(path), filelist.IsDirectory(path)) {
				return nil, errors.Errorf("requested path %q is not shared", path)
			}
		}
		result = append(result, archive.Source{
			ProjectID: project.ProjectID,
			Store:     share.Store,
			Paths:     project.Paths,
		})
	}
	return result, nil
}

// createArchive writes the archive for the missing files while participants
// are stopped. Participants are resumed on every exit path.
func (n *Outgoing) createArchive(sources []archive.Source, path string) error {
	// Stop the world.
	if n.stopper != nil {
		resumer, err := n.stopper.StopAll(n.Description())
		if err != nil {
			return errors.Wrap(err, "unable to stop participants")
		}
		defer resumer.Resume()
	}

	// Create the archive file.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "unable to open archive file")
	}
	defer must.Close(file, n.logger)

	// Write the archive.
	n.Sink().BeginTask("Creating archive", 0)
	entries, err := archive.Write(file, sources, n.Check)
	if err != nil {
		return errors.Wrap(err, "unable to create archive")
	}
	n.logger.Debugf("Created archive with %d entries", entries)

	// Success.
	return nil
}

// transfer creates and sends the archive for the missing files.
func (n *Outgoing) transfer(missing MissingFiles) error {
	// Resolve the requested files.
	sources, err := n.sources(missing)
	if err != nil {
		return err
	}

	// Reserve a temporary archive file and ensure its removal.
	file, err := os.CreateTemp(n.options.TemporaryDirectory, filesystem.TemporaryNamePrefix+"archive-")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary archive")
	}
	path := file.Name()
	must.Close(file, n.logger)
	defer must.OSRemove(path, n.logger)

	// Create the archive.
	if err := n.createArchive(sources, path); err != nil {
		return err
	}

	// Send it.
	configuration := n.options.configuration()
	coordinator := archive.NewCoordinator(n.State, n.options.Transport, n.options.Peer,
		int(configuration.Transfer.ChunkSize), configuration.Negotiation.ArchiveTimeout, n.logger,
	)
	n.transferred, err = coordinator.Send(path)
	return err
}

// cleanup releases the negotiation's resources.
func (n *Outgoing) cleanup(negotiation.Outcome) {
	n.collector.Close()
}
