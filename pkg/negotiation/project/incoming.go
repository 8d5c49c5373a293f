package project

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/must"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/negotiation/archive"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
	"github.com/colabsync/colabsync/pkg/resource"
	"github.com/colabsync/colabsync/pkg/transport"
)

// mapped records a project mapping made during an incoming negotiation.
type mapped struct {
	// projectID is the project identifier.
	projectID string
	// mapping is the chosen mapping.
	mapping Mapping
}

// Incoming is the participant side of a project negotiation. It reconciles
// local projects with the host's file lists and fetches missing files.
type Incoming struct {
	// State is the cancellation state.
	*negotiation.State
	// options are the negotiation options.
	options Options
	// offer is the host's offer.
	offer Offer
	// mapper chooses local destinations.
	mapper Mapper
	// projects is the session's project mapping.
	projects Projects
	// logger is the negotiation logger.
	logger *logging.Logger
	// coordinator receives the archive.
	coordinator *archive.Coordinator
	// collector receives archive transfer messages.
	collector *transport.Collector
	// mappings are the mappings made so far.
	mappings []mapped
	// registered are the project identifiers registered so far.
	registered []string
	// received is the number of archive bytes received.
	received int64
}

// NewIncoming creates a new incoming project negotiation from an offer
// message. The peer is taken from the message.
func NewIncoming(message *transport.Message, mapper Mapper, projects Projects, options Options) (*Incoming, error) {
	// Validate parameters.
	offer, ok := message.Payload.(Offer)
	if message.Kind != KindOffer || !ok {
		return nil, errors.Errorf("unexpected %s message for project negotiation", message.Kind)
	} else if message.NegotiationID == "" {
		return nil, errors.New("offer without negotiation identifier")
	} else if mapper == nil {
		return nil, errors.New("no project mapper specified")
	} else if options.Transport == nil {
		return nil, errors.New("no transport specified")
	}
	options.Peer = message.From

	// Create the negotiation.
	id := message.NegotiationID
	result := &Incoming{
		options:  options,
		offer:    offer,
		mapper:   mapper,
		projects: projects,
		logger:   options.Logger.Sublogger("project.incoming").Sublogger(id),
	}
	description := fmt.Sprintf("receiving %d project(s) from %s", len(offer.Projects), options.Peer)
	var err error
	result.State, err = negotiation.NewState(id, negotiation.Hooks{
		NotifyPeer: negotiation.PeerNotifier(options.Transport, options.Peer, id, result.logger),
		Cleanup:    result.cleanup,
	}, options.stateOptions(description, result.logger))
	if err != nil {
		return nil, err
	}

	// Subscribe to the archive transfer now so that nothing is missed.
	configuration := options.configuration()
	result.coordinator = archive.NewCoordinator(result.State, options.Transport, options.Peer,
		int(configuration.Transfer.ChunkSize), configuration.Negotiation.ArchiveTimeout, result.logger,
	)
	result.collector = result.coordinator.Subscribe()

	// Success.
	return result, nil
}

// Received returns the number of archive bytes received.
func (n *Incoming) Received() int64 {
	return n.received
}

// Run performs the negotiation and returns its outcome.
func (n *Incoming) Run() negotiation.Outcome {
	return n.Terminate(n.run())
}

// run performs the negotiation steps.
func (n *Incoming) run() error {
	// Reconcile each project and compute its missing files.
	response := MissingFiles{}
	destinations := make(map[string]resource.Store, len(n.offer.Projects))
	for _, project := range n.offer.Projects {
		if err := n.Check(); err != nil {
			return err
		}
		missing, store, err := n.reconcile(project)
		if err != nil {
			return errors.Wrapf(err, "unable to reconcile %s", project.Name)
		}
		destinations[project.ProjectID] = store
		response.Projects = append(response.Projects, Missing{ProjectID: project.ProjectID, Paths: missing})
	}

	// Send the missing files.
	if err := n.send(KindMissingFiles, response); err != nil {
		return errors.Wrap(err, "unable to send missing files")
	}

	// Receive and extract the archive, if any.
	if response.Count() > 0 {
		if err := n.receive(destinations); err != nil {
			return err
		}
	}

	// Register the projects with the session.
	if n.projects != nil {
		for _, project := range n.offer.Projects {
			if err := n.projects.Add(project.ProjectID, destinations[project.ProjectID]); err != nil {
				return errors.Wrapf(err, "unable to register %s", project.Name)
			}
			n.registered = append(n.registered, project.ProjectID)
		}
	}

	// Confirm completion.
	if err := n.send(KindCompleted, Completed{}); err != nil {
		return errors.Wrap(err, "unable to confirm completion")
	}

	// Success.
	return nil
}

// reconcile maps a project locally, applies structural changes, and computes
// the paths that must be fetched.
func (n *Incoming) reconcile(project Descriptor) ([]string, resource.Store, error) {
	// Choose the local destination.
	mapping, err := n.mapper.Map(project)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to map project")
	}
	n.mappings = append(n.mappings, mapped{project.ProjectID, mapping})
	if mapping.Decision == DecisionCheckout {
		return nil, nil, errors.New("version control checkout is not supported")
	}
	n.logger.Debugf("Mapped %s (%s)", project.Name, mapping.Decision)

	// Compute the local file list.
	local, _, err := filelist.Build(mapping.Store, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to build local file list")
	}

	// Compute and process the diff. Partial projects never delete, since
	// resources absent from the remote list may simply not be shared.
	transforms := []filelist.Transform{filelist.MaterializeFolders(mapping.Store)}
	if project.Partial {
		transforms = append(transforms, filelist.DiscardDeletions())
	} else {
		transforms = append(transforms, filelist.FilterDeletions(), filelist.ApplyDeletions(mapping.Store))
	}
	diff := filelist.Compare(local, project.FileList)
	n.logger.Debugf("Diff for %s: %s", project.Name, diff)
	diff, err = filelist.Apply(diff, transforms...)
	if err != nil {
		return nil, nil, err
	}

	// Success.
	return diff.Missing(), mapping.Store, nil
}

// receive receives the archive into a temporary file and extracts it.
func (n *Incoming) receive(destinations map[string]resource.Store) error {
	// Receive the archive and ensure its removal.
	path, size, err := n.coordinator.Receive(n.collector, n.options.TemporaryDirectory)
	if err != nil {
		return err
	}
	defer must.OSRemove(path, n.logger)
	n.received = size

	// Extract it.
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "unable to open received archive")
	}
	defer must.Close(file, n.logger)
	result, err := archive.Extract(file, size, destinations, n.logger, n.Check)
	if err != nil {
		return errors.Wrap(err, "unable to extract archive")
	}
	n.logger.Debugf("Extracted %d entries (%d skipped)", result.Extracted, result.Skipped)

	// Success.
	return nil
}

// send transmits a message to the host.
func (n *Incoming) send(kind transport.Kind, payload any) error {
	return n.options.Transport.Send(&transport.Message{
		Kind:          kind,
		To:            n.options.Peer,
		NegotiationID: n.ID(),
		Payload:       payload,
	})
}

// cleanup releases the negotiation's resources and, on failure, rolls back
// project mappings.
func (n *Incoming) cleanup(outcome negotiation.Outcome) {
	// Stop receiving transfer messages.
	n.collector.Close()

	// If we succeeded, then there's nothing to roll back.
	if outcome.Status == negotiation.StatusOK {
		return
	}

	// Unregister projects.
	for _, projectID := range n.registered {
		n.projects.Remove(projectID)
	}

	// Release created projects.
	for _, m := range n.mappings {
		if m.mapping.Release != nil {
			if err := m.mapping.Release(); err != nil {
				n.logger.Warnf("Unable to release project %s: %v", m.projectID, err)
			}
		}
	}
}
