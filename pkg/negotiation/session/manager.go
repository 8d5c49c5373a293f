package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/colabsync/colabsync/pkg/colabsync"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/negotiation/project"
	"github.com/colabsync/colabsync/pkg/transport"
)

// ResultHandler receives the outcomes of negotiations started by remote
// peers.
type ResultHandler func(description string, outcome negotiation.Outcome)

// ManagerOptions are the parameters for a Manager.
type ManagerOptions struct {
	// Options are the session negotiation options. The transport is set by
	// the manager.
	Options
	// Mapper maps incoming projects to local stores. If nil, incoming project
	// negotiations are refused.
	Mapper project.Mapper
	// TemporaryDirectory is the directory for temporary archives.
	TemporaryDirectory string
	// OnResult, if non-nil, receives the outcomes of incoming negotiations.
	OnResult ResultHandler
}

// Manager dispatches negotiation traffic for a local endpoint: it answers
// version requests, accepts invitations, routes cancellation notices, applies
// roster and pause messages, and starts incoming and outgoing project
// negotiations. Its methods are safe for concurrent usage.
type Manager struct {
	// via is the transport.
	via transport.Transport
	// options are the manager options.
	options ManagerOptions
	// logger is the manager logger.
	logger *logging.Logger
	// registry tracks in-flight negotiations.
	registry *negotiation.Registry
	// collector receives unsolicited messages.
	collector *transport.Collector
	// cancellations receives cancellation notices.
	cancellations *transport.Collector
	// sessionLock guards current.
	sessionLock sync.Mutex
	// current is the current session, if any.
	current *Session
	// handlers tracks Goroutines running incoming negotiations.
	handlers sync.WaitGroup
}

// NewManager creates a new manager for the transport. Unsolicited messages
// are queued from this point on and processed once Serve is called.
func NewManager(via transport.Transport, options ManagerOptions) *Manager {
	logger := options.Logger.Sublogger("manager")
	if options.Registry == nil {
		options.Registry = negotiation.NewRegistry(logger.Sublogger("registry"))
	}
	options.Transport = via
	return &Manager{
		via:      via,
		options:  options,
		logger:   logger,
		registry: options.Registry,
		collector: via.Subscribe(func(message *transport.Message) bool {
			switch message.Kind {
			case KindVersionRequest, KindInvitation, KindRoster, KindPause, KindResume, project.KindOffer:
				return true
			default:
				return false
			}
		}),
		cancellations: negotiation.SubscribeCancellations(via),
	}
}

// Registry returns the manager's negotiation registry.
func (m *Manager) Registry() *negotiation.Registry {
	return m.registry
}

// Session returns the current session, if any.
func (m *Manager) Session() *Session {
	m.sessionLock.Lock()
	defer m.sessionLock.Unlock()
	return m.current
}

// setSession records the current session if there is none. It returns false
// if a session is already present.
func (m *Manager) setSession(joined *Session) bool {
	m.sessionLock.Lock()
	defer m.sessionLock.Unlock()
	if m.current != nil {
		return false
	}
	m.current = joined
	return true
}

// clearSession discards the current session if it is the specified one.
func (m *Manager) clearSession(joined *Session) {
	m.sessionLock.Lock()
	defer m.sessionLock.Unlock()
	if m.current == joined {
		m.current = nil
	}
}

// Host starts hosting a new session.
func (m *Manager) Host(color int) (*Session, error) {
	hosted, err := New(m.via, color, m.options.Logger)
	if err != nil {
		return nil, err
	}
	if !m.setSession(hosted) {
		return nil, errors.New("already in a session")
	}
	m.logger.Infof("Hosting session %s", hosted.ID())
	return hosted, nil
}

// Invite invites a peer into the hosted session.
func (m *Manager) Invite(peer string) (negotiation.Outcome, error) {
	hosted := m.Session()
	if hosted == nil {
		return negotiation.Outcome{}, errors.New("no session")
	}
	outgoing, err := NewOutgoing(peer, hosted, m.options.Options)
	if err != nil {
		return negotiation.Outcome{}, errors.Wrap(err, "unable to create session negotiation")
	}
	return outgoing.Run(), nil
}

// projectOptions computes project negotiation options.
func (m *Manager) projectOptions(peer string) project.Options {
	return project.Options{
		Transport:          m.via,
		Peer:               peer,
		Registry:           m.registry,
		Configuration:      m.options.Configuration,
		Logger:             m.options.Logger,
		Sink:               m.options.Sink,
		Clock:              m.options.Clock,
		TemporaryDirectory: m.options.TemporaryDirectory,
	}
}

// ShareResult is the result of sharing projects with one participant.
type ShareResult struct {
	// Outcome is the negotiation outcome.
	Outcome negotiation.Outcome
	// Transferred is the number of archive bytes sent.
	Transferred int64
}

// ShareProjects shares projects with the specified session participants, one
// outgoing project negotiation per participant, run concurrently. If the
// context is cancelled, the remaining negotiations are canceled. It returns
// the results keyed by participant and fails if any negotiation didn't
// succeed.
func (m *Manager) ShareProjects(ctx context.Context, participants []string, shares []project.Share) (map[string]ShareResult, error) {
	// Ensure that we're hosting a session.
	hosted := m.Session()
	if hosted == nil || !hosted.IsHost() {
		return nil, errors.New("not hosting a session")
	}

	// Register the shared projects locally.
	for _, share := range shares {
		if _, ok := hosted.Project(share.ProjectID); !ok {
			if err := hosted.Add(share.ProjectID, share.Store); err != nil {
				return nil, err
			}
		}
	}

	// Run the negotiations.
	var resultsLock sync.Mutex
	results := make(map[string]ShareResult, len(participants))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, participant := range participants {
		participant := participant
		group.Go(func() error {
			outgoing, err := project.NewOutgoing(shares, hosted.StopManager(), m.projectOptions(participant))
			if err != nil {
				return errors.Wrapf(err, "unable to create project negotiation with %s", participant)
			}
			go func() {
				select {
				case <-groupCtx.Done():
					outgoing.LocalCancel("", true)
				case <-outgoing.Terminated():
				}
			}()
			outcome := outgoing.Run()
			resultsLock.Lock()
			results[participant] = ShareResult{Outcome: outcome, Transferred: outgoing.Transferred()}
			resultsLock.Unlock()
			if outcome.Status != negotiation.StatusOK {
				return errors.Errorf("project negotiation with %s ended with %s", participant, outcome)
			}
			return nil
		})
	}
	err := group.Wait()
	return results, err
}

// Serve processes unsolicited messages and cancellation notices until the
// context is cancelled. On exit, all in-flight negotiations are canceled and
// incoming ones are awaited.
func (m *Manager) Serve(ctx context.Context) error {
	cancellationsDone := make(chan struct{})
	go func() {
		m.registry.ServeCancellations(ctx, m.cancellations)
		close(cancellationsDone)
	}()
	defer func() {
		m.collector.Close()
		<-cancellationsDone
		m.registry.CancelAll("shutting down")
		m.handlers.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.collector.Ready():
		}
		for {
			message, ok := m.collector.Poll()
			if !ok {
				break
			}
			m.dispatch(message)
		}
	}
}

// dispatch handles a single unsolicited message.
func (m *Manager) dispatch(message *transport.Message) {
	switch message.Kind {
	case KindVersionRequest:
		m.answerVersionRequest(message)
	case KindInvitation:
		m.handlers.Add(1)
		go func() {
			defer m.handlers.Done()
			m.join(message)
		}()
	case project.KindOffer:
		m.handlers.Add(1)
		go func() {
			defer m.handlers.Done()
			m.receiveProjects(message)
		}()
	case KindRoster, KindPause, KindResume:
		m.applySessionMessage(message)
	}
}

// answerVersionRequest replies to a version request with the local version
// and its compatibility with the requester's version.
func (m *Manager) answerVersionRequest(message *transport.Message) {
	request, ok := message.Payload.(VersionRequest)
	if !ok {
		m.logger.Warnf("Received malformed version request from %s", message.From)
		return
	}
	local := colabsync.LocalVersionInfo()
	local.Compatibility = colabsync.CompareVersions(local.Version, request.Info.Version)
	err := m.via.Send(&transport.Message{
		Kind:          KindVersionResponse,
		To:            message.From,
		NegotiationID: message.NegotiationID,
		Payload:       VersionResponse{Info: local},
	})
	if err != nil {
		m.logger.Warnf("Unable to answer version request from %s: %v", message.From, err)
	}
}

// refuse rejects an unsolicited negotiation by notifying the peer.
func (m *Manager) refuse(message *transport.Message, reason string) {
	m.logger.Warnf("Refusing %s from %s: %s", message.Kind, message.From, reason)
	notify := negotiation.PeerNotifier(m.via, message.From, message.NegotiationID, m.logger)
	notify(&negotiation.Cancellation{ErrorMessage: reason})
}

// report delivers an incoming negotiation's outcome to the result handler.
func (m *Manager) report(description string, outcome negotiation.Outcome) {
	m.logger.Infof("%s: %s", description, outcome)
	if m.options.OnResult != nil {
		m.options.OnResult(description, outcome)
	}
}

// join runs an incoming session negotiation.
func (m *Manager) join(message *transport.Message) {
	// Refuse invitations while in a session.
	if m.Session() != nil {
		m.refuse(message, "already in a session")
		return
	}

	// Create the negotiation. The session is recorded before the host learns
	// that it has started, so that the host's follow-up traffic finds it.
	incoming, err := NewIncoming(message, m.options.Options)
	if err != nil {
		m.refuse(message, err.Error())
		return
	}
	participant := incoming.role.(*peerRole)
	participant.onStart = m.setSession
	participant.onLeave = m.clearSession

	// Run the negotiation.
	m.report(incoming.Description(), incoming.Run())
}

// receiveProjects runs an incoming project negotiation.
func (m *Manager) receiveProjects(message *transport.Message) {
	// Only accept projects from the host of the current session.
	joined := m.Session()
	if joined == nil || joined.Host() != message.From {
		m.refuse(message, "not in a session hosted by "+message.From)
		return
	} else if m.options.Mapper == nil {
		m.refuse(message, "projects are not accepted")
		return
	}

	// Run the negotiation.
	incoming, err := project.NewIncoming(message, m.options.Mapper, joined, m.projectOptions(message.From))
	if err != nil {
		m.refuse(message, err.Error())
		return
	}
	m.report(incoming.Description(), incoming.Run())
}

// applySessionMessage applies a roster or pause message from the host.
func (m *Manager) applySessionMessage(message *transport.Message) {
	joined := m.Session()
	if joined == nil || joined.Host() != message.From {
		m.logger.Debugf("Ignoring %s message from %s", message.Kind, message.From)
		return
	}
	switch payload := message.Payload.(type) {
	case Roster:
		joined.applyRoster(payload.Users)
	case Pause:
		joined.setPaused(true, payload.Reason)
	case Resume:
		joined.setPaused(false, "")
	default:
		m.logger.Warnf("Received malformed %s message from %s", message.Kind, message.From)
	}
}

// Shutdown leaves the current session, cancels in-flight negotiations, and
// waits until they've terminated or the context is cancelled. Serve should
// still be running so that peers' cancellation notices are applied.
func (m *Manager) Shutdown(ctx context.Context) error {
	canceled := m.registry.CancelAll("shutting down")
	m.sessionLock.Lock()
	m.current = nil
	m.sessionLock.Unlock()
	if err := m.registry.WaitForEmpty(ctx); err != nil {
		return errors.Wrapf(err, "%d negotiation(s) did not terminate", m.registry.Len())
	}
	m.logger.Debugf("Shut down after canceling %d negotiation(s)", canceled)
	return nil
}
