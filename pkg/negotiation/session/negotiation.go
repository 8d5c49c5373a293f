package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/configuration"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/progress"
	"github.com/colabsync/colabsync/pkg/prompting"
	"github.com/colabsync/colabsync/pkg/transport"
)

// Phase is the progress of a session negotiation.
type Phase uint8

const (
	// PhaseInitialized indicates that the negotiation hasn't started.
	PhaseInitialized Phase = iota
	// PhaseAvailabilityChecked indicates that the peer is reachable and
	// supports colabsync.
	PhaseAvailabilityChecked
	// PhaseVersionChecked indicates that versions have been reconciled.
	PhaseVersionChecked
	// PhaseInvitationSent indicates that the invitation has been delivered.
	PhaseInvitationSent
	// PhaseAccepted indicates that the invitation was accepted.
	PhaseAccepted
	// PhaseParametersExchanged indicates that session parameters have been
	// agreed.
	PhaseParametersExchanged
	// PhaseStarted indicates that the participant has started its local
	// session and awaits confirmation from the host.
	PhaseStarted
	// PhaseCompleted indicates that the participant has joined.
	PhaseCompleted
	// PhaseCanceled indicates that the negotiation was canceled or failed.
	PhaseCanceled
)

// String provides a human-readable representation of a phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseAvailabilityChecked:
		return "availability checked"
	case PhaseVersionChecked:
		return "version checked"
	case PhaseInvitationSent:
		return "invitation sent"
	case PhaseAccepted:
		return "accepted"
	case PhaseParametersExchanged:
		return "parameters exchanged"
	case PhaseStarted:
		return "started"
	case PhaseCompleted:
		return "completed"
	case PhaseCanceled:
		return "canceled"
	default:
		panic("unhandled phase")
	}
}

// Options are the parameters for session negotiations.
type Options struct {
	// Transport is the message transport.
	Transport transport.Transport
	// Registry is the negotiation registry. It may be nil.
	Registry *negotiation.Registry
	// Configuration supplies timeouts and version strictness. If nil, the
	// default configuration is used.
	Configuration *configuration.Configuration
	// Logger is the parent logger.
	Logger *logging.Logger
	// Sink is the progress sink. It may be nil.
	Sink progress.Sink
	// Clock is the timing clock. It may be nil.
	Clock clockwork.Clock
	// Prompter resolves version conflicts on the host and invitations on the
	// participant. If nil, version conflicts are fatal and invitations are
	// accepted.
	Prompter prompting.Prompter
	// FavoriteColor is the participant's preferred color.
	FavoriteColor int
}

// configuration returns the effective configuration.
func (o *Options) configuration() *configuration.Configuration {
	if o.Configuration == nil {
		return configuration.Default()
	}
	return o.Configuration
}

// step is a single step of a role.
type step struct {
	// reached is the phase reached once the step completes.
	reached Phase
	// perform performs the step.
	perform func() error
}

// role implements the asymmetric parts of a session negotiation.
type role interface {
	// steps returns the role's steps, in order.
	steps() []step
	// session returns the resulting session, if any.
	session() *Session
	// cleanup rolls back the role's effects after an unsuccessful outcome.
	cleanup(outcome negotiation.Outcome)
}

// Negotiation is a session negotiation. Hosts create negotiations with
// NewOutgoing and participants with NewIncoming.
type Negotiation struct {
	// State is the cancellation state.
	*negotiation.State
	// options are the negotiation options.
	options Options
	// peer is the remote peer.
	peer string
	// logger is the negotiation logger.
	logger *logging.Logger
	// collector receives the peer's messages for this negotiation.
	collector *transport.Collector
	// role is the negotiation role.
	role role
	// phaseLock guards phase.
	phaseLock sync.Mutex
	// phase is the current phase.
	phase Phase
}

// newNegotiation creates the role-independent parts of a negotiation. The
// role must be attached before the negotiation is run.
func newNegotiation(id, peer, description, name string, options Options) (*Negotiation, error) {
	result := &Negotiation{
		options: options,
		peer:    peer,
		logger:  options.Logger.Sublogger(name).Sublogger(id),
	}
	configuration := options.configuration()
	var err error
	result.State, err = negotiation.NewState(id, negotiation.Hooks{
		NotifyPeer: negotiation.PeerNotifier(options.Transport, peer, id, result.logger),
		Cleanup:    result.cleanup,
	}, negotiation.Options{
		Description:  description,
		Logger:       result.logger,
		Sink:         options.Sink,
		Clock:        options.Clock,
		PollInterval: configuration.Negotiation.PollInterval,
		Registry:     options.Registry,
	})
	if err != nil {
		return nil, err
	}
	result.collector = options.Transport.Subscribe(transport.MatchFrom(peer, func(message *transport.Message) bool {
		return message.NegotiationID == id && message.Kind != negotiation.KindCancelNotice
	}))
	return result, nil
}

// Peer returns the remote peer.
func (n *Negotiation) Peer() string {
	return n.peer
}

// Phase returns the current phase.
func (n *Negotiation) Phase() Phase {
	n.phaseLock.Lock()
	defer n.phaseLock.Unlock()
	return n.phase
}

// setPhase records the current phase.
func (n *Negotiation) setPhase(phase Phase) {
	n.phaseLock.Lock()
	n.phase = phase
	n.phaseLock.Unlock()
	n.logger.Debugf("Reached phase: %s", phase)
}

// Session returns the session that was joined or extended. For participants,
// it is nil unless the negotiation succeeded.
func (n *Negotiation) Session() *Session {
	return n.role.session()
}

// Run performs the negotiation and returns its outcome.
func (n *Negotiation) Run() negotiation.Outcome {
	return n.Terminate(n.run())
}

// run performs the role's steps in order.
func (n *Negotiation) run() error {
	for _, step := range n.role.steps() {
		if err := n.Check(); err != nil {
			return err
		}
		if err := step.perform(); err != nil {
			return err
		}
		n.setPhase(step.reached)
	}
	return nil
}

// send transmits a message for this negotiation to the peer.
func (n *Negotiation) send(kind transport.Kind, payload any) error {
	err := n.options.Transport.Send(&transport.Message{
		Kind:          kind,
		To:            n.peer,
		NegotiationID: n.ID(),
		Payload:       payload,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to send %s message", kind)
	}
	return nil
}

// await waits for the next message from the peer and verifies its kind.
func (n *Negotiation) await(kind transport.Kind, timeout time.Duration, notifyOnTimeout bool, what string) (*transport.Message, error) {
	message, err := n.Await(n.collector, timeout, notifyOnTimeout, what)
	if err != nil {
		return nil, err
	} else if message.Kind != kind {
		return nil, errors.Errorf("unexpected %s message while waiting for %s", message.Kind, what)
	}
	return message, nil
}

// cleanup releases the negotiation's resources and rolls back role effects
// after an unsuccessful outcome.
func (n *Negotiation) cleanup(outcome negotiation.Outcome) {
	n.collector.Close()
	if outcome.Status != negotiation.StatusOK {
		n.setPhase(PhaseCanceled)
		n.role.cleanup(outcome)
	}
}
