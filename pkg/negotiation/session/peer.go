package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/prompting"
	"github.com/colabsync/colabsync/pkg/transport"
)

// peerRole drives a session negotiation from the participant's side.
type peerRole struct {
	// n is the negotiation.
	n *Negotiation
	// invitation is the host's invitation.
	invitation Invitation
	// parameters are the authoritative parameters received from the host.
	parameters Parameters
	// joined is the local session, once started.
	joined *Session
	// onStart, if non-nil, records the session before the host is told that
	// it has started. It returns false if the session can't be recorded.
	onStart func(*Session) bool
	// onLeave, if non-nil, discards a session recorded by onStart.
	onLeave func(*Session)
}

// NewIncoming creates a negotiation answering an invitation message. The
// host is taken from the message.
func NewIncoming(message *transport.Message, options Options) (*Negotiation, error) {
	// Validate parameters.
	invitation, ok := message.Payload.(Invitation)
	if message.Kind != KindInvitation || !ok {
		return nil, errors.Errorf("unexpected %s message for session negotiation", message.Kind)
	} else if message.NegotiationID == "" {
		return nil, errors.New("invitation without negotiation identifier")
	} else if invitation.Host != message.From {
		return nil, errors.Errorf("invitation from %s on behalf of %s", message.From, invitation.Host)
	} else if options.Transport == nil {
		return nil, errors.New("no transport specified")
	}

	// Create the negotiation.
	description := fmt.Sprintf("joining session %s hosted by %s", invitation.SessionID, invitation.Host)
	result, err := newNegotiation(message.NegotiationID, message.From, description, "session.incoming", options)
	if err != nil {
		return nil, err
	}
	result.role = &peerRole{n: result, invitation: invitation}

	// Success.
	return result, nil
}

// steps implements role.steps.
func (r *peerRole) steps() []step {
	return []step{
		{PhaseInvitationSent, r.acknowledge},
		{PhaseAccepted, r.accept},
		{PhaseParametersExchanged, r.exchangeParameters},
		{PhaseStarted, r.start},
		{PhaseCompleted, r.awaitFinalization},
	}
}

// session implements role.session.
func (r *peerRole) session() *Session {
	if outcome, ok := r.n.Outcome(); !ok || outcome.Status != negotiation.StatusOK {
		return nil
	}
	return r.joined
}

// acknowledge confirms receipt of the invitation.
func (r *peerRole) acknowledge() error {
	return r.n.send(KindInvitationReceipt, Receipt{})
}

// accept asks the local user whether or not to join and reports acceptance.
func (r *peerRole) accept() error {
	// Ask the user, if possible. The decision can take arbitrarily long, so
	// remain responsive to cancellation while waiting.
	if prompter := r.n.options.Prompter; prompter != nil {
		question := fmt.Sprintf("%s invites you to session %s (%s). Join",
			r.invitation.Host, r.invitation.SessionID, r.invitation.Description,
		)
		type decision struct {
			accepted bool
			err      error
		}
		decisions := make(chan decision, 1)
		go func() {
			accepted, err := prompting.Decide(prompter, question, false)
			decisions <- decision{accepted, err}
		}()
		select {
		case d := <-decisions:
			if d.err != nil {
				return errors.Wrap(d.err, "unable to decide on invitation")
			} else if !d.accepted {
				r.n.LocalCancel("", true)
				return r.n.Check()
			}
		case <-r.n.Canceled():
			return r.n.Check()
		}
	}

	// Report acceptance.
	return r.n.send(KindAccepted, Accepted{})
}

// exchangeParameters proposes parameters and receives the authoritative
// result from the host.
func (r *peerRole) exchangeParameters() error {
	if err := r.n.send(KindParameters, Parameters{FavoriteColor: r.n.options.FavoriteColor, Color: NoColor}); err != nil {
		return err
	}
	message, err := r.n.await(KindParameters, r.n.options.configuration().Negotiation.ResponseTimeout, true, "session parameters")
	if err != nil {
		return err
	}
	parameters, ok := message.Payload.(Parameters)
	if !ok {
		return errors.New("malformed session parameters")
	}
	r.parameters = parameters
	r.n.logger.Debugf("Assigned color %d", parameters.Color)
	return nil
}

// start starts the local session and signals completion to the host.
func (r *peerRole) start() error {
	joined := newParticipantSession(r.invitation, r.parameters, r.n.options.Transport, r.n.options.Logger)
	if r.onStart != nil && !r.onStart(joined) {
		return errors.New("already in a session")
	}
	r.joined = joined
	return r.n.send(KindStarted, Started{})
}

// awaitFinalization waits for the host to confirm that the participant has
// been added to the session.
func (r *peerRole) awaitFinalization() error {
	_, err := r.n.await(KindFinalized, r.n.options.configuration().Negotiation.ResponseTimeout, true, "session finalization")
	return err
}

// cleanup implements role.cleanup.
func (r *peerRole) cleanup(negotiation.Outcome) {
	if r.joined != nil && r.onLeave != nil {
		r.onLeave(r.joined)
	}
	r.joined = nil
}
