package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/colabsync"
	"github.com/colabsync/colabsync/pkg/identifier"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/prompting"
)

// hostRole drives a session negotiation from the host's side.
type hostRole struct {
	// n is the negotiation.
	n *Negotiation
	// hosted is the host's session.
	hosted *Session
	// color is the color reserved for the participant.
	color int
	// added indicates whether or not the participant was added to the roster.
	added bool
}

// NewOutgoing creates a negotiation inviting the peer into a session hosted
// locally.
func NewOutgoing(peer string, hosted *Session, options Options) (*Negotiation, error) {
	// Validate parameters.
	if hosted == nil {
		return nil, errors.New("no session specified")
	} else if !hosted.IsHost() {
		return nil, errors.New("only the session host can invite participants")
	} else if options.Transport == nil {
		return nil, errors.New("no transport specified")
	} else if peer == "" || peer == hosted.Local() {
		return nil, errors.Errorf("invalid peer: %q", peer)
	} else if _, ok := hosted.User(peer); ok {
		return nil, errors.Errorf("%s is already in the session", peer)
	}

	// Generate an identifier.
	id, err := identifier.New(identifier.PrefixSessionNegotiation)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate negotiation identifier")
	}

	// Create the negotiation.
	description := fmt.Sprintf("inviting %s to session %s", peer, hosted.ID())
	result, err := newNegotiation(id, peer, description, "session.outgoing", options)
	if err != nil {
		return nil, err
	}
	result.role = &hostRole{n: result, hosted: hosted, color: NoColor}

	// Success.
	return result, nil
}

// steps implements role.steps.
func (r *hostRole) steps() []step {
	return []step{
		{PhaseAvailabilityChecked, r.checkAvailability},
		{PhaseVersionChecked, r.checkVersion},
		{PhaseInvitationSent, r.invite},
		{PhaseAccepted, r.awaitAcceptance},
		{PhaseParametersExchanged, r.exchangeParameters},
		{PhaseCompleted, r.finalize},
	}
}

// session implements role.session.
func (r *hostRole) session() *Session {
	return r.hosted
}

// checkAvailability verifies that the peer can be reached.
func (r *hostRole) checkAvailability() error {
	via := r.n.options.Transport
	if !via.Supports(r.n.peer) {
		return &negotiation.Cancellation{ErrorMessage: fmt.Sprintf("%s does not support colabsync", r.n.peer)}
	} else if !via.Available(r.n.peer) {
		return &negotiation.Cancellation{ErrorMessage: fmt.Sprintf("%s is not available", r.n.peer)}
	}
	return nil
}

// checkVersion exchanges version information with the peer and resolves any
// incompatibility. The peer doesn't know about the negotiation yet, so
// failures aren't reported to it.
func (r *hostRole) checkVersion() error {
	// Request the peer's version information.
	local := colabsync.LocalVersionInfo()
	if err := r.n.send(KindVersionRequest, VersionRequest{Info: local}); err != nil {
		return &negotiation.Cancellation{ErrorMessage: err.Error()}
	}
	configuration := r.n.options.configuration()
	message, err := r.n.await(KindVersionResponse, configuration.Negotiation.ResponseTimeout, false, "version information")
	if err != nil {
		return err
	}
	response, ok := message.Payload.(VersionResponse)
	if !ok {
		return &negotiation.Cancellation{ErrorMessage: "malformed version response"}
	}

	// The peer computed its own compatibility, so invert it.
	compatibility := response.Info.Compatibility.Invert()
	if compatibility == colabsync.CompatibilityOK {
		return nil
	}
	var conflict string
	if compatibility == colabsync.CompatibilityUnknown {
		conflict = fmt.Sprintf("compatibility of local version %s with remote version %s is unknown",
			local.Version, response.Info.Version,
		)
	} else {
		conflict = fmt.Sprintf("local version %s is %s for remote version %s",
			local.Version, compatibility, response.Info.Version,
		)
	}

	// Fail in strict mode or if nobody can decide.
	if configuration.Negotiation.StrictVersion || r.n.options.Prompter == nil {
		return &negotiation.Cancellation{ErrorMessage: conflict}
	}

	// Let the user decide.
	proceed, err := prompting.Decide(r.n.options.Prompter, conflict+". Continue anyway?", false)
	if err != nil {
		return &negotiation.Cancellation{ErrorMessage: errors.Wrap(err, "unable to resolve version conflict").Error()}
	} else if !proceed {
		r.n.LocalCancel("", false)
		return r.n.Check()
	}
	r.n.logger.Warnf("Continuing despite version conflict: %s", conflict)
	return nil
}

// invite sends the invitation and waits for its receipt.
func (r *hostRole) invite() error {
	description := fmt.Sprintf("%d user(s), %d project(s)", len(r.hosted.Users()), len(r.hosted.ProjectIDs()))
	invitation := Invitation{
		SessionID:   r.hosted.ID(),
		Host:        r.hosted.Local(),
		Description: description,
	}
	if err := r.n.send(KindInvitation, invitation); err != nil {
		return err
	}
	_, err := r.n.await(KindInvitationReceipt, r.n.options.configuration().Negotiation.ResponseTimeout, true, "invitation receipt")
	return err
}

// awaitAcceptance waits for the peer's user to accept the invitation.
func (r *hostRole) awaitAcceptance() error {
	_, err := r.n.await(KindAccepted, r.n.options.configuration().Negotiation.AcceptanceTimeout, true, "invitation acceptance")
	return err
}

// exchangeParameters receives the peer's parameter proposal and replies with
// the authoritative parameters.
func (r *hostRole) exchangeParameters() error {
	// Receive the proposal.
	message, err := r.n.await(KindParameters, r.n.options.configuration().Negotiation.ResponseTimeout, true, "session parameters")
	if err != nil {
		return err
	}
	proposal, ok := message.Payload.(Parameters)
	if !ok {
		return errors.New("malformed session parameters")
	}

	// Assign a color.
	r.color = r.hosted.reserveColor(proposal.FavoriteColor)
	r.n.logger.Debugf("Assigned color %d (favorite %d)", r.color, proposal.FavoriteColor)

	// Reply with the merged parameters, including the prospective roster.
	users := append(r.hosted.Users(), User{ID: r.n.peer, Color: r.color})
	return r.n.send(KindParameters, Parameters{
		FavoriteColor: proposal.FavoriteColor,
		Color:         r.color,
		Users:         users,
	})
}

// finalize waits for the peer's session to start, adds the peer to the
// roster, and confirms the peer's membership.
func (r *hostRole) finalize() error {
	if _, err := r.n.await(KindStarted, r.n.options.configuration().Negotiation.ResponseTimeout, true, "session start"); err != nil {
		return err
	}
	if err := r.hosted.addUser(User{ID: r.n.peer, Color: r.color}); err != nil {
		return err
	}
	r.added = true
	r.hosted.broadcastRoster()

	// The confirmation is final, so it's only sent if we're still running.
	if err := r.n.Check(); err != nil {
		return err
	}
	return r.n.send(KindFinalized, Finalized{})
}

// cleanup implements role.cleanup.
func (r *hostRole) cleanup(negotiation.Outcome) {
	if r.added {
		r.hosted.removeUser(r.n.peer)
		r.hosted.broadcastRoster()
	} else if r.color != NoColor {
		r.hosted.releaseColor(r.color)
	}
}
