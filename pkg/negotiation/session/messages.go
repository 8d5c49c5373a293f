// Package session implements the handshake through which a participant joins
// a collaboration session, along with the shared session object and the
// manager that dispatches incoming negotiation traffic.
package session

import (
	"github.com/colabsync/colabsync/pkg/colabsync"
	"github.com/colabsync/colabsync/pkg/transport"
)

const (
	// KindVersionRequest is the message kind requesting version information.
	KindVersionRequest transport.Kind = "session.version.request"
	// KindVersionResponse is the message kind answering a version request.
	KindVersionResponse transport.Kind = "session.version.response"
	// KindInvitation is the message kind carrying a session invitation.
	KindInvitation transport.Kind = "session.invitation"
	// KindInvitationReceipt is the message kind acknowledging receipt of an
	// invitation. It is sent automatically and doesn't imply acceptance.
	KindInvitationReceipt transport.Kind = "session.invitation.receipt"
	// KindAccepted is the message kind indicating that an invitation was
	// accepted.
	KindAccepted transport.Kind = "session.accepted"
	// KindParameters is the message kind carrying session parameters.
	KindParameters transport.Kind = "session.parameters"
	// KindStarted is the message kind indicating that a participant has
	// started its local session.
	KindStarted transport.Kind = "session.started"
	// KindFinalized is the message kind with which the host confirms that a
	// participant has been added to the session.
	KindFinalized transport.Kind = "session.finalized"
	// KindRoster is the message kind carrying the session roster.
	KindRoster transport.Kind = "session.roster"
	// KindPause is the message kind pausing a participant.
	KindPause transport.Kind = "session.pause"
	// KindResume is the message kind resuming a participant.
	KindResume transport.Kind = "session.resume"
)

// VersionRequest is the payload of a version request.
type VersionRequest struct {
	// Info is the requester's version information.
	Info colabsync.VersionInfo
}

// VersionResponse is the payload of a version response.
type VersionResponse struct {
	// Info is the responder's version information, with the compatibility
	// computed by the responder against the requester's version.
	Info colabsync.VersionInfo
}

// Invitation is the payload of a session invitation.
type Invitation struct {
	// SessionID is the session identifier.
	SessionID string
	// Host is the session host.
	Host string
	// Description is a human-readable description of the session.
	Description string
}

// Receipt is the payload of an invitation receipt.
type Receipt struct{}

// Accepted is the payload of an acceptance.
type Accepted struct{}

// Finalized is the payload of a finalization confirmation.
type Finalized struct{}

// Parameters is the payload of a parameter exchange. Participants send their
// proposal and the host echoes back the authoritative result.
type Parameters struct {
	// FavoriteColor is the participant's preferred color, or NoColor.
	FavoriteColor int
	// Color is the assigned color. It is only set by the host.
	Color int
	// Users is the session roster. It is only set by the host.
	Users []User
}

// Clone implements transport.Cloner.Clone.
func (p Parameters) Clone() any {
	p.Users = append([]User(nil), p.Users...)
	return p
}

// Started is the payload signaling that a participant's session has started.
type Started struct{}

// Roster is the payload of a roster broadcast.
type Roster struct {
	// Users are the session users.
	Users []User
}

// Clone implements transport.Cloner.Clone.
func (r Roster) Clone() any {
	r.Users = append([]User(nil), r.Users...)
	return r
}

// Pause is the payload of a pause request.
type Pause struct {
	// Reason is a human-readable reason for the pause.
	Reason string
}

// Resume is the payload of a resume request.
type Resume struct{}
