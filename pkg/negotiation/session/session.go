package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/resource"
	"github.com/colabsync/colabsync/pkg/transport"
)

const (
	// NoColor indicates the absence of a color.
	NoColor = -1
	// MaximumColors is the number of distinct user colors.
	MaximumColors = 5
)

// User is a session member.
type User struct {
	// ID is the user's transport identity.
	ID string
	// Color is the user's color index, or NoColor.
	Color int
	// Host indicates whether or not the user is the session host.
	Host bool
}

// Session is the local view of a collaboration session. It is safe for
// concurrent usage.
type Session struct {
	// id is the session identifier.
	id string
	// host is the host's identity.
	host string
	// local is the local user's identity.
	local string
	// via is the session transport.
	via transport.Transport
	// logger is the session logger.
	logger *logging.Logger
	// stopper pauses and resumes participants.
	stopper *StopManager

	// rosterLock serializes roster changes, including concurrent joins.
	rosterLock sync.Mutex
	// users maps identities to users.
	users map[string]User
	// reserved are colors reserved by in-flight negotiations.
	reserved map[int]bool

	// projectsLock guards projects.
	projectsLock sync.RWMutex
	// projects maps project identifiers to local stores.
	projects map[string]resource.Store

	// pauseLock guards pauseReason.
	pauseLock sync.Mutex
	// pauseReason is the reason the local user is paused, if any.
	pauseReason string
	// paused indicates whether or not the local user is paused.
	paused bool
}

// New creates a new session hosted by the local endpoint of the transport.
// The host uses the specified color.
func New(via transport.Transport, color int, logger *logging.Logger) (*Session, error) {
	// Validate parameters.
	if via == nil {
		return nil, errors.New("no transport specified")
	} else if color < NoColor || color >= MaximumColors {
		return nil, errors.Errorf("invalid color: %d", color)
	}

	// Generate an identifier.
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate session identifier")
	}

	// Create the session.
	local := via.Local()
	result := newSession(id.String(), local, via, logger)
	result.users[local] = User{ID: local, Color: color, Host: true}
	result.stopper = NewStopManager(&transportPauser{via: via, logger: result.logger}, result.Participants, result.logger)

	// Success.
	return result, nil
}

// newParticipantSession creates the local session of a participant that has
// joined through an invitation.
func newParticipantSession(invitation Invitation, parameters Parameters, via transport.Transport, logger *logging.Logger) *Session {
	result := newSession(invitation.SessionID, invitation.Host, via, logger)
	result.applyRoster(parameters.Users)
	result.stopper = NewStopManager(nil, result.Participants, result.logger)
	return result
}

// newSession creates an empty session.
func newSession(id, host string, via transport.Transport, logger *logging.Logger) *Session {
	return &Session{
		id:       id,
		host:     host,
		local:    via.Local(),
		via:      via,
		logger:   logger.Sublogger("session"),
		users:    make(map[string]User),
		reserved: make(map[int]bool),
		projects: make(map[string]resource.Store),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Host returns the host's identity.
func (s *Session) Host() string {
	return s.host
}

// Local returns the local user's identity.
func (s *Session) Local() string {
	return s.local
}

// IsHost returns whether or not the local user is the host.
func (s *Session) IsHost() bool {
	return s.host == s.local
}

// StopManager returns the session's stop manager.
func (s *Session) StopManager() *StopManager {
	return s.stopper
}

// Users returns the session roster, sorted by identity.
func (s *Session) Users() []User {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	return s.sortedUsers()
}

// sortedUsers returns the roster sorted by identity. The roster lock must be
// held.
func (s *Session) sortedUsers() []User {
	result := make([]User, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// User looks up a session user.
func (s *Session) User(id string) (User, bool) {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	user, ok := s.users[id]
	return user, ok
}

// Participants returns the identities of all users other than the local user,
// sorted.
func (s *Session) Participants() []string {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	var result []string
	for _, user := range s.sortedUsers() {
		if user.ID != s.local {
			result = append(result, user.ID)
		}
	}
	return result
}

// colorInUse returns whether or not a color is used or reserved. The roster
// lock must be held.
func (s *Session) colorInUse(color int) bool {
	if s.reserved[color] {
		return true
	}
	for _, user := range s.users {
		if user.Color == color {
			return true
		}
	}
	return false
}

// reserveColor reserves a color for a joining user. The favorite color is
// used if it's valid and free, otherwise the lowest free color is used. If no
// colors are free, NoColor is returned.
func (s *Session) reserveColor(favorite int) int {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	if favorite >= 0 && favorite < MaximumColors && !s.colorInUse(favorite) {
		s.reserved[favorite] = true
		return favorite
	}
	for color := 0; color < MaximumColors; color++ {
		if !s.colorInUse(color) {
			s.reserved[color] = true
			return color
		}
	}
	return NoColor
}

// releaseColor releases a color reservation.
func (s *Session) releaseColor(color int) {
	s.rosterLock.Lock()
	delete(s.reserved, color)
	s.rosterLock.Unlock()
}

// addUser adds a user to the roster, consuming any reservation of the user's
// color.
func (s *Session) addUser(user User) error {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return errors.Errorf("user %s already in session", user.ID)
	}
	delete(s.reserved, user.Color)
	s.users[user.ID] = user
	s.logger.Infof("%s joined the session", user.ID)
	return nil
}

// removeUser removes a user from the roster.
func (s *Session) removeUser(id string) {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	if _, ok := s.users[id]; ok {
		delete(s.users, id)
		s.logger.Infof("%s left the session", id)
	}
}

// applyRoster replaces the roster with one received from the host.
func (s *Session) applyRoster(users []User) {
	s.rosterLock.Lock()
	defer s.rosterLock.Unlock()
	s.users = make(map[string]User, len(users))
	for _, user := range users {
		s.users[user.ID] = user
	}
}

// broadcastRoster sends the roster to all participants. Failures are logged.
func (s *Session) broadcastRoster() {
	users := s.Users()
	for _, user := range users {
		if user.ID == s.local {
			continue
		}
		err := s.via.Send(&transport.Message{
			Kind:    KindRoster,
			To:      user.ID,
			Payload: Roster{Users: users},
		})
		if err != nil {
			s.logger.Warnf("Unable to send roster to %s: %v", user.ID, err)
		}
	}
}

// Add registers a project mapping.
func (s *Session) Add(projectID string, store resource.Store) error {
	s.projectsLock.Lock()
	defer s.projectsLock.Unlock()
	if _, ok := s.projects[projectID]; ok {
		return errors.Errorf("project %s already mapped", projectID)
	}
	s.projects[projectID] = store
	return nil
}

// Remove unregisters a project mapping.
func (s *Session) Remove(projectID string) {
	s.projectsLock.Lock()
	delete(s.projects, projectID)
	s.projectsLock.Unlock()
}

// Project looks up the local store for a project.
func (s *Session) Project(projectID string) (resource.Store, bool) {
	s.projectsLock.RLock()
	defer s.projectsLock.RUnlock()
	store, ok := s.projects[projectID]
	return store, ok
}

// ProjectIDs returns the identifiers of all mapped projects, sorted.
func (s *Session) ProjectIDs() []string {
	s.projectsLock.RLock()
	defer s.projectsLock.RUnlock()
	result := make([]string, 0, len(s.projects))
	for projectID := range s.projects {
		result = append(result, projectID)
	}
	sort.Strings(result)
	return result
}

// setPaused records a pause or resumption of the local user.
func (s *Session) setPaused(paused bool, reason string) {
	s.pauseLock.Lock()
	s.paused = paused
	s.pauseReason = reason
	s.pauseLock.Unlock()
	if paused {
		s.logger.Infof("Paused: %s", reason)
	} else {
		s.logger.Info("Resumed")
	}
}

// Paused returns whether or not the local user is paused by the host, along
// with the reason.
func (s *Session) Paused() (bool, string) {
	s.pauseLock.Lock()
	defer s.pauseLock.Unlock()
	return s.paused, s.pauseReason
}
