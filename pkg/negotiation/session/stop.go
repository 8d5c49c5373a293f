package session

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation/project"
	"github.com/colabsync/colabsync/pkg/transport"
)

// Pauser pauses and resumes participants.
type Pauser interface {
	// Pause pauses the specified participants. On failure, no participant
	// remains paused.
	Pause(participants []string, reason string) error
	// Resume resumes the specified participants.
	Resume(participants []string)
}

// StopManager pauses every participant of a session so that a consistent
// snapshot of shared projects can be taken. Only one stop may be in effect at
// a time. Concurrent stops block until the active stop is resumed.
type StopManager struct {
	// pauser pauses participants. If nil, stopping fails.
	pauser Pauser
	// participants lists the participants to pause.
	participants func() []string
	// logger is the stop manager logger.
	logger *logging.Logger
	// stopLock is held from a stop until the corresponding resumption.
	stopLock sync.Mutex
}

// NewStopManager creates a new stop manager.
func NewStopManager(pauser Pauser, participants func() []string, logger *logging.Logger) *StopManager {
	return &StopManager{
		pauser:       pauser,
		participants: participants,
		logger:       logger.Sublogger("stop"),
	}
}

// StopAll implements project.Stopper.StopAll.
func (m *StopManager) StopAll(reason string) (project.Resumer, error) {
	// Ensure that stopping is supported.
	if m.pauser == nil {
		return nil, errors.New("only the session host can stop participants")
	}

	// Acquire exclusive stop rights.
	m.stopLock.Lock()

	// Pause participants.
	participants := m.participants()
	if err := m.pauser.Pause(participants, reason); err != nil {
		m.stopLock.Unlock()
		return nil, errors.Wrap(err, "unable to pause participants")
	}
	m.logger.Debugf("Stopped %d participant(s): %s", len(participants), reason)

	// Success.
	return &Handle{manager: m, participants: participants}, nil
}

// Handle resumes the participants paused by a stop.
type Handle struct {
	// manager is the associated stop manager.
	manager *StopManager
	// participants are the paused participants.
	participants []string
	// once ensures that resumption happens only once.
	once sync.Once
}

// Resume implements project.Resumer.Resume. It is idempotent.
func (h *Handle) Resume() {
	h.once.Do(func() {
		h.manager.pauser.Resume(h.participants)
		h.manager.logger.Debugf("Resumed %d participant(s)", len(h.participants))
		h.manager.stopLock.Unlock()
	})
}

// transportPauser pauses participants by sending them pause messages.
type transportPauser struct {
	// via is the transport.
	via transport.Transport
	// logger is the pauser logger.
	logger *logging.Logger
}

// Pause implements Pauser.Pause.
func (p *transportPauser) Pause(participants []string, reason string) error {
	for i, participant := range participants {
		err := p.via.Send(&transport.Message{
			Kind:    KindPause,
			To:      participant,
			Payload: Pause{Reason: reason},
		})
		if err != nil {
			p.Resume(participants[:i])
			return errors.Wrapf(err, "unable to pause %s", participant)
		}
	}
	return nil
}

// Resume implements Pauser.Resume.
func (p *transportPauser) Resume(participants []string) {
	for _, participant := range participants {
		err := p.via.Send(&transport.Message{
			Kind:    KindResume,
			To:      participant,
			Payload: Resume{},
		})
		if err != nil {
			p.logger.Warnf("Unable to resume %s: %v", participant, err)
		}
	}
}
