package negotiation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/jonboulle/clockwork"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/progress"
)

// DefaultPollInterval is the interval at which waits sample the progress sink
// for external cancellation if no interval is specified.
const DefaultPollInterval = time.Second

// Hooks are the role-specific callbacks invoked during termination.
type Hooks struct {
	// NotifyPeer sends a best-effort cancellation notice to the peer. It is
	// only invoked if the recorded cause requests peer notification.
	NotifyPeer func(cause *Cancellation)
	// Cleanup releases resources held by the negotiation and rolls back any
	// partial side effects if the outcome isn't successful. It is always
	// invoked exactly once.
	Cleanup func(outcome Outcome)
}

// Options are the optional parameters for state creation.
type Options struct {
	// Description is a human-readable description of the negotiation.
	Description string
	// Logger is the negotiation logger.
	Logger *logging.Logger
	// Sink is the progress sink. If nil, a private progress.Monitor is used.
	// The negotiation reports progress through it and observes its
	// cancellation, but its own cancellation is never written back to it.
	Sink progress.Sink
	// Clock is the clock used for timeouts and polling. If nil, the real
	// clock is used.
	Clock clockwork.Clock
	// PollInterval is the interval at which waits sample the progress sink.
	// If non-positive, DefaultPollInterval is used.
	PollInterval time.Duration
	// Registry is the registry in which the negotiation is registered for its
	// lifetime. It may be nil.
	Registry *Registry
}

// State is the cancellation state shared by all negotiations. It records the
// first cancellation cause, provides bounded waits for peer responses, and
// funnels every exit path through a single idempotent termination.
type State struct {
	// id is the negotiation identifier.
	id string
	// description is the negotiation description.
	description string
	// logger is the negotiation logger.
	logger *logging.Logger
	// sink is the negotiation's child of the caller's progress sink.
	sink *progress.Child
	// clock is the timing clock.
	clock clockwork.Clock
	// pollInterval is the sink sampling interval.
	pollInterval time.Duration
	// registry is the registry in which the state is registered, if any.
	registry *Registry
	// hooks are the termination hooks.
	hooks Hooks
	// cause is the first recorded cancellation cause.
	cause atomic.Pointer[Cancellation]
	// canceled is closed when a cause is recorded.
	canceled chan struct{}
	// terminateOnce guards termination.
	terminateOnce sync.Once
	// terminated is closed once termination completes.
	terminated chan struct{}
	// outcome is the frozen outcome. It is only valid once terminated is
	// closed.
	outcome Outcome
}

// NewState creates a new cancellation state for the negotiation with the
// specified identifier. If a registry is specified, the state is registered
// and will be unregistered on termination.
func NewState(id string, hooks Hooks, options Options) (*State, error) {
	// Fill in defaults.
	if options.Sink == nil {
		options.Sink = &progress.Monitor{Logger: options.Logger}
	}
	if options.Clock == nil {
		options.Clock = clockwork.NewRealClock()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}

	// Create the state.
	state := &State{
		id:           id,
		description:  options.Description,
		logger:       options.Logger,
		sink:         progress.NewChild(options.Sink),
		clock:        options.Clock,
		pollInterval: options.PollInterval,
		registry:     options.Registry,
		hooks:        hooks,
		canceled:     make(chan struct{}),
		terminated:   make(chan struct{}),
	}

	// Register the state.
	if state.registry != nil {
		if err := state.registry.register(state); err != nil {
			return nil, errors.Wrap(err, "unable to register negotiation")
		}
	}

	// Success.
	return state, nil
}

// ID returns the negotiation identifier.
func (s *State) ID() string {
	return s.id
}

// Description returns the negotiation description.
func (s *State) Description() string {
	return s.description
}

// Sink returns the negotiation's progress sink.
func (s *State) Sink() progress.Sink {
	return s.sink
}

// Clock returns the negotiation's clock.
func (s *State) Clock() clockwork.Clock {
	return s.clock
}

// record attempts to record a cancellation cause. Only the first attempt
// succeeds.
func (s *State) record(cause *Cancellation) bool {
	// Attempt to record the cause.
	if !s.cause.CompareAndSwap(nil, cause) {
		return false
	}

	// Signal cancellation to waiters and the negotiation's own sink.
	close(s.canceled)
	s.sink.SetCanceled(true)

	// Log the cancellation.
	s.logger.Debugf("Recorded cancellation: %v", cause)

	// Success.
	return true
}

// LocalCancel records a local cancellation cause if no cause has been
// recorded yet. A non-empty message indicates a failure. It returns whether or
// not the cause was recorded.
func (s *State) LocalCancel(message string, notifyPeer bool) bool {
	return s.record(&Cancellation{ErrorMessage: message, NotifyPeer: notifyPeer})
}

// RemoteCancel records a remote cancellation cause if no cause has been
// recorded yet. A non-empty message indicates a failure on the peer. It
// returns whether or not the cause was recorded.
func (s *State) RemoteCancel(message string) bool {
	return s.record(&Cancellation{Remote: true, ErrorMessage: message})
}

// Cause returns the recorded cancellation cause, if any.
func (s *State) Cause() *Cancellation {
	return s.cause.Load()
}

// Canceled returns a channel that is closed once a cancellation cause has
// been recorded.
func (s *State) Canceled() <-chan struct{} {
	return s.canceled
}

// Check returns the recorded cancellation cause as an error, or nil if the
// negotiation hasn't been canceled. If the progress sink reports external
// cancellation, a plain local cancellation is recorded first.
func (s *State) Check() error {
	if s.cause.Load() == nil && s.sink.IsCanceled() {
		s.LocalCancel("", true)
	}
	if cause := s.cause.Load(); cause != nil {
		return cause
	}
	return nil
}

// Terminate classifies the negotiation's final status, invokes the
// termination hooks, and unregisters the negotiation. Only the first call has
// any effect. All calls return the same outcome. If err is non-nil and isn't
// a cancellation, it is recorded as a local failure that notifies the peer.
func (s *State) Terminate(err error) Outcome {
	s.terminateOnce.Do(func() {
		// Record the error as a cause. If a cause has already been recorded,
		// then this has no effect.
		if err != nil {
			var cancellation *Cancellation
			if errors.As(err, &cancellation) {
				s.record(cancellation)
			} else {
				s.LocalCancel(err.Error(), true)
			}
		}

		// Classify the final status.
		cause := s.cause.Load()
		s.outcome = classify(cause)

		// Notify the peer if requested.
		if cause != nil && cause.NotifyPeer && s.hooks.NotifyPeer != nil {
			s.hooks.NotifyPeer(cause)
		}

		// Perform cleanup.
		if s.hooks.Cleanup != nil {
			s.hooks.Cleanup(s.outcome)
		}

		// Unregister.
		if s.registry != nil {
			s.registry.unregister(s)
		}

		// Mark the progress task as complete.
		s.sink.Done()

		// Log the outcome.
		if s.outcome.Status == StatusOK {
			s.logger.Infof("Negotiation %s completed", s.id)
		} else {
			s.logger.Infof("Negotiation %s terminated: %s", s.id, s.outcome)
		}

		// Signal termination.
		close(s.terminated)
	})
	<-s.terminated
	return s.outcome
}

// Terminated returns a channel that is closed once termination completes.
func (s *State) Terminated() <-chan struct{} {
	return s.terminated
}

// Outcome returns the negotiation outcome and whether or not the negotiation
// has terminated.
func (s *State) Outcome() (Outcome, bool) {
	select {
	case <-s.terminated:
		return s.outcome, true
	default:
		return Outcome{}, false
	}
}
