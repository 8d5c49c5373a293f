package negotiation

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/state"
)

// Registry tracks in-flight negotiations. It is safe for concurrent usage.
// Registration and unregistration are performed by State.
type Registry struct {
	// logger is the registry logger.
	logger *logging.Logger
	// tracker tracks changes to the negotiation set.
	tracker *state.Tracker
	// lock guards negotiations and notifies tracker of changes.
	lock *state.TrackingLock
	// negotiations maps identifiers to negotiation states.
	negotiations map[string]*State
}

// NewRegistry creates a new, empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	tracker := state.NewTracker()
	return &Registry{
		logger:       logger,
		tracker:      tracker,
		lock:         state.NewTrackingLock(tracker),
		negotiations: make(map[string]*State),
	}
}

// register adds a negotiation to the registry.
func (r *Registry) register(negotiation *State) error {
	r.lock.Lock()
	if _, ok := r.negotiations[negotiation.id]; ok {
		r.lock.UnlockWithoutNotify()
		return errors.Errorf("negotiation %s already registered", negotiation.id)
	}
	r.negotiations[negotiation.id] = negotiation
	r.lock.Unlock()
	r.logger.Debugf("Registered negotiation %s", negotiation.id)
	return nil
}

// unregister removes a negotiation from the registry.
func (r *Registry) unregister(negotiation *State) {
	r.lock.Lock()
	if r.negotiations[negotiation.id] != negotiation {
		r.lock.UnlockWithoutNotify()
		return
	}
	delete(r.negotiations, negotiation.id)
	r.lock.Unlock()
	r.logger.Debugf("Unregistered negotiation %s", negotiation.id)
}

// Get looks up a negotiation by identifier.
func (r *Registry) Get(id string) (*State, bool) {
	r.lock.Lock()
	defer r.lock.UnlockWithoutNotify()
	negotiation, ok := r.negotiations[id]
	return negotiation, ok
}

// List returns the registered negotiations, sorted by identifier.
func (r *Registry) List() []*State {
	r.lock.Lock()
	result := make([]*State, 0, len(r.negotiations))
	for _, negotiation := range r.negotiations {
		result = append(result, negotiation)
	}
	r.lock.UnlockWithoutNotify()
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

// Len returns the number of registered negotiations.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.UnlockWithoutNotify()
	return len(r.negotiations)
}

// CancelAll locally cancels every registered negotiation with the specified
// message, notifying peers. It returns the number of negotiations for which
// the cancellation was recorded.
func (r *Registry) CancelAll(message string) int {
	var canceled int
	for _, negotiation := range r.List() {
		if negotiation.LocalCancel(message, true) {
			canceled++
		}
	}
	return canceled
}

// Index returns the current registry state index.
func (r *Registry) Index() uint64 {
	return r.tracker.Index()
}

// WaitForChange waits for the registry to change from the specified state
// index, returning the new index.
func (r *Registry) WaitForChange(ctx context.Context, previousIndex uint64) (uint64, error) {
	return r.tracker.WaitForChange(ctx, previousIndex)
}

// WaitForEmpty waits until no negotiations are registered.
func (r *Registry) WaitForEmpty(ctx context.Context) error {
	for {
		index := r.Index()
		if r.Len() == 0 {
			return nil
		}
		if _, err := r.WaitForChange(ctx, index); err != nil {
			return err
		}
	}
}

// Shutdown terminates change tracking.
func (r *Registry) Shutdown() {
	r.tracker.Terminate()
}
