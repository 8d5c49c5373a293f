package project

// Resumer resumes participants paused by a Stopper.
type Resumer interface {
	// Resume resumes the paused participants. It must be idempotent.
	Resume()
}

// Stopper pauses all session participants so that a consistent snapshot of
// shared projects can be taken.
type Stopper interface {
	// StopAll pauses all participants, returning a handle to resume them.
	StopAll(reason string) (Resumer, error)
}
