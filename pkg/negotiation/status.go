// Package negotiation provides the cooperative cancellation machinery shared by
// all negotiations: cancellation causes, exit classification, bounded waits for
// peer responses, and the registry of in-flight negotiations.
package negotiation

import (
	"fmt"
)

// Status is the final exit status of a negotiation.
type Status uint8

const (
	// StatusOK indicates that a negotiation completed successfully.
	StatusOK Status = iota
	// StatusCancel indicates that a negotiation was canceled locally without
	// an error.
	StatusCancel
	// StatusRemoteCancel indicates that a negotiation was canceled by the
	// peer without an error.
	StatusRemoteCancel
	// StatusError indicates that a negotiation failed locally.
	StatusError
	// StatusRemoteError indicates that a negotiation failed on the peer.
	StatusRemoteError
)

// String provides a human-readable representation of a status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCancel:
		return "CANCEL"
	case StatusRemoteCancel:
		return "REMOTE_CANCEL"
	case StatusError:
		return "ERROR"
	case StatusRemoteError:
		return "REMOTE_ERROR"
	default:
		panic("unhandled negotiation status")
	}
}

// Outcome is the externally observable result of a negotiation.
type Outcome struct {
	// Status is the exit status.
	Status Status
	// Message is the human-readable error message. It is only present for
	// StatusError and StatusRemoteError.
	Message string
}

// String provides a human-readable representation of an outcome.
func (o Outcome) String() string {
	if o.Message != "" {
		return fmt.Sprintf("%s: %s", o.Status, o.Message)
	}
	return o.Status.String()
}

// classify computes the outcome for a cancellation cause.
func classify(cause *Cancellation) Outcome {
	switch {
	case cause == nil:
		return Outcome{Status: StatusOK}
	case cause.Remote && cause.ErrorMessage != "":
		return Outcome{Status: StatusRemoteError, Message: cause.ErrorMessage}
	case cause.Remote:
		return Outcome{Status: StatusRemoteCancel}
	case cause.ErrorMessage != "":
		return Outcome{Status: StatusError, Message: cause.ErrorMessage}
	default:
		return Outcome{Status: StatusCancel}
	}
}
