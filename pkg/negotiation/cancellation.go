package negotiation

// Cancellation is the cause recorded when a negotiation is torn down. It also
// serves as the error value propagated by negotiation steps once a cause has
// been recorded.
type Cancellation struct {
	// Remote indicates whether or not the peer initiated the cancellation.
	Remote bool
	// ErrorMessage is the error text, if the cancellation was caused by a
	// failure. An empty message indicates a plain cancellation.
	ErrorMessage string
	// NotifyPeer indicates whether or not the peer should be informed of the
	// cancellation. It is always false for remote cancellations.
	NotifyPeer bool
}

// Error implements error.Error.
func (c *Cancellation) Error() string {
	origin := "locally"
	if c.Remote {
		origin = "remotely"
	}
	if c.ErrorMessage != "" {
		return "negotiation failed " + origin + ": " + c.ErrorMessage
	}
	return "negotiation canceled " + origin
}
