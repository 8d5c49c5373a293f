package project

import (
	"github.com/jonboulle/clockwork"

	"github.com/colabsync/colabsync/pkg/configuration"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/progress"
	"github.com/colabsync/colabsync/pkg/transport"
)

// Options are the parameters shared by outgoing and incoming project
// negotiations.
type Options struct {
	// Transport is the message transport.
	Transport transport.Transport
	// Peer is the remote peer.
	Peer string
	// Registry is the negotiation registry. It may be nil.
	Registry *negotiation.Registry
	// Configuration supplies timeouts and transfer parameters. If nil, the
	// default configuration is used.
	Configuration *configuration.Configuration
	// Logger is the parent logger.
	Logger *logging.Logger
	// Sink is the progress sink. It may be nil.
	Sink progress.Sink
	// Clock is the timing clock. It may be nil.
	Clock clockwork.Clock
	// TemporaryDirectory is the directory for temporary archives. If empty,
	// the system temporary directory is used.
	TemporaryDirectory string
}

// configuration returns the effective configuration.
func (o *Options) configuration() *configuration.Configuration {
	if o.Configuration == nil {
		return configuration.Default()
	}
	return o.Configuration
}

// stateOptions computes the negotiation state options.
func (o *Options) stateOptions(description string, logger *logging.Logger) negotiation.Options {
	return negotiation.Options{
		Description:  description,
		Logger:       logger,
		Sink:         o.Sink,
		Clock:        o.Clock,
		PollInterval: o.configuration().Negotiation.PollInterval,
		Registry:     o.Registry,
	}
}
