package negotiation

import (
	"context"

	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/transport"
)

// KindCancelNotice is the message kind for cancellation notices.
const KindCancelNotice transport.Kind = "negotiation.cancel"

// CancelNotice is the payload of a cancellation notice. The negotiation
// identifier is carried in the message envelope.
type CancelNotice struct {
	// ErrorMessage is the error text, if the sender failed. It is empty for
	// plain cancellations.
	ErrorMessage string
}

// PeerNotifier creates a NotifyPeer hook that sends a cancellation notice for
// the specified negotiation to the peer. Send failures are logged, since
// notification is best-effort.
func PeerNotifier(via transport.Transport, peer, id string, logger *logging.Logger) func(*Cancellation) {
	return func(cause *Cancellation) {
		err := via.Send(&transport.Message{
			Kind:          KindCancelNotice,
			To:            peer,
			NegotiationID: id,
			Payload:       CancelNotice{ErrorMessage: cause.ErrorMessage},
		})
		if err != nil {
			logger.Warnf("Unable to notify peer of cancellation: %v", err)
		} else {
			logger.Debugf("Notified %s of cancellation", peer)
		}
	}
}

// SubscribeCancellations creates a collector for cancellation notices
// arriving at the transport.
func SubscribeCancellations(via transport.Transport) *transport.Collector {
	return via.Subscribe(transport.Match(KindCancelNotice, ""))
}

// ServeCancellations routes cancellation notices from the collector to the
// matching registered negotiations until the context is cancelled, closing
// the collector on return. Notices for unknown negotiations and duplicate
// notices are ignored.
func (r *Registry) ServeCancellations(ctx context.Context, collector *transport.Collector) error {
	defer collector.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-collector.Ready():
		}
		for {
			message, ok := collector.Poll()
			if !ok {
				break
			}
			r.HandleCancelNotice(message)
		}
	}
}

// HandleCancelNotice applies a single cancellation notice.
func (r *Registry) HandleCancelNotice(message *transport.Message) {
	// Extract the payload.
	notice, ok := message.Payload.(CancelNotice)
	if !ok {
		r.logger.Warnf("Received malformed cancellation notice from %s", message.From)
		return
	}

	// Look up the negotiation.
	negotiation, ok := r.Get(message.NegotiationID)
	if !ok {
		r.logger.Debugf("Ignoring cancellation notice for unknown negotiation %s", message.NegotiationID)
		return
	}

	// Record the remote cancellation.
	if !negotiation.RemoteCancel(notice.ErrorMessage) {
		r.logger.Debugf("Ignoring redundant cancellation notice for negotiation %s", message.NegotiationID)
	}
}
