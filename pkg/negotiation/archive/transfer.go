package archive

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/filesystem"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/must"
	"github.com/colabsync/colabsync/pkg/negotiation"
	"github.com/colabsync/colabsync/pkg/resource"
	"github.com/colabsync/colabsync/pkg/stream"
	"github.com/colabsync/colabsync/pkg/transport"
)

const (
	// KindOffer is the message kind announcing an archive transfer.
	KindOffer transport.Kind = "archive.offer"
	// KindChunk is the message kind carrying archive data.
	KindChunk transport.Kind = "archive.chunk"
	// KindEnd is the message kind completing an archive transfer.
	KindEnd transport.Kind = "archive.end"
)

// DefaultChunkSize is the chunk size used if none is specified.
const DefaultChunkSize = 64 * 1024

// Offer is the payload announcing an archive transfer.
type Offer struct {
	// Size is the total archive size in bytes.
	Size int64
}

// Chunk is the payload carrying a piece of an archive.
type Chunk struct {
	// Index is the zero-based chunk index.
	Index int
	// Data is the chunk content.
	Data []byte
}

// Clone implements transport.Cloner.Clone.
func (c *Chunk) Clone() any {
	return &Chunk{Index: c.Index, Data: append([]byte(nil), c.Data...)}
}

// End is the payload completing an archive transfer.
type End struct {
	// Chunks is the number of chunks sent.
	Chunks int
	// Checksum is the checksum of the complete archive.
	Checksum uint32
}

// Coordinator transfers a single archive between peers on behalf of a
// negotiation. Each transfer is announced by an offer, carried by a sequence
// of chunks, and completed by an end message. Cancellation is checked before
// every chunk on both sides.
type Coordinator struct {
	// state is the negotiation state.
	state *negotiation.State
	// transport is the message transport.
	transport transport.Transport
	// peer is the remote peer.
	peer string
	// chunkSize is the chunk size.
	chunkSize int
	// timeout bounds each wait on the receiving side.
	timeout time.Duration
	// logger is the coordinator logger.
	logger *logging.Logger
}

// NewCoordinator creates a new transfer coordinator. If chunkSize is not
// positive, DefaultChunkSize is used.
func NewCoordinator(state *negotiation.State, via transport.Transport, peer string, chunkSize int, timeout time.Duration, logger *logging.Logger) *Coordinator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Coordinator{
		state:     state,
		transport: via,
		peer:      peer,
		chunkSize: chunkSize,
		timeout:   timeout,
		logger:    logger,
	}
}

// send transmits a transfer message to the peer.
func (c *Coordinator) send(kind transport.Kind, payload any) error {
	return c.transport.Send(&transport.Message{
		Kind:          kind,
		To:            c.peer,
		NegotiationID: c.state.ID(),
		Payload:       payload,
	})
}

// Send transmits the archive at the specified path. It returns the number of
// bytes sent.
func (c *Coordinator) Send(path string) (int64, error) {
	// Open the archive and determine its size.
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "unable to open archive")
	}
	defer must.Close(file, c.logger)
	info, err := file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "unable to query archive")
	}

	// Announce the transfer.
	if err := c.send(KindOffer, Offer{Size: info.Size()}); err != nil {
		return 0, errors.Wrap(err, "unable to send archive offer")
	}
	sink := c.state.Sink()
	sink.BeginTask("Sending archive", info.Size())

	// Set up the chunking pipeline. Each chunk is checked for cancellation
	// before being sent, and writes are preempted once cancellation occurs.
	var sent int64
	var index int
	chunker := stream.NewChunkWriter(c.chunkSize, func(data []byte) error {
		if err := c.state.Check(); err != nil {
			return err
		}
		if err := c.send(KindChunk, &Chunk{Index: index, Data: data}); err != nil {
			return errors.Wrap(err, "unable to send archive chunk")
		}
		c.logger.Tracef("Sent archive chunk %d (%d bytes)", index, len(data))
		index++
		sent += int64(len(data))
		sink.Worked(int64(len(data)))
		return nil
	})
	hasher := resource.NewHash()
	writer := stream.NewPreemptableWriter(
		io.MultiWriter(hasher, chunker),
		c.state.Canceled(),
		c.state.Check,
	)

	// Transmit the archive.
	if _, err := io.Copy(writer, file); err != nil {
		return sent, err
	}
	if err := chunker.Close(); err != nil {
		return sent, err
	}

	// Complete the transfer.
	if err := c.send(KindEnd, End{Chunks: chunker.Chunks(), Checksum: hasher.Sum32()}); err != nil {
		return sent, errors.Wrap(err, "unable to send archive end")
	}

	// Success.
	c.logger.Debugf("Sent archive of %d bytes in %d chunks", sent, chunker.Chunks())
	return sent, nil
}

// Subscribe creates a collector for inbound transfer messages. Receivers must
// subscribe before requesting an archive to avoid missing its offer.
func (c *Coordinator) Subscribe() *transport.Collector {
	id := c.state.ID()
	return c.transport.Subscribe(transport.MatchFrom(c.peer, func(message *transport.Message) bool {
		return message.NegotiationID == id &&
			(message.Kind == KindOffer || message.Kind == KindChunk || message.Kind == KindEnd)
	}))
}

// Receive receives an archive into a temporary file in the specified
// directory (or the system temporary directory if empty), returning its path
// and size. The caller is responsible for removing the file. On failure, the
// temporary file is removed before returning.
func (c *Coordinator) Receive(collector *transport.Collector, directory string) (path string, size int64, err error) {
	// Wait for the offer.
	message, err := c.state.Await(collector, c.timeout, true, "archive offer")
	if err != nil {
		return "", 0, err
	}
	offer, ok := message.Payload.(Offer)
	if message.Kind != KindOffer || !ok {
		return "", 0, errors.Errorf("unexpected %s message while awaiting archive offer", message.Kind)
	}

	// Create the temporary file and ensure its removal on failure.
	file, err := os.CreateTemp(directory, filesystem.TemporaryNamePrefix+"archive-")
	if err != nil {
		return "", 0, errors.Wrap(err, "unable to create temporary archive")
	}
	defer func() {
		must.Close(file, c.logger)
		if err != nil {
			must.OSRemove(file.Name(), c.logger)
		}
	}()

	// Receive chunks until the transfer completes.
	sink := c.state.Sink()
	sink.BeginTask("Receiving archive", offer.Size)
	hasher := resource.NewHash()
	writer := stream.NewAuditWriter(io.MultiWriter(file, hasher), sink.Worked)
	var index int
	for {
		message, err = c.state.Await(collector, c.timeout, true, fmt.Sprintf("archive chunk %d", index))
		if err != nil {
			return "", 0, err
		}
		switch payload := message.Payload.(type) {
		case *Chunk:
			if payload.Index != index {
				return "", 0, errors.Errorf("out-of-order archive chunk: expected %d, received %d", index, payload.Index)
			}
			n, err := writer.Write(payload.Data)
			size += int64(n)
			if err != nil {
				return "", 0, errors.Wrap(err, "unable to write archive chunk")
			}
			index++
		case End:
			if payload.Chunks != index {
				return "", 0, errors.Errorf("archive chunk count mismatch: expected %d, received %d", payload.Chunks, index)
			} else if size != offer.Size {
				return "", 0, errors.Errorf("archive size mismatch: expected %d, received %d", offer.Size, size)
			} else if hasher.Sum32() != payload.Checksum {
				return "", 0, errors.New("archive checksum mismatch")
			}
			c.logger.Debugf("Received archive of %d bytes in %d chunks", size, index)
			return file.Name(), size, nil
		default:
			return "", 0, errors.Errorf("unexpected %s message during archive transfer", message.Kind)
		}
	}
}
