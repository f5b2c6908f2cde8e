package transport

import (
	"context"
	"errors"

	"github.com/covops/capturenet/protocol"
)

// ID names one participant on a bus. The coordinator is always ID 0 and
// sites occupy 1..N, mirroring their protocol.SiteID.
type ID int

// CoordinatorID is the bus address of the coordinator process.
const CoordinatorID ID = 0

// SiteAddr returns the bus address of a site.
func SiteAddr(id protocol.SiteID) ID { return ID(id) }

var (
	// ErrUnknownParticipant is returned for sends addressed outside the
	// bus's participant range.
	ErrUnknownParticipant = errors.New("transport: unknown participant")

	// ErrClosed is returned once a bus has been shut down.
	ErrClosed = errors.New("transport: bus closed")
)

// Bus is the only layer permitted to move state between participants.
// The protocol processes never share memory; identical views of the
// capture order and the fragment sets are established purely through
// these primitives.
//
// Messages between a fixed (sender, receiver, tag) triple are delivered
// in send order. No ordering is guaranteed, or may be assumed, across
// different tags.
type Bus interface {
	// Broadcast delivers msg to every participant except the sender,
	// under the control tag.
	Broadcast(ctx context.Context, from ID, msg protocol.Message) error

	// Send delivers msg to the participant addressed by to, under the
	// given tag.
	Send(ctx context.Context, to ID, tag protocol.Tag, msg protocol.Message) error

	// Receive blocks until a message tagged tag arrives for self, or the
	// context ends.
	Receive(ctx context.Context, self ID, tag protocol.Tag) (protocol.Message, error)

	// Barrier blocks until every participant has called Barrier for the
	// current synchronization point.
	Barrier(ctx context.Context) error
}
