package protocol

import (
	"encoding/json"
	"io"
)

// Kind identifies a message variant on the wire. Together with a step
// number it forms the Tag a message is addressed under, so exchanges
// belonging to different steps can never be confused.
type Kind string

const (
	// KindControl carries capture-order, capture-step, terminate and
	// abort announcements from the coordinator. Control messages share
	// one tag per receiver; delivery order between a fixed sender and
	// receiver is FIFO, which totally orders them.
	KindControl Kind = "control"

	// KindOffer carries a newly captured site's fragment to the
	// coordinator. Tagged by capture step.
	KindOffer Kind = "offer"

	// KindRelay carries the newly collected fragment from the
	// coordinator to an already-captured site. Tagged by capture step.
	KindRelay Kind = "relay"

	// KindComplement carries the union of previously collected fragments
	// from the coordinator to the newly captured site. Tagged by step.
	KindComplement Kind = "complement"

	// KindReport carries a site's final fragment inventory back to the
	// coordinator during validation.
	KindReport Kind = "report"
)

// Tag addresses a point-to-point exchange. Step is zero for kinds that
// are not step-scoped.
type Tag struct {
	Kind Kind
	Step int
}

// ControlTag is the tag every participant receives coordinator
// announcements under.
var ControlTag = Tag{Kind: KindControl}

// Message is the closed set of protocol message variants. Components
// dispatch on the concrete type, never on raw tag values.
type Message interface {
	MessageKind() Kind
}

// CaptureOrderMsg distributes the capture order to every site before the
// first step. All sites must hold an identical copy.
type CaptureOrderMsg struct {
	Order CaptureOrder `json:"order"`
}

// CaptureStepMsg announces that the named site is captured at the given
// step. Every site receives it so the whole run advances in lockstep.
type CaptureStepMsg struct {
	Step int    `json:"step"`
	Site SiteID `json:"site"`
}

// FragmentOfferMsg is the captured site's contribution for its step.
type FragmentOfferMsg struct {
	Site     SiteID   `json:"site"`
	Step     int      `json:"step"`
	Fragment Fragment `json:"fragment"`
}

// FragmentRelayMsg forwards the fragment collected at a step to a site
// captured earlier.
type FragmentRelayMsg struct {
	Origin   SiteID   `json:"origin"`
	Step     int      `json:"step"`
	Fragment Fragment `json:"fragment"`
}

// ComplementMsg pushes everything the captured set already holds to the
// site captured at this step, bringing it level with its peers.
type ComplementMsg struct {
	Step      int                 `json:"step"`
	Fragments map[SiteID]Fragment `json:"fragments"`
}

// FragmentReportMsg is a site's answer to the terminate announcement:
// its identity, its fragment count and the full inventory for
// diagnostics.
type FragmentReportMsg struct {
	Site      SiteID              `json:"site"`
	Count     int                 `json:"count"`
	Fragments map[SiteID]Fragment `json:"fragments"`
}

// TerminateMsg tells a site the protocol is over and it should report
// and exit. It replaces the out-of-band step sentinel of the historical
// implementation.
type TerminateMsg struct{}

// AbortMsg tears the run down after a coordinator-detected failure so no
// site is left blocked forever.
type AbortMsg struct {
	Reason string `json:"reason"`
}

func (CaptureOrderMsg) MessageKind() Kind   { return KindControl }
func (CaptureStepMsg) MessageKind() Kind    { return KindControl }
func (TerminateMsg) MessageKind() Kind      { return KindControl }
func (AbortMsg) MessageKind() Kind          { return KindControl }
func (FragmentOfferMsg) MessageKind() Kind  { return KindOffer }
func (FragmentRelayMsg) MessageKind() Kind  { return KindRelay }
func (ComplementMsg) MessageKind() Kind     { return KindComplement }
func (FragmentReportMsg) MessageKind() Kind { return KindReport }

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}
