// Package transport defines the capability set every pluggable transport
// implements and the Transfer/DataSpecifier vocabulary nodes exchange. There
// is deliberately no dependency on the reactor here: a node is driven by the
// reactor and calls back into it through the TransferSink interface during
// the same synchronous Poll, avoiding any import cycle.
package transport

// NodeID addresses a participant. AnonymousNodeID means "no local address
// yet" as a source, or "broadcast" as a destination.
type NodeID uint16

// AnonymousNodeID is the reserved "no address" value.
const AnonymousNodeID NodeID = 0xFFFF

// Priority orders transfers; 0 is highest, 7 is lowest/default.
type Priority uint8

const (
	PriorityExceptional Priority = 0
	PriorityImmediate   Priority = 1
	PriorityFast        Priority = 2
	PriorityHigh        Priority = 3
	PriorityNominal     Priority = 4
	PriorityLow         Priority = 5
	PrioritySlow        Priority = 6
	PriorityOptional    Priority = 7

	DefaultPriority Priority = PriorityOptional
)

// Kind tags what a DataSpecifier's ID field means.
type Kind int

const (
	KindMessage Kind = iota
	KindRequest
	KindResponse
)

// DataSpecifier names either a subject (pub/sub) or a service request/response.
type DataSpecifier struct {
	Kind Kind
	ID   uint16 // subject id, or service id
}

// Message builds a subject DataSpecifier.
func Message(subjectID uint16) DataSpecifier {
	return DataSpecifier{Kind: KindMessage, ID: subjectID}
}

// Request builds a service-request DataSpecifier.
func Request(serviceID uint16) DataSpecifier {
	return DataSpecifier{Kind: KindRequest, ID: serviceID}
}

// Response builds a service-response DataSpecifier.
func Response(serviceID uint16) DataSpecifier {
	return DataSpecifier{Kind: KindResponse, ID: serviceID}
}

// Transfer is one logical message exchanged between two nodes.
type Transfer struct {
	Priority    Priority
	Source      NodeID
	Destination NodeID
	Spec        DataSpecifier
	TransferID  uint64
	Payload     []byte
}

// TransferSink receives transfers a Node completes parsing during Poll. The
// reactor implements this; a transport never needs to know about the
// reactor's other responsibilities.
type TransferSink interface {
	Deliver(from Node, t Transfer)
}

// Node is the capability set every transport implementation exposes. A node
// holds at most one outstanding request at a time; the reactor is
// responsible for upholding that by never calling SendRequest again before
// a response, cancellation, or timeout clears the slot.
type Node interface {
	// Poll drains inbound bytes, delivers any completed transfers to sink,
	// and flushes pending outbound frames. It never blocks.
	Poll(sink TransferSink, uptimeMicros uint64)

	// SendRequest records a single pending request and attempts to send it.
	// It returns false if the node already has a pending request or the
	// underlying medium refused the send.
	SendRequest(spec DataSpecifier, server NodeID, transferID uint64, payload []byte) bool

	// SendResponse emits a reply to a service request the reactor already
	// received. It is reactive, not session-initiating, so — unlike
	// SendRequest — it never touches the node's single-pending-request
	// slot; a GetInfo or ExecuteCommand reply must never block or be
	// blocked by an in-flight File.Read request. It returns false only if
	// the underlying medium refuses the send.
	SendResponse(spec DataSpecifier, destination NodeID, transferID uint64, payload []byte) bool

	// CancelRequest clears the pending-request slot; a response that
	// arrives afterwards is ignored.
	CancelRequest()

	// PublishMessage attempts to emit a message transfer; it returns false
	// if the underlying medium refused the send.
	PublishMessage(subjectID uint16, transferID uint64, payload []byte) bool

	// LocalNodeID reports this node's local address, or AnonymousNodeID if
	// it has not yet acquired one.
	LocalNodeID() NodeID
}
