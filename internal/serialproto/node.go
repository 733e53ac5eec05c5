package serialproto

import (
	"github.com/Sleuek/kocherga/internal/hostio"
	"github.com/Sleuek/kocherga/internal/transport"
)

// Node is the serial transport.Node implementation: it owns a
// hostio.SerialPort, a receive-side Parser, and the single pending-request
// slot every transport must enforce so at most one locally-initiated
// request is outstanding at a time.
type Node struct {
	port   hostio.SerialPort
	local  transport.NodeID
	parser *Parser

	pending          bool
	pendingServiceID uint16
	pendingServer    transport.NodeID
	pendingXferID    uint64
}

// NewNode builds a serial transport bound to port, addressed as local, with
// a receive buffer sized to hold maxPayload application bytes.
func NewNode(port hostio.SerialPort, local transport.NodeID, maxPayload int) *Node {
	return &Node{port: port, local: local, parser: NewParser(maxPayload)}
}

// Poll drains every byte currently available from the port, feeding each
// into the parser; completed frames are delivered to sink. Responses that
// don't match the currently pending request are delivered anyway — the
// reactor decides relevance — except that receiving the matching response
// always clears the pending slot, exactly once.
func (n *Node) Poll(sink transport.TransferSink, uptimeMicros uint64) {
	for {
		b, ok := n.port.Receive()
		if !ok {
			return
		}
		xfer, complete := n.parser.Update(b)
		if !complete {
			continue
		}
		if n.pending && xfer.Spec.Kind == transport.KindResponse &&
			xfer.Spec.ID == n.pendingServiceID && xfer.Source == n.pendingServer &&
			xfer.TransferID == n.pendingXferID {
			n.pending = false
		}
		sink.Deliver(n, xfer)
	}
}

// SendRequest occupies the pending-request slot and streams the request
// frame. It refuses if a request is already outstanding.
func (n *Node) SendRequest(spec transport.DataSpecifier, server transport.NodeID, transferID uint64, payload []byte) bool {
	if n.pending {
		return false
	}
	if !n.emit(transport.PriorityNominal, server, spec, transferID, payload) {
		return false
	}
	n.pending = true
	n.pendingServiceID = spec.ID
	n.pendingServer = server
	n.pendingXferID = transferID
	return true
}

// SendResponse streams a reply frame without touching the pending-request
// slot, which is reserved for locally-initiated requests only.
func (n *Node) SendResponse(spec transport.DataSpecifier, destination transport.NodeID, transferID uint64, payload []byte) bool {
	return n.emit(transport.PriorityNominal, destination, spec, transferID, payload)
}

// CancelRequest clears the pending-request slot; any response that arrives
// afterwards for the old transfer id is simply not matched by Poll.
func (n *Node) CancelRequest() {
	n.pending = false
}

// PublishMessage streams a broadcast message frame.
func (n *Node) PublishMessage(subjectID uint16, transferID uint64, payload []byte) bool {
	return n.emit(transport.DefaultPriority, transport.AnonymousNodeID, transport.Message(subjectID), transferID, payload)
}

// LocalNodeID reports this node's configured address.
func (n *Node) LocalNodeID() transport.NodeID {
	return n.local
}

func (n *Node) emit(priority transport.Priority, destination transport.NodeID, spec transport.DataSpecifier, transferID uint64, payload []byte) bool {
	return Emit(n.port, transport.Transfer{
		Priority:    priority,
		Source:      n.local,
		Destination: destination,
		Spec:        spec,
		TransferID:  transferID,
		Payload:     payload,
	})
}
