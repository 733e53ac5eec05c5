package serialproto

import (
	"testing"

	"github.com/Sleuek/kocherga/internal/transport"
)

// loopbackPort is a hostio.SerialPort backed by two byte queues, letting a
// test wire two Nodes directly together without a real UART.
type loopbackPort struct {
	in  []byte
	out *loopbackPort // the peer's inbox this port's Send writes into
}

func (p *loopbackPort) Receive() (byte, bool) {
	if len(p.in) == 0 {
		return 0, false
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, true
}

func (p *loopbackPort) Send(b byte) bool {
	p.out.in = append(p.out.in, b)
	return true
}

func newLoopback() (a, b *loopbackPort) {
	a, b = &loopbackPort{}, &loopbackPort{}
	a.out, b.out = b, a
	return a, b
}

type recordingSink struct{ got []transport.Transfer }

func (r *recordingSink) Deliver(from transport.Node, t transport.Transfer) {
	r.got = append(r.got, t)
}

func TestNodeSendRequestRoundTripsToPeer(t *testing.T) {
	portA, portB := newLoopback()
	client := NewNode(portA, transport.NodeID(1), 64)
	server := NewNode(portB, transport.NodeID(2), 64)

	if !client.SendRequest(transport.Request(1), 2, 10, []byte("hi")) {
		t.Fatal("SendRequest refused")
	}

	sink := &recordingSink{}
	server.Poll(sink, 0)
	if len(sink.got) != 1 {
		t.Fatalf("server received %d transfers, want 1", len(sink.got))
	}
	got := sink.got[0]
	if got.Source != 1 || got.Spec.Kind != transport.KindRequest || string(got.Payload) != "hi" {
		t.Fatalf("unexpected transfer: %+v", got)
	}
}

func TestNodeSendRequestRefusesWhilePending(t *testing.T) {
	portA, _ := newLoopback()
	n := NewNode(portA, transport.NodeID(1), 64)

	if !n.SendRequest(transport.Request(1), 2, 1, nil) {
		t.Fatal("first SendRequest should succeed")
	}
	if n.SendRequest(transport.Request(1), 2, 2, nil) {
		t.Fatal("second SendRequest should be refused while one is pending")
	}
	n.CancelRequest()
	if !n.SendRequest(transport.Request(1), 2, 3, nil) {
		t.Fatal("SendRequest should succeed again after CancelRequest")
	}
}

func TestNodeSendResponseNeverBlocksOnPendingRequest(t *testing.T) {
	portA, portB := newLoopback()
	client := NewNode(portA, transport.NodeID(1), 64)
	server := NewNode(portB, transport.NodeID(2), 64)

	if !client.SendRequest(transport.Request(1), 2, 1, []byte("req")) {
		t.Fatal("SendRequest should succeed")
	}
	// A response from the same node must not be refused by the
	// already-pending request slot.
	if !client.SendResponse(transport.Response(2), 2, 1, []byte("resp")) {
		t.Fatal("SendResponse must not be gated by the pending-request slot")
	}

	sink := &recordingSink{}
	server.Poll(sink, 0)
	if len(sink.got) != 2 {
		t.Fatalf("server received %d transfers, want 2", len(sink.got))
	}
}

func TestNodePollClearsPendingOnMatchingResponse(t *testing.T) {
	portA, portB := newLoopback()
	client := NewNode(portA, transport.NodeID(1), 64)
	server := NewNode(portB, transport.NodeID(2), 64)

	client.SendRequest(transport.Request(1), 2, 7, []byte("req"))
	sink := &recordingSink{}
	server.Poll(sink, 0)

	server.SendResponse(transport.Response(1), 1, 7, []byte("resp"))
	clientSink := &recordingSink{}
	client.Poll(clientSink, 0)

	if client.pending {
		t.Fatal("pending slot should be cleared once the matching response arrives")
	}
	if !client.SendRequest(transport.Request(1), 2, 8, nil) {
		t.Fatal("a new SendRequest should now succeed")
	}
}

func TestNodePublishMessage(t *testing.T) {
	portA, portB := newLoopback()
	client := NewNode(portA, transport.NodeID(1), 64)
	server := NewNode(portB, transport.NodeID(2), 64)

	if !client.PublishMessage(341, 3, []byte("hb")) {
		t.Fatal("PublishMessage should succeed")
	}
	sink := &recordingSink{}
	server.Poll(sink, 0)
	if len(sink.got) != 1 || sink.got[0].Spec.Kind != transport.KindMessage || sink.got[0].Spec.ID != 341 {
		t.Fatalf("unexpected delivered message: %+v", sink.got)
	}
}

func TestNodeLocalNodeID(t *testing.T) {
	portA, _ := newLoopback()
	n := NewNode(portA, transport.NodeID(5), 64)
	if n.LocalNodeID() != 5 {
		t.Errorf("LocalNodeID = %d, want 5", n.LocalNodeID())
	}
}
