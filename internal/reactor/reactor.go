package reactor

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Sleuek/kocherga/internal/transport"
	"github.com/Sleuek/kocherga/internal/writer"
)

// Identity is the platform-supplied hardware identity the reactor folds
// into every GetInfo response.
type Identity struct {
	HardwareVersionMajor uint8
	HardwareVersionMinor uint8
	UniqueID             [16]byte
	Name                 string
}

// Hooks lets the reactor report the events that only the state machine can
// act on, without the reactor importing internal/bootloader — the same
// decoupling internal/transport achieves with TransferSink.
type Hooks struct {
	// BeginUpdate is invoked when a remote ExecuteCommand(BeginSoftwareUpdate)
	// is accepted. The reactor has already reset its fetch session; the
	// caller is responsible for image-area invalidation before the first
	// byte lands.
	BeginUpdate func(server transport.NodeID, path string)

	// UpdateFinished is invoked at most once per fetch session, either after
	// the final short File.Read response (ok=true, the caller re-verifies
	// the image) or after a fatal write error or stall-retry exhaustion
	// (ok=false). A session dropped by EmergencyStop, CancelSession or a new
	// BeginSoftwareUpdate ends without it.
	UpdateFinished func(ok bool)

	// EmergencyStop, FactoryReset and Restart mirror the remaining
	// ExecuteCommand opcodes; the reactor only recognizes them, the state
	// machine decides what they mean for the current state.
	EmergencyStop func()
	FactoryReset  func()
	Restart       func()
	CancelBoot    func()

	// CurrentAppInfo supplies the GetInfo handler with the resident image's
	// descriptor, if any has been located and verified this boot.
	CurrentAppInfo func() (version [2]uint8, vcsRevision uint32, imageCRC uint64, ok bool)

	// NodeStatus supplies the values the 1 Hz heartbeat publishes.
	NodeStatus func() (mode, health uint8, vssc uint16)
}

// Config bundles the reactor's timing and sizing parameters; see
// internal/bootloader/config.go for the values a complete host harness uses.
type Config struct {
	StallTimeout    time.Duration
	MaxStallRetries int
	ReadRequestSize uint32
	HeartbeatPeriod time.Duration
}

// Reactor presents the node-protocol services (GetInfo, ExecuteCommand,
// File.Read), drives the image pull loop, and publishes the periodic node
// heartbeat. It implements transport.TransferSink so registered nodes can
// deliver completed transfers back into it during the same synchronous Poll
// call.
type Reactor struct {
	cfg      Config
	identity Identity
	hooks    Hooks
	writer   *writer.Writer

	nodes []transport.Node

	session          *fetchSession
	lastHeartbt      time.Duration
	heartbeatStarted bool
	heartbeatXferID  uint64
}

// New builds a Reactor. w is the image writer the pull loop feeds; the
// reactor writes received chunks to it and ends each image with EndWrite,
// while the caller starts each image with BeginWrite.
func New(cfg Config, identity Identity, hooks Hooks, w *writer.Writer) *Reactor {
	return &Reactor{cfg: cfg, identity: identity, hooks: hooks, writer: w}
}

// AddNode registers a transport for polling, service dispatch and heartbeat
// publication, in the order nodes are added — transport priority is the
// order they were added in.
func (r *Reactor) AddNode(n transport.Node) {
	r.nodes = append(r.nodes, n)
}

// BeginSession starts (or restarts) a pull from server:path at offset 0,
// bypassing the ExecuteCommand handshake — used when the state machine
// resumes an update from a volatile resume hint left by a prior reset.
func (r *Reactor) BeginSession(server transport.NodeID, path string) {
	r.session = newFetchSession(server, path)
}

// Active reports whether a pull loop is currently in flight.
func (r *Reactor) Active() bool {
	return r.session != nil
}

// CancelSession drops the current fetch session without reporting a
// finished outcome; the caller (state machine) already knows why.
func (r *Reactor) CancelSession() {
	r.session = nil
}

// Session reports the server and path the active fetch session is reading
// from, if any — used by the state machine to record a resume hint before
// requesting a reset.
func (r *Reactor) Session() (server transport.NodeID, path string, ok bool) {
	if r.session == nil {
		return 0, "", false
	}
	return r.session.server, r.session.path, true
}

// Poll drains every registered node, dispatches any transfers they deliver,
// advances the pull loop by at most one outstanding request, and publishes
// the heartbeat if its period has elapsed. uptime is microseconds since
// bootloader start, matching hostio.Clock.
func (r *Reactor) Poll(uptimeMicros uint64) {
	uptime := time.Duration(uptimeMicros) * time.Microsecond

	for _, n := range r.nodes {
		n.Poll(r, uptimeMicros)
	}

	if r.session != nil {
		r.pumpSession(uptime)
	}

	if r.cfg.HeartbeatPeriod > 0 && (!r.heartbeatStarted || uptime-r.lastHeartbt >= r.cfg.HeartbeatPeriod) {
		r.publishHeartbeat(uptime)
		r.lastHeartbt = uptime
		r.heartbeatStarted = true
	}
}

// Deliver implements transport.TransferSink. It is called synchronously
// from within a node's Poll, for every transfer that node's parser
// completed this round.
func (r *Reactor) Deliver(from transport.Node, t transport.Transfer) {
	switch {
	case t.Spec.Kind == transport.KindRequest && t.Spec.ID == ServiceGetInfo:
		r.handleGetInfo(from, t)
	case t.Spec.Kind == transport.KindRequest && t.Spec.ID == ServiceExecuteCommand:
		r.handleExecuteCommand(from, t)
	case t.Spec.Kind == transport.KindResponse && t.Spec.ID == ServiceFileRead:
		r.handleFileReadResponse(from, t)
	}
}

func (r *Reactor) handleGetInfo(from transport.Node, t transport.Transfer) {
	resp := getInfoResponse{
		HWVersionMajor: r.identity.HardwareVersionMajor,
		HWVersionMinor: r.identity.HardwareVersionMinor,
		UniqueID:       append([]byte(nil), r.identity.UniqueID[:]...),
		Name:           r.identity.Name,
	}
	if r.hooks.CurrentAppInfo != nil {
		if ver, vcs, crc, ok := r.hooks.CurrentAppInfo(); ok {
			resp.SWVersionMajor, resp.SWVersionMinor = ver[0], ver[1]
			resp.SWVCSRevision = vcs
			resp.SWImageCRC = crc
		}
	}
	from.SendResponse(transport.Response(ServiceGetInfo), t.Source, t.TransferID, marshal(resp))
}

func (r *Reactor) handleExecuteCommand(from transport.Node, t transport.Transfer) {
	var req executeCommandRequest
	status := CommandStatusSuccess
	if err := cbor.Unmarshal(t.Payload, &req); err != nil {
		status = CommandStatusBadCommand
	} else {
		switch req.Command {
		case CommandBeginSoftwareUpdate:
			r.session = newFetchSession(transport.NodeID(req.ServerNode), req.Path)
			if r.hooks.BeginUpdate != nil {
				r.hooks.BeginUpdate(transport.NodeID(req.ServerNode), req.Path)
			}
		case CommandEmergencyStop:
			r.session = nil
			if r.hooks.EmergencyStop != nil {
				r.hooks.EmergencyStop()
			}
		case CommandFactoryReset:
			if r.hooks.FactoryReset != nil {
				r.hooks.FactoryReset()
			}
		case CommandRestart:
			if r.hooks.Restart != nil {
				r.hooks.Restart()
			}
		case CommandCancelBoot:
			if r.hooks.CancelBoot != nil {
				r.hooks.CancelBoot()
			}
		default:
			status = CommandStatusBadCommand
		}
	}
	resp := executeCommandResponse{Status: status}
	from.SendResponse(transport.Response(ServiceExecuteCommand), t.Source, t.TransferID, marshal(resp))
}

func (r *Reactor) handleFileReadResponse(from transport.Node, t transport.Transfer) {
	if r.session == nil || t.Source != r.session.server {
		return
	}
	// A response only advances the session if it answers the request
	// currently outstanding. A late arrival after a stall-triggered
	// CancelRequest, or a duplicate, fails this check and is dropped with
	// no side effect on the writer or the read offset.
	if !r.session.matchesPending(t.TransferID) {
		return
	}
	var resp fileReadResponse
	if err := cbor.Unmarshal(t.Payload, &resp); err != nil {
		return
	}

	if err := r.writer.Write(resp.Data); err != nil {
		r.finishSession(false)
		return
	}
	r.session.recordProgress(len(resp.Data))

	if uint32(len(resp.Data)) < r.cfg.ReadRequestSize {
		r.finishSession(true)
	}
}

func (r *Reactor) pumpSession(uptime time.Duration) {
	s := r.session
	if s.stalled(uptime, r.cfg.StallTimeout) {
		for _, n := range r.nodes {
			n.CancelRequest()
		}
		if s.recordStall(r.cfg.MaxStallRetries) {
			r.finishSession(false)
			return
		}
	}
	if s.requestPending {
		return
	}

	server := s.server
	sentID := s.transfer
	req := fileReadRequest{Path: s.path, Offset: s.offset, Size: r.cfg.ReadRequestSize}
	payload := marshal(req)
	for _, n := range r.nodes {
		if n.SendRequest(transport.Request(ServiceFileRead), server, sentID, payload) {
			s.recordSent(uptime, sentID)
			return
		}
	}
}

// finishSession ends the active fetch session and reports the outcome
// through UpdateFinished. On success it flushes the writer's trailing
// partial block first; a flush failure downgrades the outcome to false so
// the caller never treats a partially-written image as complete.
func (r *Reactor) finishSession(ok bool) {
	r.session = nil
	if ok {
		if _, err := r.writer.EndWrite(); err != nil {
			ok = false
		}
	}
	if r.hooks.UpdateFinished != nil {
		r.hooks.UpdateFinished(ok)
	}
}

func (r *Reactor) publishHeartbeat(uptime time.Duration) {
	mode, health := ModeInitialization, HealthOk
	var vssc uint16
	if r.hooks.NodeStatus != nil {
		mode, health, vssc = r.hooks.NodeStatus()
	}
	payload := marshal(heartbeatPayload{
		UptimeSec: uint32(uptime / time.Second),
		Health:    health,
		Mode:      mode,
		VSSC:      vssc,
	})
	for _, n := range r.nodes {
		n.PublishMessage(HeartbeatSubjectID, r.heartbeatXferID, payload)
	}
	r.heartbeatXferID++
}
