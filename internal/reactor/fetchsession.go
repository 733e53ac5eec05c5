package reactor

import (
	"time"

	"github.com/Sleuek/kocherga/internal/transport"
)

// fetchSession tracks the in-progress image pull: which server hosts the
// file, the next read offset, and how many consecutive stalls have occurred
// in the current window. It is created on ExecuteCommand(BeginSoftwareUpdate)
// and destroyed on completion, abort, or timeout exhaustion.
type fetchSession struct {
	server   transport.NodeID
	path     string
	offset   uint64
	transfer uint64

	requestPending    bool
	pendingTransferID uint64
	requestSentAt     time.Duration
	stallCount        int
}

func newFetchSession(server transport.NodeID, path string) *fetchSession {
	return &fetchSession{server: server, path: path}
}

// stalled reports whether the outstanding request has sat unanswered longer
// than timeout, measured against the current uptime.
func (f *fetchSession) stalled(uptime, timeout time.Duration) bool {
	return f.requestPending && uptime-f.requestSentAt >= timeout
}

// recordStall cancels the pending request, bumps the stall counter and
// reports whether the session has exceeded its retry budget.
func (f *fetchSession) recordStall(maxRetries int) (exhausted bool) {
	f.requestPending = false
	f.stallCount++
	return f.stallCount > maxRetries
}

// recordSent marks transferID as the outstanding request's id, so a later
// response can be matched against it before being accepted.
func (f *fetchSession) recordSent(uptime time.Duration, transferID uint64) {
	f.requestPending = true
	f.pendingTransferID = transferID
	f.requestSentAt = uptime
	f.transfer++
}

// matchesPending reports whether transferID corresponds to the currently
// outstanding request. A response that fails this check is late, duplicate,
// or otherwise stale and must be dropped without side effects.
func (f *fetchSession) matchesPending(transferID uint64) bool {
	return f.requestPending && transferID == f.pendingTransferID
}

func (f *fetchSession) recordProgress(n int) {
	f.requestPending = false
	f.stallCount = 0
	f.offset += uint64(n)
}
