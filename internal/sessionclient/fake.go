package sessionclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/session"
)

type fakeHandle struct {
	sessionID string
}

func (h fakeHandle) SessionID() string { return h.sessionID }

// Script describes one scripted Send outcome for a given (sessionID,
// platformGroupID) pair, consumed once then falling back to success.
type Script struct {
	Err error // nil means success
}

// Fake is a scriptable SessionClient for deterministic scenario tests
// (spec.md §8 S1-S6), grounded on the teacher's stub-dispatcher test style
// (internal/app/services/automation/scheduler_test.go's counting stub).
type Fake struct {
	mu sync.Mutex

	connected map[string]bool             // sessionID -> connected
	scripts   map[string][]Script         // key "sessionID/groupID" -> queued outcomes
	snapshots map[string][]group.Snapshot // sessionID -> SyncGroups result
	sendCalls []SendCall
	connErr   map[string]error // sessionID -> Connect error
}

// SendCall records one Send invocation for assertions.
type SendCall struct {
	SessionID       string
	PlatformGroupID string
	Text            string
}

// NewFake builds an empty Fake; all sessions connect successfully and all
// sends succeed unless scripted otherwise.
func NewFake() *Fake {
	return &Fake{
		connected: make(map[string]bool),
		scripts:   make(map[string][]Script),
		snapshots: make(map[string][]group.Snapshot),
		connErr:   make(map[string]error),
	}
}

func scriptKey(sessionID, groupID string) string { return sessionID + "/" + groupID }

// ScriptSend queues outcomes (in order) for Send calls targeting
// (sessionID, platformGroupID); each is consumed once, then Send succeeds.
func (f *Fake) ScriptSend(sessionID, platformGroupID string, outcomes ...Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scriptKey(sessionID, platformGroupID)
	f.scripts[key] = append(f.scripts[key], outcomes...)
}

// ScriptConnectError makes Connect fail for sessionID with err.
func (f *Fake) ScriptConnectError(sessionID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connErr[sessionID] = err
}

// SetSnapshots seeds what SyncGroups returns for a session.
func (f *Fake) SetSnapshots(sessionID string, snaps []group.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[sessionID] = snaps
}

// SendCalls returns every Send call observed so far, in order.
func (f *Fake) SendCalls() []SendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SendCall, len(f.sendCalls))
	copy(out, f.sendCalls)
	return out
}

func (f *Fake) Connect(_ context.Context, s session.Session) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.connErr[s.ID]; ok && err != nil {
		return nil, err
	}
	f.connected[s.ID] = true
	return fakeHandle{sessionID: s.ID}, nil
}

func (f *Fake) Disconnect(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, h.SessionID())
	return nil
}

func (f *Fake) SyncGroups(_ context.Context, h Handle) ([]group.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[h.SessionID()], nil
}

func (f *Fake) Send(_ context.Context, h Handle, platformGroupID, text string) (SendResult, error) {
	f.mu.Lock()
	key := scriptKey(h.SessionID(), platformGroupID)
	f.sendCalls = append(f.sendCalls, SendCall{SessionID: h.SessionID(), PlatformGroupID: platformGroupID, Text: text})
	var next *Script
	if queue := f.scripts[key]; len(queue) > 0 {
		s := queue[0]
		next = &s
		f.scripts[key] = queue[1:]
	}
	f.mu.Unlock()

	if next != nil && next.Err != nil {
		return SendResult{}, next.Err
	}
	return SendResult{MessageID: fmt.Sprintf("msg-%s-%s", h.SessionID(), platformGroupID)}, nil
}

// DeleteMessage always succeeds for the fake; scenario tests that need a
// DeleteMessage failure should wrap Fake or check SendCalls separately.
func (f *Fake) DeleteMessage(_ context.Context, _ Handle, _, _ string) error {
	return nil
}

func (f *Fake) IsConnected(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[h.SessionID()]
}
