// Package sessionclient is the sole dependency on the messaging platform
// (spec.md §6). It defines the Handle/SessionClient contract, the send-error
// taxonomy, and a connection-attempt-throttled wrapper. The engine never
// talks to the platform directly — it only ever sees this interface.
package sessionclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/session"
)

// Handle is an opaque connected-session reference returned by Connect.
type Handle interface {
	SessionID() string
}

// SendResult carries the platform message ID when a Send succeeds.
type SendResult struct {
	MessageID string
}

// SessionClient is the sole dependency on the messaging platform (spec.md
// §6). Implementations impersonate the session's end-user account.
type SessionClient interface {
	Connect(ctx context.Context, s session.Session) (Handle, error)
	Disconnect(ctx context.Context, h Handle) error
	SyncGroups(ctx context.Context, h Handle) ([]group.Snapshot, error)
	Send(ctx context.Context, h Handle, platformGroupID, text string) (SendResult, error)
	// DeleteMessage removes a previously sent message, best-effort. Callers
	// must not retry on failure (SPEC_FULL.md §12's DeleteFromGroups).
	DeleteMessage(ctx context.Context, h Handle, platformGroupID, messageID string) error
	IsConnected(h Handle) bool
}

// SendError is the structured error Send/Connect return; ErrorClassifier
// switches on Kind to decide side effects (spec.md §7).
type SendError struct {
	Kind ErrKind
	// WaitSeconds is set for FloodWait/SlowmodeWait.
	WaitSeconds int
	// Raw is the underlying platform error, kept for logging only.
	Raw error
}

func (e *SendError) Error() string {
	if e.WaitSeconds > 0 {
		return fmt.Sprintf("sessionclient: %s(%ds): %v", e.Kind, e.WaitSeconds, e.Raw)
	}
	return fmt.Sprintf("sessionclient: %s: %v", e.Kind, e.Raw)
}

func (e *SendError) Unwrap() error { return e.Raw }

// ErrKind is the platform-independent error taxonomy of spec.md §7.
type ErrKind string

const (
	KindFloodWait      ErrKind = "FLOOD_WAIT"
	KindSlowmodeWait   ErrKind = "SLOWMODE_WAIT"
	KindWriteForbidden ErrKind = "WRITE_FORBIDDEN"
	KindChatRestricted ErrKind = "CHAT_RESTRICTED"
	KindAuthRevoked    ErrKind = "AUTH_REVOKED"
	KindPremiumReq     ErrKind = "PREMIUM_REQUIRED"
	KindTransient      ErrKind = "TRANSIENT"
)

// FloodWait builds a FloodWait(n) error: the platform asks the caller to
// wait n seconds before sending on this session again.
func FloodWait(seconds int, raw error) *SendError {
	return &SendError{Kind: KindFloodWait, WaitSeconds: seconds, Raw: raw}
}

// SlowmodeWait builds a SlowmodeWait(n) error: a per-group throttle.
func SlowmodeWait(seconds int, raw error) *SendError {
	return &SendError{Kind: KindSlowmodeWait, WaitSeconds: seconds, Raw: raw}
}

func WriteForbidden(raw error) *SendError { return &SendError{Kind: KindWriteForbidden, Raw: raw} }
func ChatRestricted(raw error) *SendError { return &SendError{Kind: KindChatRestricted, Raw: raw} }
func AuthRevoked(raw error) *SendError    { return &SendError{Kind: KindAuthRevoked, Raw: raw} }
func PremiumRequired(raw error) *SendError {
	return &SendError{Kind: KindPremiumReq, Raw: raw}
}
func Transient(raw error) *SendError { return &SendError{Kind: KindTransient, Raw: raw} }

// AsSendError unwraps err into a *SendError, synthesizing a Transient
// wrapper for anything the caller (a real platform SDK) didn't classify.
func AsSendError(err error) *SendError {
	if err == nil {
		return nil
	}
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return Transient(err)
}
