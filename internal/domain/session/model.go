// Package session holds the Session entity: a long-lived authenticated
// connection to the messaging platform, impersonating one tenant-owned
// end-user account.
package session

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusFrozen   Status = "frozen"
	StatusBanned   Status = "banned"
	StatusDeleted  Status = "deleted"
)

// Session is identified by ID and belongs to exactly one Tenant.
type Session struct {
	ID            string
	TenantID      string
	Name          string
	Phone         string
	SessionString string
	Status        Status
	IsFrozen      bool
	FrozenAt      time.Time
	UnfreezeAt    time.Time
	FreezeCount   int
	LastSyncAt    time.Time
	TotalGroups   int
	ActiveGroups  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Usable reports whether the session may be used for sending, per spec.md
// §3's invariant: status=Active, not frozen, credential present. Whether its
// SessionClient is connected is checked separately by the caller, since that
// is runtime state this entity does not carry.
func (s Session) Usable() bool {
	return s.Status == StatusActive && !s.IsFrozen && s.SessionString != ""
}
