// Package group holds the Group entity: a chat the engine may deliver into,
// reachable through exactly one Session.
package group

import "time"

// Kind distinguishes the platform-native chat types.
type Kind string

const (
	KindGroup      Kind = "group"
	KindSupergroup Kind = "supergroup"
	KindChannel    Kind = "channel"
)

// Group is identified by ID and belongs to exactly one Session.
type Group struct {
	ID                string
	SessionID         string
	PlatformID        string
	Title             string
	Kind              Kind
	MemberCount       int
	IsActive          bool
	IsSkipped         bool
	SkipReason        string
	HasRestrictions   bool
	RestrictionUntil  time.Time
	IsPriority        bool
	PriorityOrder     int
	ActivityScore     float64
	LastPostAt        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Deliverable reports whether a Group may receive a send right now, per
// spec.md §3's invariant. sessionUsable must be supplied by the caller
// (the owning Session's Usable() plus its SessionClient being connected).
func (g Group) Deliverable(now time.Time, sessionUsable bool) bool {
	if !g.IsActive || g.IsSkipped {
		return false
	}
	if g.HasRestrictions && !g.RestrictionUntil.Before(now) {
		return false
	}
	return sessionUsable
}

// Snapshot is what a SessionClient.SyncGroups call returns for one chat the
// session is a member of, before it has been reconciled into a Group row.
type Snapshot struct {
	PlatformID  string
	Title       string
	Kind        Kind
	MemberCount int
	Username    string
}
