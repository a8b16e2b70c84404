// Package ad holds the Ad entity: a tenant's advertisement content and
// scheduling/anti-spam knobs.
package ad

import "time"

// Status is the lifecycle state of an Ad.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusClosed   Status = "closed"
	StatusSoldOut  Status = "sold_out"
	StatusArchived Status = "archived"
)

// Ad is identified by ID and belongs to a Tenant.
type Ad struct {
	ID              string
	TenantID        string
	Content         string
	MediaRefs       []string
	Status          Status
	IsScheduled     bool
	ScheduledFor    time.Time
	LastScheduledAt time.Time
	LastError       string
	IntervalMin     time.Duration
	IntervalMax     time.Duration
	GroupInterval   time.Duration
	BrandAdText     string
	SelectedGroups  []string
	UsePriorityGrps bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Postable reports whether the Ad may be the subject of a running Post, per
// spec.md §3: only status=Active ads qualify.
func (a Ad) Postable() bool {
	return a.Status == StatusActive && a.Content != ""
}
