// Package post holds the persisted job record (Post) and its per-group
// delivery history (PostHistory). These are distinct from the in-memory Job
// the engine runs: Post is the durable envelope, Job is the live state.
package post

import "time"

// Status is the lifecycle state of a Post.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Post is the persisted envelope referencing an Ad and a primary Session.
type Post struct {
	ID              string
	AdID            string
	TenantID        string
	PrimarySession  string
	Status          Status
	UsePriorityGrps bool
	CompletedGroups int
	FailedGroups    int
	SkippedGroups   int
	TotalGroups     int
	ScheduledFor    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HistoryStatus is the outcome of one (Post, Group) delivery attempt.
type HistoryStatus string

const (
	HistorySent     HistoryStatus = "sent"
	HistoryFailed   HistoryStatus = "failed"
	HistorySkipped  HistoryStatus = "skipped"
	HistoryRetrying HistoryStatus = "retrying"
)

// History is one (Post, Group) attempt record.
type History struct {
	ID          string
	PostID      string
	GroupID     string
	SessionID   string
	Status      HistoryStatus
	SentAt      time.Time
	FailedAt    time.Time
	MessageID   string
	ErrorReason string
	CreatedAt   time.Time
}
