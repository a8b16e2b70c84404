package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/post"
)

// Status is a Job's lifecycle state (spec.md §4.2's state machine).
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

// LogEntry is one line of a Job's ring-buffer log.
type LogEntry struct {
	At        time.Time
	SessionID string
	GroupID   string
	Status    post.HistoryStatus
	Reason    string
}

// Stats is the user-visible snapshot spec.md §7 names: postedGroups,
// failedGroups, skippedGroups, successRate.
type Stats struct {
	PostedGroups  int
	FailedGroups  int
	SkippedGroups int
}

// SuccessRate returns postedGroups / (postedGroups + failedGroups +
// skippedGroups), or 0 if nothing has been attempted yet.
func (s Stats) SuccessRate() float64 {
	total := s.PostedGroups + s.FailedGroups + s.SkippedGroups
	if total == 0 {
		return 0
	}
	return float64(s.PostedGroups) / float64(total)
}

// Job is the in-memory, never-persisted runtime state of a running
// broadcast (spec.md §3). It is exclusively owned by the PostingEngine;
// control flags are the only fields controller goroutines write directly.
type Job struct {
	ID             string
	TenantID       string
	AdID           string
	PostID         string
	PrimarySession string
	StartedAt      time.Time
	EndedAt        time.Time

	stopRequested  int32 // accessed via atomic
	pauseRequested int32 // accessed via atomic

	mu              sync.Mutex
	status          Status
	roundsCompleted int
	stats           Stats
	log             []LogEntry
	maxLogCap       int
	trimTo          int
}

// newJob builds a Job in the Running state.
func newJob(id, tenantID, adID, postID, primarySession string, startedAt time.Time, cfg Config) *Job {
	return &Job{
		ID:             id,
		TenantID:       tenantID,
		AdID:           adID,
		PostID:         postID,
		PrimarySession: primarySession,
		StartedAt:      startedAt,
		status:         StatusRunning,
		maxLogCap:      cfg.MaxJobLogEntries,
		trimTo:         jobLogTrimTo,
	}
}

// LogCapacity returns the job's configured ring-buffer cap (cfg.MaxJobLogEntries
// at job start), so callers reading a job's log tail can bound a page size
// against what this specific job actually retains instead of a generic
// listing constant.
func (j *Job) LogCapacity() int { return j.maxLogCap }

// RequestStop sets the sticky stop flag; it is never cleared once set
// (spec.md §4.1: "Stop is sticky").
func (j *Job) RequestStop() { atomic.StoreInt32(&j.stopRequested, 1) }

// StopRequested reports whether RequestStop has been called.
func (j *Job) StopRequested() bool { return atomic.LoadInt32(&j.stopRequested) == 1 }

// RequestPause sets the pause flag.
func (j *Job) RequestPause() { atomic.StoreInt32(&j.pauseRequested, 1) }

// RequestResume clears the pause flag.
func (j *Job) RequestResume() { atomic.StoreInt32(&j.pauseRequested, 0) }

// PauseRequested reports whether the job is currently asked to pause.
func (j *Job) PauseRequested() bool { return atomic.LoadInt32(&j.pauseRequested) == 1 }

// Status returns the Job's current lifecycle status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	if s == StatusStopped || s == StatusCompleted {
		j.EndedAt = time.Now()
	}
	j.mu.Unlock()
}

// RoundsCompleted returns the number of fully completed rounds.
func (j *Job) RoundsCompleted() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.roundsCompleted
}

func (j *Job) incrementRound() {
	j.mu.Lock()
	j.roundsCompleted++
	j.mu.Unlock()
}

// Stats returns a snapshot of the Job's counters.
func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// Logs returns a snapshot of the Job's log ring buffer.
func (j *Job) Logs() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LogEntry, len(j.log))
	copy(out, j.log)
	return out
}

// appendLog is the single serialisation point for every driver's log
// writes: spec.md §5 requires appends be atomic and trim-to-last-300 be
// serialised with appends so len never observably exceeds 500.
func (j *Job) appendLog(entry LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.log = append(j.log, entry)
	switch entry.Status {
	case post.HistorySent:
		j.stats.PostedGroups++
	case post.HistoryFailed:
		j.stats.FailedGroups++
	case post.HistorySkipped:
		j.stats.SkippedGroups++
	}

	capLimit := j.maxLogCap
	if capLimit <= 0 {
		capLimit = jobLogTrimTo + 200
	}
	if len(j.log) > capLimit {
		trimTo := j.trimTo
		if trimTo <= 0 {
			trimTo = jobLogTrimTo
		}
		if trimTo > len(j.log) {
			trimTo = len(j.log)
		}
		j.log = append([]LogEntry(nil), j.log[len(j.log)-trimTo:]...)
	}
}
