package orchestrator

import (
	"context"
	"fmt"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/engine"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

// RetryFailedGroups reads postID's Failed PostHistory rows, intersects their
// groups with what is currently deliverable, and spawns a fresh job scoped
// to just that subset (SPEC_FULL.md §12).
func (b *Broadcast) RetryFailedGroups(ctx context.Context, postID string) (*engine.Job, error) {
	p, err := b.repo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	a, err := b.repo.GetAd(ctx, p.AdID)
	if err != nil {
		return nil, err
	}
	t, err := b.repo.GetTenant(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}

	failed, err := b.repo.ListHistoryByPostAndStatus(ctx, postID, post.HistoryFailed)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, svcerr.NoDeliverableGroup(fmt.Sprintf("post %q has no failed groups to retry", postID))
	}

	bySession := make(map[string][]string) // sessionID -> groupIDs seen in failed history
	for _, h := range failed {
		bySession[h.SessionID] = append(bySession[h.SessionID], h.GroupID)
	}

	var connected []session.Session
	var groups []group.Group
	for sessionID, wantGroupIDs := range bySession {
		s, serr := b.repo.GetSession(ctx, sessionID)
		if serr != nil || !s.Usable() || !b.eng.EnsureConnected(ctx, s) {
			continue
		}
		connected = append(connected, s)

		want := make(map[string]struct{}, len(wantGroupIDs))
		for _, id := range wantGroupIDs {
			want[id] = struct{}{}
		}
		deliverable, derr := b.repo.ListDeliverableGroups(ctx, sessionID)
		if derr != nil {
			continue
		}
		for _, g := range deliverable {
			if _, ok := want[g.ID]; ok {
				groups = append(groups, g)
			}
		}
	}
	if len(connected) == 0 {
		return nil, svcerr.NoUsableSession(fmt.Sprintf("no previously-failed session for post %q is usable now", postID))
	}
	if len(groups) == 0 {
		return nil, svcerr.NoDeliverableGroup(fmt.Sprintf("none of post %q's failed groups are deliverable now", postID))
	}

	retryPost := post.Post{
		AdID:           a.ID,
		TenantID:       t.ID,
		PrimarySession: connected[0].ID,
		Status:         post.StatusInProgress,
		TotalGroups:    len(groups),
	}
	retryPost, err = b.repo.CreatePost(ctx, retryPost)
	if err != nil {
		return nil, err
	}

	job := b.eng.StartJob(ctx, t, a, retryPost, connected, groups)
	b.log.WithField("job_id", job.ID).WithField("original_post_id", postID).WithField("groups", len(groups)).
		Info("retry-failed-groups job started")
	return job, nil
}

// DeleteFromGroups walks postID's Sent PostHistory rows bearing a platform
// message id and best-effort deletes each message, logging (not retrying)
// failures — SPEC_FULL.md §12, consistent with spec.md's "exactly-once
// delivery... not guaranteed" non-goal.
func (b *Broadcast) DeleteFromGroups(ctx context.Context, postID string) (attempted, failed int, err error) {
	if _, err = b.repo.GetPost(ctx, postID); err != nil {
		return 0, 0, err
	}
	sent, err := b.repo.ListHistoryByPostAndStatus(ctx, postID, post.HistorySent)
	if err != nil {
		return 0, 0, err
	}

	for _, h := range sent {
		if h.MessageID == "" {
			continue
		}
		attempted++
		s, serr := b.repo.GetSession(ctx, h.SessionID)
		if serr != nil {
			failed++
			b.log.WithField("session_id", h.SessionID).WithError(serr).Warn("delete-from-groups: session lookup failed")
			continue
		}
		if !b.eng.EnsureConnected(ctx, s) {
			failed++
			continue
		}
		g, gerr := b.repo.GetGroup(ctx, h.GroupID)
		if gerr != nil {
			failed++
			continue
		}
		handle, ok := b.eng.Handle(h.SessionID)
		if !ok {
			failed++
			continue
		}
		if derr := b.client.DeleteMessage(ctx, handle, g.PlatformID, h.MessageID); derr != nil {
			failed++
			b.log.WithField("group_id", g.ID).WithField("message_id", h.MessageID).WithError(derr).
				Warn("delete-from-groups: best-effort delete failed")
		}
	}
	return attempted, failed, nil
}
