package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

const postColumns = `id, ad_id, tenant_id, primary_session, status, use_priority_grps, completed_groups, failed_groups, skipped_groups, total_groups, scheduled_for, created_at, updated_at`

func scanPost(scanner interface {
	Scan(dest ...interface{}) error
}) (post.Post, error) {
	var p post.Post
	var scheduledFor sql.NullTime
	err := scanner.Scan(&p.ID, &p.AdID, &p.TenantID, &p.PrimarySession, &p.Status, &p.UsePriorityGrps,
		&p.CompletedGroups, &p.FailedGroups, &p.SkippedGroups, &p.TotalGroups, &scheduledFor, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return post.Post{}, err
	}
	p.ScheduledFor = scheduledFor.Time
	return p, nil
}

func (s *Store) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, ad_id, tenant_id, primary_session, status, use_priority_grps, completed_groups, failed_groups, skipped_groups, total_groups, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.AdID, p.TenantID, p.PrimarySession, p.Status, p.UsePriorityGrps, p.CompletedGroups,
		p.FailedGroups, p.SkippedGroups, p.TotalGroups, toNullTime(p.ScheduledFor), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return post.Post{}, err
	}
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, p post.Post) (post.Post, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET
			status = $2, completed_groups = $3, failed_groups = $4, skipped_groups = $5,
			total_groups = $6, scheduled_for = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Status, p.CompletedGroups, p.FailedGroups, p.SkippedGroups, p.TotalGroups,
		toNullTime(p.ScheduledFor), p.UpdatedAt)
	if err != nil {
		return post.Post{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return post.Post{}, svcerr.NotFound("post", p.ID)
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (post.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return post.Post{}, svcerr.NotFound("post", id)
	}
	return p, err
}

func (s *Store) ListPostsByTenant(ctx context.Context, tenantID string) ([]post.Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []post.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- PostHistoryStore ---

const historyColumns = `id, post_id, group_id, session_id, status, sent_at, failed_at, message_id, error_reason, created_at`

func scanHistory(scanner interface {
	Scan(dest ...interface{}) error
}) (post.History, error) {
	var h post.History
	var sentAt, failedAt sql.NullTime
	var messageID, errorReason sql.NullString
	err := scanner.Scan(&h.ID, &h.PostID, &h.GroupID, &h.SessionID, &h.Status, &sentAt, &failedAt, &messageID, &errorReason, &h.CreatedAt)
	if err != nil {
		return post.History{}, err
	}
	h.SentAt = sentAt.Time
	h.FailedAt = failedAt.Time
	h.MessageID = messageID.String
	h.ErrorReason = errorReason.String
	return h, nil
}

func (s *Store) RecordHistory(ctx context.Context, h post.History) (post.History, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_history (id, post_id, group_id, session_id, status, sent_at, failed_at, message_id, error_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, h.ID, h.PostID, h.GroupID, h.SessionID, h.Status, toNullTime(h.SentAt), toNullTime(h.FailedAt),
		toNullString(h.MessageID), toNullString(h.ErrorReason), h.CreatedAt)
	if err != nil {
		return post.History{}, err
	}
	return h, nil
}

func (s *Store) ListHistoryByPost(ctx context.Context, postID string) ([]post.History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+historyColumns+` FROM post_history WHERE post_id = $1 ORDER BY created_at`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []post.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) ListHistoryByPostAndStatus(ctx context.Context, postID string, status post.HistoryStatus) ([]post.History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM post_history WHERE post_id = $1 AND status = $2 ORDER BY created_at
	`, postID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []post.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
