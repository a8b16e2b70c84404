package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

const groupColumns = `id, session_id, platform_id, title, kind, member_count, is_active, is_skipped, skip_reason, has_restrictions, restriction_until, is_priority, priority_order, activity_score, last_post_at, created_at, updated_at`

func scanGroup(scanner interface {
	Scan(dest ...interface{}) error
}) (group.Group, error) {
	var g group.Group
	var restrictionUntil, lastPostAt sql.NullTime
	err := scanner.Scan(&g.ID, &g.SessionID, &g.PlatformID, &g.Title, &g.Kind, &g.MemberCount,
		&g.IsActive, &g.IsSkipped, &g.SkipReason, &g.HasRestrictions, &restrictionUntil,
		&g.IsPriority, &g.PriorityOrder, &g.ActivityScore, &lastPostAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return group.Group{}, err
	}
	g.RestrictionUntil = restrictionUntil.Time
	g.LastPostAt = lastPostAt.Time
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return group.Group{}, svcerr.NotFound("group", id)
	}
	return g, err
}

// ListDeliverableGroups applies spec.md §3's Deliverable invariant in SQL,
// joining against the owning session's usability.
func (s *Store) ListDeliverableGroups(ctx context.Context, sessionID string) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.`+groupColumns+`
		FROM groups g
		JOIN sessions sess ON sess.id = g.session_id
		WHERE g.session_id = $1
			AND g.is_active = true AND g.is_skipped = false
			AND (g.has_restrictions = false OR g.restriction_until < now())
			AND sess.status = 'active' AND sess.is_frozen = false AND sess.session_string <> ''
		ORDER BY g.is_priority DESC, g.priority_order ASC, g.id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) ListGroupsBySession(ctx context.Context, sessionID string) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) UpdateGroup(ctx context.Context, g group.Group) (group.Group, error) {
	g.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE groups SET
			title = $2, kind = $3, member_count = $4, is_active = $5, is_skipped = $6, skip_reason = $7,
			has_restrictions = $8, restriction_until = $9, is_priority = $10, priority_order = $11,
			activity_score = $12, last_post_at = $13, updated_at = $14
		WHERE id = $1
	`, g.ID, g.Title, g.Kind, g.MemberCount, g.IsActive, g.IsSkipped, g.SkipReason,
		g.HasRestrictions, toNullTime(g.RestrictionUntil), g.IsPriority, g.PriorityOrder,
		g.ActivityScore, toNullTime(g.LastPostAt), g.UpdatedAt)
	if err != nil {
		return group.Group{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return group.Group{}, svcerr.NotFound("group", g.ID)
	}
	return g, nil
}

// BatchAddGroups inserts snapshots for a session in a single transaction,
// relying on a unique (session_id, platform_id) index and ON CONFLICT DO
// NOTHING so a re-sync of groups the session already has is idempotent.
func (s *Store) BatchAddGroups(ctx context.Context, sessionID string, snapshots []group.Snapshot) ([]group.Group, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO groups (id, session_id, platform_id, title, kind, member_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
		ON CONFLICT (session_id, platform_id) DO NOTHING
		RETURNING `+groupColumns)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var created []group.Group
	for _, snap := range snapshots {
		row := stmt.QueryRowContext(ctx, uuid.NewString(), sessionID, snap.PlatformID, snap.Title, snap.Kind, snap.MemberCount, now)
		g, err := scanGroup(row)
		if err == sql.ErrNoRows {
			continue // duplicate (session_id, platform_id); already present
		}
		if err != nil {
			return nil, err
		}
		created = append(created, g)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) SetPriority(ctx context.Context, sessionID string, orderedGroupIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE groups SET is_priority = false, priority_order = 0 WHERE session_id = $1
	`, sessionID); err != nil {
		return err
	}

	for i, id := range orderedGroupIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE groups SET is_priority = true, priority_order = $2 WHERE id = $1 AND session_id = $3
		`, id, i+1, sessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
