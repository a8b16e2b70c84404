package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

func scanSession(scanner interface {
	Scan(dest ...interface{}) error
}) (session.Session, error) {
	var sess session.Session
	var frozenAt, unfreezeAt, lastSyncAt sql.NullTime
	err := scanner.Scan(&sess.ID, &sess.TenantID, &sess.Name, &sess.Phone, &sess.SessionString,
		&sess.Status, &sess.IsFrozen, &frozenAt, &unfreezeAt, &sess.FreezeCount, &lastSyncAt,
		&sess.TotalGroups, &sess.ActiveGroups, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return session.Session{}, err
	}
	sess.FrozenAt = frozenAt.Time
	sess.UnfreezeAt = unfreezeAt.Time
	sess.LastSyncAt = lastSyncAt.Time
	return sess, nil
}

const sessionColumns = `id, tenant_id, name, phone, session_string, status, is_frozen, frozen_at, unfreeze_at, freeze_count, last_sync_at, total_groups, active_groups, created_at, updated_at`

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return session.Session{}, svcerr.NotFound("session", id)
	}
	return sess, err
}

func (s *Store) ListSessionsByTenant(ctx context.Context, tenantID string) ([]session.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

func (s *Store) ListUsableSessions(ctx context.Context, tenantID string) ([]session.Session, error) {
	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = $1 AND status = 'active' AND is_frozen = false AND session_string <> ''
		ORDER BY created_at
	`, tenantID)
}

func (s *Store) ListFrozenSessionsOlderThan(ctx context.Context, cutoff time.Time) ([]session.Session, error) {
	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE is_frozen = true AND unfreeze_at IS NOT NULL AND unfreeze_at <= $1
		ORDER BY unfreeze_at
	`, cutoff)
}

func (s *Store) querySessions(ctx context.Context, query string, arg interface{}) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	sess.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			name = $2, phone = $3, session_string = $4, status = $5, is_frozen = $6,
			frozen_at = $7, unfreeze_at = $8, freeze_count = $9, last_sync_at = $10,
			total_groups = $11, active_groups = $12, updated_at = $13
		WHERE id = $1
	`, sess.ID, sess.Name, sess.Phone, sess.SessionString, sess.Status, sess.IsFrozen,
		toNullTime(sess.FrozenAt), toNullTime(sess.UnfreezeAt), sess.FreezeCount, toNullTime(sess.LastSyncAt),
		sess.TotalGroups, sess.ActiveGroups, sess.UpdatedAt)
	if err != nil {
		return session.Session{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return session.Session{}, svcerr.NotFound("session", sess.ID)
	}
	return sess, nil
}
