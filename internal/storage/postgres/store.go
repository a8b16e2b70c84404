// Package postgres implements Repository on top of database/sql, using
// lib/pq as the driver and bare $1..$n placeholders, mirroring the teacher's
// internal/app/storage/postgres package.
package postgres

import (
	"context"
	"database/sql"
	"time"

	// Registers the "postgres" driver for sql.Open.
	_ "github.com/lib/pq"

	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/storage"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open dials dsn with the lib/pq driver and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func toNullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// --- TenantStore -------------------------------------------------------

func (s *Store) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand_ad_enabled, brand_ad_text, use_priority_grps, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id)

	var t tenant.Tenant
	var brandAdText sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.BrandAdEnabled, &brandAdText, &t.UsePriorityGrps, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, svcerr.NotFound("tenant", id)
		}
		return tenant.Tenant{}, err
	}
	t.BrandAdText = brandAdText.String

	sub, err := s.GetSubscription(ctx, id)
	if err == nil {
		t.Subscription = sub
	} else if se, ok := err.(*svcerr.ServiceError); !ok || se.Code != svcerr.CodeNotFound {
		return tenant.Tenant{}, err
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand_ad_enabled, brand_ad_text, use_priority_grps, created_at, updated_at
		FROM tenants ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		var brandAdText sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &t.BrandAdEnabled, &brandAdText, &t.UsePriorityGrps, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.BrandAdText = brandAdText.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*tenant.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, max_sessions, max_groups, max_ads, group_interval_ms, start_date, end_date
		FROM subscriptions WHERE tenant_id = $1
	`, tenantID)

	var sub tenant.Subscription
	var groupIntervalMs int64
	if err := row.Scan(&sub.ID, &sub.TenantID, &sub.Status, &sub.MaxSessions, &sub.MaxGroups, &sub.MaxAds, &groupIntervalMs, &sub.StartDate, &sub.EndDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, svcerr.NotFound("subscription", tenantID)
		}
		return nil, err
	}
	sub.GroupInterval = time.Duration(groupIntervalMs) * time.Millisecond
	return &sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub tenant.Subscription) (tenant.Subscription, error) {
	if sub.ID == "" {
		return tenant.Subscription{}, svcerr.InvalidInput("subscription.id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, status, max_sessions, max_groups, max_ads, group_interval_ms, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE SET
			status = EXCLUDED.status, max_sessions = EXCLUDED.max_sessions, max_groups = EXCLUDED.max_groups,
			max_ads = EXCLUDED.max_ads, group_interval_ms = EXCLUDED.group_interval_ms,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date
	`, sub.ID, sub.TenantID, sub.Status, sub.MaxSessions, sub.MaxGroups, sub.MaxAds, sub.GroupInterval.Milliseconds(), sub.StartDate, sub.EndDate)
	if err != nil {
		return tenant.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) ListExpiringSubscriptions(ctx context.Context, asOf time.Time) ([]tenant.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, status, max_sessions, max_groups, max_ads, group_interval_ms, start_date, end_date
		FROM subscriptions WHERE status = 'active' AND end_date <= $1
		ORDER BY tenant_id
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Subscription
	for rows.Next() {
		var sub tenant.Subscription
		var groupIntervalMs int64
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.Status, &sub.MaxSessions, &sub.MaxGroups, &sub.MaxAds, &groupIntervalMs, &sub.StartDate, &sub.EndDate); err != nil {
			return nil, err
		}
		sub.GroupInterval = time.Duration(groupIntervalMs) * time.Millisecond
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) CreatePayment(ctx context.Context, p tenant.Payment) (tenant.Payment, error) {
	if p.ID == "" {
		return tenant.Payment{}, svcerr.InvalidInput("payment.id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, status, amount_due, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.TenantID, p.Status, p.AmountDue, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return tenant.Payment{}, err
	}
	return p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p tenant.Payment) (tenant.Payment, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, amount_due = $3, updated_at = $4 WHERE id = $1
	`, p.ID, p.Status, p.AmountDue, p.UpdatedAt)
	if err != nil {
		return tenant.Payment{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return tenant.Payment{}, svcerr.NotFound("payment", p.ID)
	}
	return p, nil
}

func (s *Store) ListPendingPaymentsOlderThan(ctx context.Context, cutoff time.Time) ([]tenant.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, status, amount_due, created_at, updated_at
		FROM payments WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Payment
	for rows.Next() {
		var p tenant.Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Status, &p.AmountDue, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListApprovedPaymentsInRange(ctx context.Context, start, end time.Time) ([]tenant.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, status, amount_due, created_at, updated_at
		FROM payments WHERE status = 'approved' AND updated_at >= $1 AND updated_at < $2
		ORDER BY updated_at
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Payment
	for rows.Next() {
		var p tenant.Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Status, &p.AmountDue, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
