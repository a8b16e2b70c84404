package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

const adColumns = `id, tenant_id, content, media_refs, status, is_scheduled, scheduled_for, last_scheduled_at, last_error, interval_min_ms, interval_max_ms, group_interval_ms, brand_ad_text, selected_groups, use_priority_grps, created_at, updated_at`

func scanAd(scanner interface {
	Scan(dest ...interface{}) error
}) (ad.Ad, error) {
	var a ad.Ad
	var mediaRefs, selectedGroups string
	var scheduledFor, lastScheduledAt sql.NullTime
	var lastError, brandAdText sql.NullString
	var intervalMinMs, intervalMaxMs, groupIntervalMs int64
	err := scanner.Scan(&a.ID, &a.TenantID, &a.Content, &mediaRefs, &a.Status, &a.IsScheduled,
		&scheduledFor, &lastScheduledAt, &lastError, &intervalMinMs, &intervalMaxMs, &groupIntervalMs,
		&brandAdText, &selectedGroups, &a.UsePriorityGrps, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return ad.Ad{}, err
	}
	a.MediaRefs = splitCSV(mediaRefs)
	a.SelectedGroups = splitCSV(selectedGroups)
	a.ScheduledFor = scheduledFor.Time
	a.LastScheduledAt = lastScheduledAt.Time
	a.LastError = lastError.String
	a.IntervalMin = time.Duration(intervalMinMs) * time.Millisecond
	a.IntervalMax = time.Duration(intervalMaxMs) * time.Millisecond
	a.GroupInterval = time.Duration(groupIntervalMs) * time.Millisecond
	a.BrandAdText = brandAdText.String
	return a, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinCSV(items []string) string {
	return strings.Join(items, ",")
}

func (s *Store) GetAd(ctx context.Context, id string) (ad.Ad, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ads WHERE id = $1`, id)
	a, err := scanAd(row)
	if err == sql.ErrNoRows {
		return ad.Ad{}, svcerr.NotFound("ad", id)
	}
	return a, err
}

func (s *Store) ListAdsByTenant(ctx context.Context, tenantID string) ([]ad.Ad, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adColumns+` FROM ads WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ad.Ad
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListDueScheduledAds(ctx context.Context, asOf time.Time) ([]ad.Ad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+adColumns+` FROM ads
		WHERE is_scheduled = true AND status IN ('active', 'paused') AND scheduled_for <= $1
		ORDER BY scheduled_for
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ad.Ad
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAd(ctx context.Context, a ad.Ad) (ad.Ad, error) {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ads SET
			content = $2, media_refs = $3, status = $4, is_scheduled = $5, scheduled_for = $6,
			last_scheduled_at = $7, last_error = $8, interval_min_ms = $9, interval_max_ms = $10,
			group_interval_ms = $11, brand_ad_text = $12, selected_groups = $13, use_priority_grps = $14,
			updated_at = $15
		WHERE id = $1
	`, a.ID, a.Content, joinCSV(a.MediaRefs), a.Status, a.IsScheduled, toNullTime(a.ScheduledFor),
		toNullTime(a.LastScheduledAt), toNullString(a.LastError), a.IntervalMin.Milliseconds(), a.IntervalMax.Milliseconds(),
		a.GroupInterval.Milliseconds(), toNullString(a.BrandAdText), joinCSV(a.SelectedGroups), a.UsePriorityGrps,
		a.UpdatedAt)
	if err != nil {
		return ad.Ad{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ad.Ad{}, svcerr.NotFound("ad", a.ID)
	}
	return a, nil
}
