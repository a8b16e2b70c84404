package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/stats"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

func (s *Store) UpsertDailyStatistics(ctx context.Context, d stats.Daily) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_statistics (date, messages_sent, groups_reached, active_sessions, active_tenants, revenue_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			messages_sent = EXCLUDED.messages_sent, groups_reached = EXCLUDED.groups_reached,
			active_sessions = EXCLUDED.active_sessions, active_tenants = EXCLUDED.active_tenants,
			revenue_cents = EXCLUDED.revenue_cents
	`, d.Date, d.MessagesSent, d.GroupsReached, d.ActiveSessions, d.ActiveTenants, d.RevenueCents)
	return err
}

func (s *Store) GetDailyStatistics(ctx context.Context, date time.Time) (stats.Daily, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, messages_sent, groups_reached, active_sessions, active_tenants, revenue_cents
		FROM daily_statistics WHERE date = $1
	`, date.UTC().Format("2006-01-02"))

	var d stats.Daily
	if err := row.Scan(&d.Date, &d.MessagesSent, &d.GroupsReached, &d.ActiveSessions, &d.ActiveTenants, &d.RevenueCents); err != nil {
		if err == sql.ErrNoRows {
			return stats.Daily{}, svcerr.NotFound("dailyStatistics", date.UTC().Format("2006-01-02"))
		}
		return stats.Daily{}, err
	}
	return d, nil
}
