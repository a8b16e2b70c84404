// Package stats holds the daily SystemStatistics rollup entity produced by
// the maintenance loop (spec.md §4.7).
package stats

import "time"

// Daily is one date's aggregate counters, upserted by the daily rollup loop.
type Daily struct {
	Date           time.Time
	MessagesSent   int64
	GroupsReached  int64
	ActiveSessions int
	ActiveTenants  int
	RevenueCents   int64
}
